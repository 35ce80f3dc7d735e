package multipart

import (
	"bytes"
	"errors"
	"mime/multipart"
	"strings"
	"testing"
)

// buildBody собирает multipart-тело вручную, чтобы контролировать каждый байт.
func buildBody(boundary string, parts ...string) []byte {
	var buf bytes.Buffer
	for _, p := range parts {
		buf.WriteString("--" + boundary + "\r\n")
		buf.WriteString(p)
		buf.WriteString("\r\n")
	}
	buf.WriteString("--" + boundary + "--\r\n")
	return buf.Bytes()
}

func filePart(name string, content []byte) string {
	return "Content-Disposition: form-data; name=\"file\"; filename=\"" + name + "\"\r\n" +
		"Content-Type: application/octet-stream\r\n\r\n" + string(content)
}

func TestExtract_SimpleFile(t *testing.T) {
	body := buildBody("XyZ", filePart("a.txt", []byte("0123456789")))

	name, content, err := Extract(body, "XyZ")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if name != "a.txt" {
		t.Errorf("имя: ожидалось a.txt, получено %q", name)
	}
	if string(content) != "0123456789" {
		t.Errorf("содержимое: получено %q", content)
	}
}

// TestExtract_BinarySafe проверяет, что байты, невалидные как текст,
// и CRLF внутри содержимого сохраняются точно.
func TestExtract_BinarySafe(t *testing.T) {
	payload := []byte{0xFF, 0xFE, 0x00, '\r', '\n', 0xFF, '-', '-', 0x80, '\r', '\n', '\r', '\n', 0xC3}
	body := buildBody("b0undary", filePart("img.bin", payload))

	_, content, err := Extract(body, "b0undary")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !bytes.Equal(content, payload) {
		t.Errorf("содержимое искажено:\nожидалось %v\nполучено  %v", payload, content)
	}
}

func TestExtract_EmptyFile(t *testing.T) {
	body := buildBody("bnd", filePart("empty.dat", nil))

	name, content, err := Extract(body, "bnd")
	if err != nil {
		t.Fatalf("пустой файл должен быть валидным: %v", err)
	}
	if name != "empty.dat" {
		t.Errorf("имя: получено %q", name)
	}
	if content == nil {
		t.Error("содержимое пустого файла должно быть не-nil срезом")
	}
	if len(content) != 0 {
		t.Errorf("длина: ожидалось 0, получено %d", len(content))
	}
}

func TestExtract_SkipsFieldsAndTakesFirstFile(t *testing.T) {
	body := buildBody("B",
		"Content-Disposition: form-data; name=\"comment\"\r\n\r\nпросто текст",
		filePart("first.txt", []byte("first")),
		filePart("second.txt", []byte("second")),
	)

	name, content, err := Extract(body, "B")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if name != "first.txt" || string(content) != "first" {
		t.Errorf("ожидалась первая файловая часть, получено %q=%q", name, content)
	}
}

func TestExtract_NoFile(t *testing.T) {
	body := buildBody("B", "Content-Disposition: form-data; name=\"comment\"\r\n\r\nhello")

	_, _, err := Extract(body, "B")
	if !errors.Is(err, ErrNoFileFound) {
		t.Errorf("ожидалась ErrNoFileFound, получено %v", err)
	}
}

func TestExtract_MalformedHeaderSkipped(t *testing.T) {
	// Первая часть без пустой строки после заголовков — пропускается
	body := buildBody("B",
		"Content-Disposition: form-data; name=\"file\"; filename=\"broken.txt\"",
		filePart("ok.txt", []byte("ok")),
	)

	name, content, err := Extract(body, "B")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if name != "ok.txt" || string(content) != "ok" {
		t.Errorf("ожидалась вторая часть, получено %q=%q", name, content)
	}
}

func TestExtract_EmptyBoundary(t *testing.T) {
	_, _, err := Extract([]byte("whatever"), "")
	if !errors.Is(err, ErrNoBoundary) || !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("ожидалась ErrNoBoundary, получено %v", err)
	}
}

// TestBoundaryFromContentType_Causes проверяет, что причины ошибки
// различимы и сообщения не подменяют друг друга.
func TestBoundaryFromContentType_Causes(t *testing.T) {
	_, err := BoundaryFromContentType("application/json")
	if !errors.Is(err, ErrNotMultipart) || errors.Is(err, ErrNoBoundary) {
		t.Errorf("application/json: ожидалась ErrNotMultipart, получено %v", err)
	}
	if strings.Contains(err.Error(), "boundary") {
		t.Errorf("сообщение не должно говорить о boundary: %q", err.Error())
	}

	_, err = BoundaryFromContentType("multipart/form-data")
	if !errors.Is(err, ErrNoBoundary) || errors.Is(err, ErrNotMultipart) {
		t.Errorf("multipart без boundary: ожидалась ErrNoBoundary, получено %v", err)
	}
}

func TestExtract_UnquotedFilename(t *testing.T) {
	body := buildBody("B",
		"Content-Disposition: form-data; name=file; filename=plain.txt\r\n\r\ndata")

	name, content, err := Extract(body, "B")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if name != "plain.txt" || string(content) != "data" {
		t.Errorf("получено %q=%q", name, content)
	}
}

// TestExtract_StdlibWriter проверяет совместимость с телом, собранным
// mime/multipart.Writer (как это делает браузер).
func TestExtract_StdlibWriter(t *testing.T) {
	payload := bytes.Repeat([]byte{0xFF, 0x00, '\n'}, 4096)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("note", "x")
	fw, err := mw.CreateFormFile("file", "archive.tar.gz")
	if err != nil {
		t.Fatalf("ошибка CreateFormFile: %v", err)
	}
	_, _ = fw.Write(payload)
	_ = mw.Close()

	boundary, err := BoundaryFromContentType(mw.FormDataContentType())
	if err != nil {
		t.Fatalf("ошибка boundary: %v", err)
	}

	name, content, err := Extract(buf.Bytes(), boundary)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if name != "archive.tar.gz" {
		t.Errorf("имя: получено %q", name)
	}
	if !bytes.Equal(content, payload) {
		t.Errorf("содержимое искажено: длина %d, ожидалась %d", len(content), len(payload))
	}
}

func TestBoundaryFromContentType(t *testing.T) {
	tests := []struct {
		header string
		want   string
		err    bool
	}{
		{header: "multipart/form-data; boundary=abc123", want: "abc123"},
		{header: `multipart/form-data; boundary="quoted boundary"`, want: "quoted boundary"},
		{header: "multipart/form-data; charset=utf-8; boundary=----WebKitFormBoundary7MA4YWxk", want: "----WebKitFormBoundary7MA4YWxk"},
		{header: "multipart/form-data; boundary=a; boundary=b", want: "a"},
		{header: "multipart/form-data", err: true},
		{header: "application/json", err: true},
		{header: "", err: true},
	}

	for _, tt := range tests {
		got, err := BoundaryFromContentType(tt.header)
		if tt.err {
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("%q: ожидалась ErrInvalidRequest, получено %v", tt.header, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: неожиданная ошибка: %v", tt.header, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: ожидалось %q, получено %q", tt.header, tt.want, got)
		}
	}
}
