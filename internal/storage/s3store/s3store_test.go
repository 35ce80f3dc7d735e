package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/relay-module/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// fakeS3 — минимальный S3-совместимый сервер с path-style адресацией.
type fakeS3 struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	if bucket != f.bucket {
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket")
		return
	}

	switch {
	case key == "" && r.Method == http.MethodHead:
		w.WriteHeader(http.StatusOK)

	case key == "" && r.Method == http.MethodGet:
		f.list(w, r.URL.Query().Get("prefix"))

	case r.Method == http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[key] = data
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			writeS3Error(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)

	case r.Method == http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)

	default:
		writeS3Error(w, http.StatusMethodNotAllowed, "MethodNotAllowed")
	}
}

func (f *fakeS3) object(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	return data, ok
}

func (f *fakeS3) list(w http.ResponseWriter, prefix string) {
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString(`<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
	fmt.Fprintf(&buf, "<Name>%s</Name><Prefix>%s</Prefix><KeyCount>%d</KeyCount>", f.bucket, prefix, len(keys))
	buf.WriteString("<MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>")
	for _, k := range keys {
		fmt.Fprintf(&buf, "<Contents><Key>%s</Key><LastModified>%s</LastModified><Size>%d</Size></Contents>",
			k, time.Now().UTC().Format("2006-01-02T15:04:05.000Z"), len(f.objects[k]))
	}
	buf.WriteString("</ListBucketResult>")

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func writeS3Error(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message></Error>`, code, code)
}

// newTestStore поднимает fake S3 и создаёт Store поверх него.
func newTestStore(t *testing.T, prefix string) (*Store, *fakeS3) {
	t.Helper()

	fake := &fakeS3{bucket: "relay", objects: make(map[string][]byte)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := New(Config{
		Endpoint:  srv.URL,
		Region:    "us-east-1",
		Bucket:    "relay",
		AccessKey: "test",
		SecretKey: "test-secret",
		Prefix:    prefix,
		PathStyle: true,
	}, testLogger())
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}
	return s, fake
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{AccessKey: "a", SecretKey: "b"}, testLogger()); err == nil {
		t.Error("ожидалась ошибка без бакета")
	}
	if _, err := New(Config{Bucket: "b"}, testLogger()); err == nil {
		t.Error("ожидалась ошибка без ключей доступа")
	}
}

func TestPutOpenDelete(t *testing.T) {
	s, fake := newTestStore(t, "relay/")
	ctx := context.Background()

	content := []byte{0xFF, 0x00, 0xFE, 'a', '\r', '\n'}
	size, err := s.Put(ctx, "abc.bin", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("ошибка Put: %v", err)
	}
	if size != int64(len(content)) {
		t.Errorf("размер: ожидалось %d, получено %d", len(content), size)
	}
	if _, ok := fake.object("relay/abc.bin"); !ok {
		t.Fatal("объект должен храниться с префиксом")
	}

	rc, gotSize, err := s.Open(ctx, "abc.bin")
	if err != nil {
		t.Fatalf("ошибка Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()

	if !bytes.Equal(data, content) {
		t.Errorf("содержимое не совпадает: %v", data)
	}
	if gotSize != int64(len(content)) {
		t.Errorf("размер при открытии: получено %d", gotSize)
	}

	if err := s.Delete(ctx, "abc.bin"); err != nil {
		t.Fatalf("ошибка Delete: %v", err)
	}
	if _, _, err := s.Open(ctx, "abc.bin"); !errors.Is(err, model.ErrBlobNotFound) {
		t.Errorf("после удаления ожидалась ErrBlobNotFound, получено %v", err)
	}
}

// TestPut_NonSeekable проверяет буферизацию произвольного reader.
func TestPut_NonSeekable(t *testing.T) {
	s, fake := newTestStore(t, "")

	r := io.MultiReader(strings.NewReader("hello "), strings.NewReader("world"))
	if _, err := s.Put(context.Background(), "m.txt", r); err != nil {
		t.Fatalf("ошибка Put: %v", err)
	}
	if data, _ := fake.object("m.txt"); string(data) != "hello world" {
		t.Errorf("содержимое: получено %q", data)
	}
}

func TestList(t *testing.T) {
	s, fake := newTestStore(t, "relay/")
	ctx := context.Background()

	_, _ = s.Put(ctx, "a.txt", strings.NewReader("aaa"))
	_, _ = s.Put(ctx, "b.txt", strings.NewReader("b"))
	fake.mu.Lock()
	fake.objects["other/c.txt"] = []byte("c")
	fake.mu.Unlock()

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("ошибка List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ожидалось 2 объекта под префиксом, получено %+v", list)
	}
	if list[0].Key != "a.txt" || list[0].Size != 3 {
		t.Errorf("первый объект: %+v", list[0])
	}
	if list[0].ModTime.IsZero() {
		t.Error("ModTime должен быть заполнен")
	}
}

func TestCheck(t *testing.T) {
	s, _ := newTestStore(t, "")
	if err := s.Check(context.Background()); err != nil {
		t.Errorf("неожиданная ошибка Check: %v", err)
	}

	s.bucket = "missing"
	if err := s.Check(context.Background()); err == nil {
		t.Error("ожидалась ошибка для несуществующего бакета")
	}
}

func TestInvalidKey(t *testing.T) {
	s, _ := newTestStore(t, "")

	if _, err := s.Put(context.Background(), "../x", strings.NewReader("x")); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("ожидалась ErrInvalidKey, получено %v", err)
	}
	if err := s.Delete(context.Background(), ""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("ожидалась ErrInvalidKey, получено %v", err)
	}
}
