// Пакет multipart — извлечение файла из тела multipart/form-data запроса.
//
// Разбор выполняется над сырыми байтами: граница ищется через bytes.Index,
// а как текст интерпретируется только блок заголовков части. Содержимое
// файла никогда не декодируется, поэтому любые байтовые последовательности
// (0xFF, невалидный UTF-8, одиночные \r\n) возвращаются без изменений.
//
// Поддерживается одна файловая часть на запрос: возвращается первая часть
// с filename= в заголовках, остальные игнорируются.
package multipart

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"regexp"
	"strings"
)

// Ошибки извлечения.
var (
	// ErrInvalidRequest — общий класс ошибок некорректного запроса.
	ErrInvalidRequest = errors.New("некорректный multipart-запрос")
	// ErrNotMultipart — Content-Type не multipart/*.
	ErrNotMultipart = fmt.Errorf("%w: ожидается Content-Type multipart/form-data", ErrInvalidRequest)
	// ErrNoBoundary — в Content-Type нет параметра boundary.
	ErrNoBoundary = fmt.Errorf("%w: не найден параметр boundary", ErrInvalidRequest)
	// ErrNoFileFound — корректный multipart без файловой части.
	ErrNoFileFound = errors.New("в запросе не найден файл")
)

var (
	crlf       = []byte("\r\n")
	headerEnd  = []byte("\r\n\r\n")
	fileMarker = []byte("filename=")

	quotedFilename   = regexp.MustCompile(`filename="([^"]*)"`)
	unquotedFilename = regexp.MustCompile(`filename=([^;\r\n"]+)`)
	boundaryParam    = regexp.MustCompile(`(?i)boundary=(?:"([^"]+)"|([^;\s]+))`)
)

// BoundaryFromContentType возвращает значение параметра boundary из
// заголовка Content-Type. Поддерживаются кавычечная и простая формы.
func BoundaryFromContentType(contentType string) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err == nil {
		if !strings.HasPrefix(mediaType, "multipart/") {
			return "", ErrNotMultipart
		}
		if b := params["boundary"]; b != "" {
			return b, nil
		}
		return "", ErrNoBoundary
	}

	// ParseMediaType строг к дублям и лишним символам — пробуем найти
	// параметр напрямую.
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "multipart/") {
		return "", ErrNotMultipart
	}
	m := boundaryParam.FindStringSubmatch(contentType)
	if m == nil {
		return "", ErrNoBoundary
	}
	if m[1] != "" {
		return m[1], nil
	}
	return m[2], nil
}

// Extract находит первую файловую часть в body и возвращает объявленное
// имя файла и точное содержимое.
//
// Возвращаемый content ссылается на память body (без копирования).
// Пустой файл возвращается как пустой не-nil срез.
func Extract(body []byte, boundary string) (fileName string, content []byte, err error) {
	if boundary == "" {
		return "", nil, ErrNoBoundary
	}
	delim := []byte("--" + boundary)

	// Смещения всех вхождений разделителя по порядку
	var offsets []int
	for pos := 0; pos < len(body); {
		i := bytes.Index(body[pos:], delim)
		if i < 0 {
			break
		}
		offsets = append(offsets, pos+i)
		pos += i + len(delim)
	}

	for i := 0; i+1 < len(offsets); i++ {
		segment := body[offsets[i]+len(delim) : offsets[i+1]]

		name, data, ok := parsePart(segment)
		if ok {
			return name, data, nil
		}
	}

	return "", nil, ErrNoFileFound
}

// parsePart разбирает одну часть между двумя разделителями.
// ok == false — часть не файловая или заголовки повреждены.
func parsePart(segment []byte) (string, []byte, bool) {
	// После разделителя идёт CRLF перед заголовками
	segment = bytes.TrimPrefix(segment, crlf)

	end := bytes.Index(segment, headerEnd)
	if end < 0 {
		return "", nil, false
	}
	header := segment[:end]
	if !bytes.Contains(header, fileMarker) {
		return "", nil, false
	}

	name, ok := filenameFromHeader(string(header))
	if !ok {
		return "", nil, false
	}

	// CRLF перед следующим разделителем не входит в содержимое
	data := segment[end+len(headerEnd):]
	data = bytes.TrimSuffix(data, crlf)

	return name, data, true
}

func filenameFromHeader(header string) (string, bool) {
	if m := quotedFilename.FindStringSubmatch(header); m != nil {
		return m[1], true
	}
	if m := unquotedFilename.FindStringSubmatch(header); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	return "", false
}
