// Пакет static — встроенный веб-интерфейс Relay Module.
// Файлы встраиваются в бинарник через //go:embed и раздаются с корня сайта.
package static

import (
	"embed"
	"io/fs"
	"net/http"
)

// content — встроенная файловая система со страницей, скриптом и стилями.
//
//go:embed index.html app.js style.css
var content embed.FS

// FileSystem возвращает http.FileSystem для обработки запросов к /*.
func FileSystem() http.FileSystem {
	return http.FS(content)
}

// FS возвращает fs.FS для прямого доступа к встроенным файлам.
func FS() fs.FS {
	return content
}
