package handlers

import (
	"bytes"
	"io/fs"
	"net/http"
	"time"
)

// StaticHandler раздаёт встроенный веб-интерфейс.
type StaticHandler struct {
	files     http.Handler
	index     []byte
	startedAt time.Time
}

// NewStaticHandler создаёт обработчик статики поверх fsys.
// fsys должен содержать index.html.
func NewStaticHandler(fsys fs.FS) (*StaticHandler, error) {
	index, err := fs.ReadFile(fsys, "index.html")
	if err != nil {
		return nil, err
	}
	return &StaticHandler{
		files:     http.FileServer(http.FS(fsys)),
		index:     index,
		startedAt: time.Now(),
	}, nil
}

// ServeHTTP обрабатывает GET / , GET /index.html и прочие пути статики.
// Корень и /index.html отдаются напрямую: http.FileServer перенаправил бы
// /index.html на /.
func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/", "/index.html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		http.ServeContent(w, r, "index.html", h.startedAt, bytes.NewReader(h.index))
	default:
		h.files.ServeHTTP(w, r)
	}
}
