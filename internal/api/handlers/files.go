// files.go — обработчики загрузки, списка, скачивания файлов и сброса сессии.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/relay-module/internal/api/errors"
	"github.com/bigkaa/goartstore/relay-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/relay-module/internal/domain/model"
	"github.com/bigkaa/goartstore/relay-module/internal/multipart"
	"github.com/bigkaa/goartstore/relay-module/internal/service"
)

// FileItem — элемент списка файлов сессии.
type FileItem struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"originalName"`
	Size         int64     `json:"size"`
	UploadTime   time.Time `json:"uploadTime"`
	ExpiryTime   time.Time `json:"expiryTime"`
	DownloadLink string    `json:"downloadLink"`
}

// UploadResponse — ответ на успешную загрузку.
type UploadResponse struct {
	Message      string    `json:"message"`
	FileID       string    `json:"fileId"`
	DownloadLink string    `json:"downloadLink"`
	ExpiryTime   time.Time `json:"expiryTime"`
}

// MessageResponse — ответ с текстовым сообщением.
type MessageResponse struct {
	Message string `json:"message"`
}

// FilesHandler — обработчики /api/* и /download/{key}.
type FilesHandler struct {
	transfer  *service.TransferService
	cookie    middleware.SessionCookie
	publicURL string
	logger    *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых операций.
// publicURL — внешний адрес для ссылок; пустой — адрес берётся из запроса.
func NewFilesHandler(
	transfer *service.TransferService,
	cookie middleware.SessionCookie,
	publicURL string,
	logger *slog.Logger,
) *FilesHandler {
	return &FilesHandler{
		transfer:  transfer,
		cookie:    cookie,
		publicURL: publicURL,
		logger:    logger.With(slog.String("component", "files_handler")),
	}
}

// ListFiles обрабатывает GET /api/files.
func (h *FilesHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionID(r.Context())
	base := h.baseURL(r)

	recs := h.transfer.ListFiles(sessionID)
	items := make([]FileItem, 0, len(recs))
	for _, rec := range recs {
		items = append(items, FileItem{
			ID:           rec.ID,
			OriginalName: rec.OriginalName,
			Size:         rec.Size,
			UploadTime:   rec.UploadedAt,
			ExpiryTime:   rec.ExpiresAt,
			DownloadLink: downloadLink(base, rec),
		})
	}

	writeJSON(w, http.StatusOK, items)
}

// Upload обрабатывает POST /api/upload.
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionID(r.Context())

	rec, err := h.transfer.Upload(r.Context(), sessionID,
		r.Header.Get("Content-Type"), r.Body, r.ContentLength)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Message:      "Файл успешно загружен",
		FileID:       rec.ID,
		DownloadLink: downloadLink(h.baseURL(r), rec),
		ExpiryTime:   rec.ExpiresAt,
	})
}

// ResetSession обрабатывает POST /api/reset-session.
// Файлы сессии удаляются, клиент получает cookie новой сессии.
func (h *FilesHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionID(r.Context())

	newID, err := h.transfer.ResetSession(r.Context(), sessionID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.cookie.Set(w, newID)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Сессия сброшена, файлы удалены"})
}

// Download обрабатывает GET /download/{key}.
// После начала отдачи ошибки уже не пишутся в ответ: статус 200 отправлен.
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	if err := h.transfer.Download(r.Context(), w, key); err != nil {
		h.writeServiceError(w, err)
	}
}

// writeServiceError переводит ошибку сервиса в HTTP-ответ.
func (h *FilesHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, multipart.ErrNoFileFound):
		apierrors.NoFile(w, "В запросе нет файла")
	case errors.Is(err, multipart.ErrInvalidRequest):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrTooLarge):
		apierrors.FileTooLarge(w, err.Error())
	case errors.Is(err, service.ErrNotFoundOrExpired):
		apierrors.NotFound(w, "Файл не найден, уже скачан или срок его хранения истёк")
	case errors.Is(err, service.ErrSessionGone):
		apierrors.SessionReset(w, "Сессия была сброшена во время загрузки")
	default:
		h.logger.Error("Ошибка обработки запроса",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// baseURL возвращает внешний адрес сервиса без завершающего слэша.
func (h *FilesHandler) baseURL(r *http.Request) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	return scheme + "://" + r.Host
}

func downloadLink(base string, rec *model.FileRecord) string {
	return base + "/download/" + rec.StorageKey
}

// writeJSON — вспомогательная функция для отправки JSON-ответа.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
