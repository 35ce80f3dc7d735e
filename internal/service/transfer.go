// transfer.go — загрузка, одноразовое скачивание, сброс сессии.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bigkaa/goartstore/relay-module/internal/domain/model"
	"github.com/bigkaa/goartstore/relay-module/internal/ident"
	"github.com/bigkaa/goartstore/relay-module/internal/multipart"
	"github.com/bigkaa/goartstore/relay-module/internal/storage/index"
)

// maxIDAttempts — попытки сгенерировать свободный file_id.
const maxIDAttempts = 3

// TransferService — сервис передачи файлов.
type TransferService struct {
	blobs    BlobStore
	files    *index.FileIndex
	sessions *index.SessionIndex
	maxSize  int64
	fileTTL  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewTransferService создаёт сервис передачи файлов.
func NewTransferService(
	blobs BlobStore,
	files *index.FileIndex,
	sessions *index.SessionIndex,
	maxUploadSize int64,
	fileTTL time.Duration,
	logger *slog.Logger,
) *TransferService {
	return &TransferService{
		blobs:    blobs,
		files:    files,
		sessions: sessions,
		maxSize:  maxUploadSize,
		fileTTL:  fileTTL,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "transfer_service")),
	}
}

// MaxUploadSize возвращает предельный размер тела загрузки.
func (s *TransferService) MaxUploadSize() int64 {
	return s.maxSize
}

// Upload принимает multipart-тело, сохраняет первый файл и привязывает
// его к сессии.
//
// Поток:
//  1. Проверка объявленного размера (до чтения тела)
//  2. boundary из Content-Type
//  3. Чтение тела с ограничением размера
//  4. Extract → имя и содержимое
//  5. Запись байтов → FileIndex.Put → SessionIndex.Attach
//
// Если сессию сбросили во время загрузки, файл удаляется и
// возвращается ErrSessionGone.
func (s *TransferService) Upload(
	ctx context.Context,
	sessionID, contentType string,
	body io.Reader,
	contentLength int64,
) (*model.FileRecord, error) {
	if contentLength > s.maxSize {
		return nil, s.tooLarge()
	}

	boundary, err := multipart.BoundaryFromContentType(contentType)
	if err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(io.LimitReader(body, s.maxSize+1))
	if err != nil {
		s.logger.Warn("Ошибка чтения тела запроса",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: тело запроса получено не полностью", multipart.ErrInvalidRequest)
	}
	if int64(len(raw)) > s.maxSize {
		return nil, s.tooLarge()
	}

	name, content, err := multipart.Extract(raw, boundary)
	if err != nil {
		return nil, err
	}
	name = SanitizeName(name)

	fileID, err := s.newFileID()
	if err != nil {
		return nil, err
	}
	key := storageKeyFor(fileID, name)

	// 5. Байты пишутся до появления записи в индексе
	size, err := s.blobs.Put(ctx, key, bytes.NewReader(content))
	if err != nil {
		s.logger.Error("Ошибка сохранения файла",
			slog.String("file_id", fileID),
			slog.String("storage_key", key),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}

	now := s.now().UTC()
	rec := &model.FileRecord{
		ID:           fileID,
		OriginalName: name,
		StorageKey:   key,
		ContentType:  detectContentType(name, content),
		Size:         size,
		UploadedAt:   now,
		ExpiresAt:    now.Add(s.fileTTL),
		SessionID:    sessionID,
	}

	if err := s.files.Put(rec); err != nil {
		// Байты под этим ключом могут принадлежать другой записи,
		// поэтому не удаляем их здесь: чужие останутся, свои соберёт сверка.
		s.logger.Error("Ошибка добавления в индекс",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}

	if err := s.sessions.Attach(sessionID, fileID); err != nil {
		s.evict(ctx, fileID, reasonSessionReset)
		if errors.Is(err, index.ErrSessionNotFound) {
			return nil, ErrSessionGone
		}
		return nil, err
	}

	uploadsTotal.Inc()
	uploadBytesTotal.Add(float64(size))
	s.updateGauges()

	s.logger.Info("Файл загружен",
		slog.String("file_id", fileID),
		slog.String("session_id", shortID(sessionID)),
		slog.String("storage_key", key),
		slog.String("size", humanize.IBytes(uint64(size))),
	)

	return rec, nil
}

// newFileID генерирует file_id, которого ещё нет в индексе.
func (s *TransferService) newFileID() (string, error) {
	for range maxIDAttempts {
		id, err := ident.NewFileID()
		if err != nil {
			return "", err
		}
		if !s.files.Has(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: не удалось сгенерировать уникальный идентификатор", ErrStorageFailure)
}

func (s *TransferService) tooLarge() error {
	return fmt.Errorf("%w: максимальный размер загрузки %s",
		ErrTooLarge, humanize.IBytes(uint64(s.maxSize)))
}

// Download отдаёт файл по ключу хранения и удаляет его после полной отдачи.
//
// Ошибка возвращается, только если отдача ещё не началась (заголовки не
// записаны). Прерванная отдача снимает отметку Claim: ссылку можно
// использовать повторно, ничего не удаляется.
func (s *TransferService) Download(ctx context.Context, w http.ResponseWriter, storageKey string) error {
	fileID := fileIDFromKey(storageKey)
	if !ident.IsFileID(fileID) {
		return ErrNotFoundOrExpired
	}

	rec, err := s.files.Claim(fileID, s.now().UTC())
	if err != nil {
		return ErrNotFoundOrExpired
	}
	if rec.StorageKey != storageKey {
		s.files.Release(fileID)
		return ErrNotFoundOrExpired
	}

	rc, size, err := s.blobs.Open(ctx, rec.StorageKey)
	if err != nil {
		if errors.Is(err, model.ErrBlobNotFound) {
			s.logger.Warn("Байты файла отсутствуют в хранилище",
				slog.String("file_id", fileID),
				slog.String("storage_key", rec.StorageKey),
			)
			s.evict(ctx, fileID, reasonMissingBlob)
			return ErrNotFoundOrExpired
		}
		s.files.Release(fileID)
		s.logger.Error("Ошибка открытия файла",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	defer rc.Close()

	h := w.Header()
	h.Set("Content-Type", rec.ContentType)
	h.Set("Content-Disposition", contentDisposition(rec.OriginalName))
	h.Set("Content-Length", strconv.FormatInt(size, 10))
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, rc)
	if err != nil || n != size {
		s.files.Release(fileID)
		downloadsTotal.WithLabelValues("aborted").Inc()

		attrs := []any{
			slog.String("file_id", fileID),
			slog.Int64("sent", n),
			slog.Int64("size", size),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		s.logger.Warn("Отдача файла прервана", attrs...)
		return nil
	}

	downloadsTotal.WithLabelValues("completed").Inc()
	s.evict(ctx, fileID, reasonDownloaded)

	s.logger.Info("Файл скачан и удалён",
		slog.String("file_id", fileID),
		slog.String("size", humanize.IBytes(uint64(size))),
	)
	return nil
}

// contentDisposition формирует заголовок attachment с именем файла.
// Для не-ASCII имён добавляется RFC 5987 filename*, а filename
// содержит упрощённое ASCII-имя.
func contentDisposition(name string) string {
	if isASCII(name) {
		return `attachment; filename="` + name + `"`
	}
	encoded := strings.ReplaceAll(url.QueryEscape(name), "+", "%20")
	return `attachment; filename="` + asciiFallback(name) + `"; filename*=UTF-8''` + encoded
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// asciiFallback заменяет не-ASCII символы на '_'.
func asciiFallback(name string) string {
	b := make([]byte, 0, len(name))
	for _, r := range name {
		if r < 0x20 || r >= 0x7F || r == '"' || r == '\\' {
			b = append(b, '_')
			continue
		}
		b = append(b, byte(r))
	}
	return string(b)
}

// ResetSession уничтожает сессию вместе с её файлами и возвращает
// токен новой сессии.
func (s *TransferService) ResetSession(ctx context.Context, sessionID string) (string, error) {
	fileIDs, newID, err := s.sessions.Reset(sessionID)

	removed := 0
	for _, id := range fileIDs {
		if s.evict(ctx, id, reasonSessionReset) {
			removed++
		}
	}
	s.updateGauges()

	if err != nil {
		s.logger.Error("Ошибка создания новой сессии",
			slog.String("error", err.Error()),
		)
		return "", err
	}

	s.logger.Info("Сессия сброшена",
		slog.String("session_id", shortID(sessionID)),
		slog.Int("files_removed", removed),
	)
	return newID, nil
}

// ListFiles возвращает неистёкшие файлы сессии в порядке загрузки.
func (s *TransferService) ListFiles(sessionID string) []*model.FileRecord {
	now := s.now().UTC()
	recs := s.files.ListBySession(sessionID, s.sessions.Files(sessionID))

	result := recs[:0]
	for _, rec := range recs {
		if !rec.IsExpired(now) {
			result = append(result, rec)
		}
	}
	return result
}

// evict — единственный путь удаления файла: атомарно убирает запись из
// индекса, затем байты, затем ссылку из сессии. Возвращает false, если
// запись уже удалил кто-то другой.
func (s *TransferService) evict(ctx context.Context, fileID, reason string) bool {
	rec, ok := s.files.Remove(fileID)
	if !ok {
		return false
	}

	// Запись уже удалена: байты нужно удалить даже при отмене запроса
	if err := s.blobs.Delete(context.WithoutCancel(ctx), rec.StorageKey); err != nil {
		evictErrorsTotal.Inc()
		s.logger.Error("Ошибка удаления файла из хранилища",
			slog.String("file_id", fileID),
			slog.String("storage_key", rec.StorageKey),
			slog.String("error", err.Error()),
		)
	}

	if rec.SessionID != "" {
		s.sessions.Detach(rec.SessionID, fileID)
	}

	evictionsTotal.WithLabelValues(reason).Inc()
	s.updateGauges()

	s.logger.Debug("Файл удалён",
		slog.String("file_id", fileID),
		slog.String("reason", reason),
	)
	return true
}

// Stats — текущие размеры индексов.
type Stats struct {
	Files       int
	Sessions    int
	StoredBytes int64
}

// Stats возвращает количество файлов, сессий и суммарный объём.
func (s *TransferService) Stats() Stats {
	return Stats{
		Files:       s.files.Count(),
		Sessions:    s.sessions.Count(),
		StoredBytes: s.files.TotalBytes(),
	}
}

// CheckStorage проверяет доступность хранилища байтов.
func (s *TransferService) CheckStorage(ctx context.Context) error {
	return s.blobs.Check(ctx)
}

func (s *TransferService) updateGauges() {
	activeFiles.Set(float64(s.files.Count()))
	activeSessions.Set(float64(s.sessions.Count()))
	storedBytes.Set(float64(s.files.TotalBytes()))
}

// shortID сокращает токен сессии для логов: полный токен — учётные данные.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
