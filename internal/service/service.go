// Пакет service — бизнес-логика Relay Module.
//
// TransferService обслуживает загрузку, одноразовое скачивание, сброс
// сессии и список файлов. SweepService периодически удаляет истёкшие
// файлы, простаивающие пустые сессии и байты без метаданных.
//
// Любое удаление файла проходит через TransferService.evict: сначала
// атомарное удаление записи из FileIndex, затем байтов. Байты удаляет
// только тот, кто первым удалил запись.
package service

import (
	"context"
	"errors"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/relay-module/internal/domain/model"
)

// BlobStore — хранилище байтов файлов (filestore или s3store).
type BlobStore interface {
	// Put записывает содержимое под ключом и возвращает размер.
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	// Open открывает содержимое; model.ErrBlobNotFound, если байтов нет.
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
	// Delete удаляет содержимое; отсутствие не ошибка.
	Delete(ctx context.Context, key string) error
	// List перечисляет все хранимые ключи.
	List(ctx context.Context) ([]model.BlobInfo, error)
	// Check проверяет готовность хранилища.
	Check(ctx context.Context) error
}

// Ошибки сервисного слоя. Ошибки разбора multipart (ErrInvalidRequest,
// ErrNoFileFound) возвращаются из пакета multipart без изменений.
var (
	// ErrTooLarge — тело запроса превышает RM_MAX_UPLOAD_SIZE.
	ErrTooLarge = errors.New("файл слишком большой")
	// ErrNotFoundOrExpired — ссылка неизвестна, уже использована или истекла.
	ErrNotFoundOrExpired = errors.New("файл не найден или срок его хранения истёк")
	// ErrStorageFailure — ошибка записи или чтения хранилища.
	ErrStorageFailure = errors.New("ошибка хранилища")
	// ErrSessionGone — сессия сброшена во время загрузки.
	ErrSessionGone = errors.New("сессия была сброшена во время загрузки")
)

// Причины удаления файла (label метрики rm_evictions_total).
const (
	reasonDownloaded   = "downloaded"
	reasonExpired      = "expired"
	reasonSessionReset = "session_reset"
	reasonMissingBlob  = "missing_blob"
)

// Prometheus метрики сервисов.
var (
	uploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_uploads_total",
		Help: "Общее количество успешных загрузок",
	})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_upload_bytes_total",
		Help: "Суммарный объём загруженных файлов в байтах",
	})

	// downloadsTotal — скачивания по результату: completed, aborted.
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rm_downloads_total",
		Help: "Общее количество скачиваний по результату",
	}, []string{"result"})

	evictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rm_evictions_total",
		Help: "Общее количество удалённых файлов по причине",
	}, []string{"reason"})

	evictErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_evict_errors_total",
		Help: "Ошибки удаления байтов из хранилища",
	})

	activeFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rm_active_files",
		Help: "Количество файлов, ожидающих скачивания",
	})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rm_active_sessions",
		Help: "Количество сессий",
	})

	storedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rm_stored_bytes",
		Help: "Суммарный размер хранимых файлов в байтах",
	})

	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_sweep_runs_total",
		Help: "Общее количество запусков очистки",
	})

	sweepSessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_sweep_sessions_removed_total",
		Help: "Общее количество удалённых простаивающих сессий",
	})

	sweepOrphansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_sweep_orphans_deleted_total",
		Help: "Общее количество удалённых объектов без метаданных",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rm_sweep_duration_seconds",
		Help:    "Длительность очистки в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)
