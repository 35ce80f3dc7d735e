// sweep.go — сервис фоновой очистки.
//
// Каждый цикл выполняет три фазы:
//  1. Удаляет файлы с истёкшим сроком хранения (через evict)
//  2. Удаляет пустые сессии, простаивающие дольше RM_SESSION_TTL
//  3. Удаляет объекты хранилища без записи в индексе старше RM_ORPHAN_GRACE
//
// Запускается как горутина с периодическим тикером (RM_SWEEP_INTERVAL),
// первый цикл — сразу при старте, что заодно подчищает байты,
// оставшиеся от предыдущего запуска процесса.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SweepResult — результат одного цикла очистки.
type SweepResult struct {
	// ExpiredFiles — удалено файлов с истёкшим сроком
	ExpiredFiles int
	// StaleSessions — удалено простаивающих сессий
	StaleSessions int
	// OrphansDeleted — удалено объектов без метаданных
	OrphansDeleted int
	// Errors — ошибки при обработке (не прерывают цикл)
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// SweepService — сервис фоновой очистки.
type SweepService struct {
	transfer    *TransferService
	sessionTTL  time.Duration
	orphanGrace time.Duration
	interval    time.Duration
	logger      *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweepService создаёт сервис очистки.
func NewSweepService(
	transfer *TransferService,
	sessionTTL, orphanGrace, interval time.Duration,
	logger *slog.Logger,
) *SweepService {
	return &SweepService{
		transfer:    transfer,
		sessionTTL:  sessionTTL,
		orphanGrace: orphanGrace,
		interval:    interval,
		logger:      logger.With(slog.String("component", "sweeper")),
	}
}

// Start запускает фоновую горутину очистки.
// Вызывается один раз при старте приложения.
func (sw *SweepService) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	sw.cancel = cancel
	sw.done = make(chan struct{})

	go sw.run(sweepCtx)

	sw.logger.Info("Очистка запущена",
		slog.String("interval", sw.interval.String()),
		slog.String("session_ttl", sw.sessionTTL.String()),
	)
}

// Stop останавливает фоновую очистку и дожидается завершения
// текущего цикла.
func (sw *SweepService) Stop() {
	if sw.cancel == nil {
		return
	}
	sw.cancel()
	<-sw.done
	sw.logger.Info("Очистка остановлена")
}

// run — основной цикл фоновой горутины.
func (sw *SweepService) run(ctx context.Context) {
	defer close(sw.done)

	sw.RunOnce(ctx)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sw.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл очистки.
// Потокобезопасен: параллельные вызовы выполняются последовательно.
func (sw *SweepService) RunOnce(ctx context.Context) *SweepResult {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	start := time.Now()
	result := &SweepResult{}
	now := sw.transfer.now().UTC()

	// Фаза 1: истёкшие файлы
	for _, rec := range sw.transfer.files.Expired(now) {
		if sw.transfer.evict(ctx, rec.ID, reasonExpired) {
			result.ExpiredFiles++
		}
	}

	// Фаза 2: простаивающие пустые сессии
	result.StaleSessions = sw.transfer.sessions.SweepStale(now, sw.sessionTTL)

	// Фаза 3: объекты без метаданных
	orphans, errs := sw.reconcileOrphans(ctx, now)
	result.OrphansDeleted = orphans
	result.Errors = errs

	result.Duration = time.Since(start)

	sweepRunsTotal.Inc()
	sweepSessionsTotal.Add(float64(result.StaleSessions))
	sweepOrphansTotal.Add(float64(result.OrphansDeleted))
	sweepDurationSeconds.Observe(result.Duration.Seconds())
	sw.transfer.updateGauges()

	level := slog.LevelDebug
	if result.ExpiredFiles+result.StaleSessions+result.OrphansDeleted+result.Errors > 0 {
		level = slog.LevelInfo
	}
	sw.logger.Log(ctx, level, "Очистка завершена",
		slog.Int("expired_files", result.ExpiredFiles),
		slog.Int("stale_sessions", result.StaleSessions),
		slog.Int("orphans_deleted", result.OrphansDeleted),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}

// reconcileOrphans удаляет объекты хранилища, у которых нет записи
// в индексе. Рассматриваются только ключи, которые мог создать сервис. Свежие объекты не трогаются: между записью байтов и
// FileIndex.Put загрузка их ещё не зарегистрировала.
func (sw *SweepService) reconcileOrphans(ctx context.Context, now time.Time) (deleted, errs int) {
	blobs, err := sw.transfer.blobs.List(ctx)
	if err != nil {
		sw.logger.Error("Ошибка получения списка объектов хранилища",
			slog.String("error", err.Error()),
		)
		return 0, 1
	}

	for _, b := range blobs {
		// Чужие объекты в общей директории или бакете не трогаем
		if !isOwnKey(b.Key) {
			continue
		}
		rec, err := sw.transfer.files.Get(fileIDFromKey(b.Key))
		if err == nil && rec.StorageKey == b.Key {
			continue
		}
		if now.Sub(b.ModTime) < sw.orphanGrace {
			continue
		}

		if err := sw.transfer.blobs.Delete(ctx, b.Key); err != nil {
			sw.logger.Error("Ошибка удаления объекта без метаданных",
				slog.String("storage_key", b.Key),
				slog.String("error", err.Error()),
			)
			errs++
			continue
		}

		sw.logger.Debug("Удалён объект без метаданных",
			slog.String("storage_key", b.Key),
		)
		deleted++
	}
	return deleted, errs
}
