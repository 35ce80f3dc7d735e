// Точка входа Relay Module — сервиса одноразовой передачи файлов.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/bigkaa/goartstore/relay-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/relay-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/relay-module/internal/config"
	"github.com/bigkaa/goartstore/relay-module/internal/ident"
	"github.com/bigkaa/goartstore/relay-module/internal/server"
	"github.com/bigkaa/goartstore/relay-module/internal/service"
	"github.com/bigkaa/goartstore/relay-module/internal/storage/filestore"
	"github.com/bigkaa/goartstore/relay-module/internal/storage/index"
	"github.com/bigkaa/goartstore/relay-module/internal/storage/s3store"
	"github.com/bigkaa/goartstore/relay-module/internal/ui/static"
)

func main() {
	// .env — только для локального запуска
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Relay Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("storage_backend", cfg.StorageBackend),
		slog.String("max_upload_size", humanize.IBytes(uint64(cfg.MaxUploadSize))),
		slog.String("file_ttl", cfg.FileTTL.String()),
		slog.String("session_ttl", cfg.SessionTTL.String()),
	)

	// --- Инициализация компонентов ---

	// 1. Хранилище байтов
	blobs, err := newBlobStore(cfg, logger)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Индексы файлов и сессий
	files := index.NewFileIndex(logger)
	sessions := index.NewSessionIndex(ident.NewSessionID, logger)

	// 3. Сервисы
	transferSvc := service.NewTransferService(blobs, files, sessions, cfg.MaxUploadSize, cfg.FileTTL, logger)
	sweepSvc := service.NewSweepService(transferSvc, cfg.SessionTTL, cfg.OrphanGrace, cfg.SweepInterval, logger)

	// Первый прогон очистки (orphan-объекты от прошлого запуска) выполняется сразу
	sweepSvc.Start(context.Background())

	// 4. Handlers
	cookie := middleware.SessionCookie{
		Name:   middleware.DefaultSessionCookie,
		MaxAge: cfg.SessionTTL,
		Secure: cfg.CookieSecure,
	}
	staticHandler, err := handlers.NewStaticHandler(static.FS())
	if err != nil {
		logger.Error("Ошибка загрузки веб-интерфейса", slog.String("error", err.Error()))
		os.Exit(1)
	}

	router := server.NewRouter(server.Deps{
		Files:    handlers.NewFilesHandler(transferSvc, cookie, cfg.PublicURL, logger),
		Health:   handlers.NewHealthHandler(transferSvc, cfg.StorageBackend),
		Static:   staticHandler,
		Sessions: sessions,
		Cookie:   cookie,
	}, logger)

	// 5. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, router)
	srv.OnShutdown(sweepSvc.Stop)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Relay Module остановлен")
}

// newBlobStore создаёт хранилище байтов по RM_STORAGE_BACKEND.
func newBlobStore(cfg *config.Config, logger *slog.Logger) (service.BlobStore, error) {
	switch cfg.StorageBackend {
	case config.BackendS3:
		store, err := s3store.New(s3store.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Prefix:    cfg.S3Prefix,
			PathStyle: cfg.S3PathStyle,
		}, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Хранилище S3 настроено",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("endpoint", cfg.S3Endpoint),
		)
		return store, nil
	default:
		store, err := filestore.New(afero.NewOsFs(), cfg.DataDir)
		if err != nil {
			return nil, err
		}
		logger.Info("Хранилище на диске настроено",
			slog.String("data_dir", cfg.DataDir),
		)
		return store, nil
	}
}
