// Пакет server — HTTP-сервер Relay Module с TLS и graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/goartstore/relay-module/internal/api/handlers"
	"github.com/bigkaa/goartstore/relay-module/internal/api/middleware"
	"github.com/bigkaa/goartstore/relay-module/internal/config"
)

// Deps — обработчики и источники, из которых собирается роутер.
type Deps struct {
	Files    *handlers.FilesHandler
	Health   *handlers.HealthHandler
	Static   http.Handler
	Sessions middleware.SessionStore
	Cookie   middleware.SessionCookie
}

// NewRouter собирает chi-роутер со всеми маршрутами и middleware.
func NewRouter(deps Deps, logger *slog.Logger) http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(chimw.Recoverer)
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.Metrics())
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     []string{http.MethodGet, http.MethodPost, http.MethodHead, http.MethodOptions},
		AllowedHeaders:     []string{"*"},
		ExposedHeaders:     []string{"Content-Disposition", "Content-Length", middleware.RequestIDHeader},
		MaxAge:             300,
		OptionsPassthrough: true,
	}))
	router.Use(middleware.AnyOrigin)
	router.Use(middleware.Preflight)

	// Health и метрики — без сессии
	router.Get("/health/live", deps.Health.HealthLive)
	router.Get("/health/ready", deps.Health.HealthReady)
	router.Handle("/metrics", promhttp.Handler())

	// Скачивание по ссылке не требует сессии
	router.Get("/download/{key}", deps.Files.Download)

	router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Session(deps.Sessions, deps.Cookie, logger))
		r.Get("/files", deps.Files.ListFiles)
		r.Post("/upload", deps.Files.Upload)
		r.Post("/reset-session", deps.Files.ResetSession)
	})

	// Веб-интерфейс
	router.Handle("/*", deps.Static)

	return router
}

// Server — HTTP-сервер Relay Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
	onShutdown []func()
}

// New создаёт HTTP-сервер с таймаутами из конфигурации.
func New(cfg *config.Config, logger *slog.Logger, handler http.Handler) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Настройка TLS
	if cfg.TLSEnabled() {
		srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "http_server")),
		cfg:        cfg,
	}
}

// OnShutdown регистрирует функцию, вызываемую после остановки HTTP-сервера.
func (s *Server) OnShutdown(fn func()) {
	s.onShutdown = append(s.onShutdown, fn)
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown с таймаутом
// RM_SHUTDOWN_TIMEOUT.
func (s *Server) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.run(ctx)
}

// run обслуживает запросы до отмены ctx или ошибки сервера.
func (s *Server) run(ctx context.Context) error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
			slog.Bool("tls", s.cfg.TLSEnabled()),
		)

		var err error
		if s.cfg.TLSEnabled() {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Получен сигнал завершения")
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	for _, fn := range s.onShutdown {
		fn()
	}

	s.logger.Info("HTTP-сервер остановлен")
	return serveErr
}
