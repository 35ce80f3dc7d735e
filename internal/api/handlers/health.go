// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bigkaa/goartstore/relay-module/internal/config"
	"github.com/bigkaa/goartstore/relay-module/internal/service"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// storageCheckTimeout — таймаут проверки хранилища.
const storageCheckTimeout = 3 * time.Second

// ReadinessSource — источник данных для readiness probe.
type ReadinessSource interface {
	CheckStorage(ctx context.Context) error
	Stats() service.Stats
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	backend string
	src     ReadinessSource
}

// NewHealthHandler создаёт обработчик health endpoints.
// backend — имя бэкенда хранения для ответа readiness.
func NewHealthHandler(src ReadinessSource, backend string) *HealthHandler {
	return &HealthHandler{
		version: config.Version,
		backend: backend,
		src:     src,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "relay-module",
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет хранилище байтов: запись на диск или доступность бакета.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	storageCheck := h.checkStorage(r.Context())
	if storageCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	stats := h.src.Stats()
	resp := map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "relay-module",
		"checks": map[string]any{
			"storage": storageCheck,
		},
		"stats": map[string]any{
			"files":        stats.Files,
			"sessions":     stats.Sessions,
			"stored_bytes": stats.StoredBytes,
			"stored":       humanize.IBytes(uint64(stats.StoredBytes)),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(resp)
}

// checkStorage проверяет хранилище байтов.
func (h *HealthHandler) checkStorage(ctx context.Context) map[string]any {
	ctx, cancel := context.WithTimeout(ctx, storageCheckTimeout)
	defer cancel()

	start := time.Now()
	if err := h.src.CheckStorage(ctx); err != nil {
		return map[string]any{
			"status":  statusFail,
			"backend": h.backend,
			"message": "хранилище недоступно",
		}
	}
	return map[string]any{
		"status":     "ok",
		"backend":    h.backend,
		"latency_ms": time.Since(start).Milliseconds(),
	}
}
