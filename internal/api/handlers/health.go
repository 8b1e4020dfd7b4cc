// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bigkaa/krstream/internal/catalog"
	"github.com/bigkaa/krstream/internal/config"
	"github.com/bigkaa/krstream/internal/storage/filestore"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// readyCheckTimeout — таймаут проверки готовности каталога.
const readyCheckTimeout = 3 * time.Second

// DependencyHealth — состояние внешних зависимостей (topologymetrics).
type DependencyHealth interface {
	Health() map[string]bool
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// dataDir — путь к директории данных (для проверки FS)
	dataDir string
	// walDir — путь к директории WAL
	walDir string
	// catalog — проверка готовности каталога (nil — не проверяется)
	catalog catalog.ReadinessChecker
	// deps — состояние зависимостей (nil — не отображается)
	deps DependencyHealth
}

// NewHealthHandler создаёт обработчик health endpoints.
// cat и deps могут быть nil.
func NewHealthHandler(dataDir, walDir string, cat catalog.ReadinessChecker, deps DependencyHealth) *HealthHandler {
	return &HealthHandler{
		version: config.Version,
		dataDir: dataDir,
		walDir:  walDir,
		catalog: cat,
		deps:    deps,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "krstream",
	})
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: файловая система, WAL директория, готовность каталога.
// Недоступный Bot API помечает сервис как degraded: веб-каталог
// продолжает работать без бота.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	fsCheck := checkWritable(h.dataDir, "Директория данных")
	if fsCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	} else if h.dataDir != "" {
		if total, available, err := filestore.DiskUsage(h.dataDir); err == nil {
			fsCheck["total_bytes"] = total
			fsCheck["available_bytes"] = available
			fsCheck["available"] = humanize.IBytes(uint64(available))
		}
	}

	walCheck := checkWritable(h.walDir, "Директория WAL")
	if walCheck["status"] != "ok" && overallStatus != statusFail {
		overallStatus = "degraded"
	}

	catalogCheck := h.checkCatalog(r.Context())
	if catalogCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	checks := map[string]any{
		"filesystem": fsCheck,
		"wal":        walCheck,
		"catalog":    catalogCheck,
	}

	if h.deps != nil {
		deps := h.deps.Health()
		checks["dependencies"] = deps
		for _, ok := range deps {
			if !ok && overallStatus != statusFail {
				overallStatus = "degraded"
			}
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "krstream",
		"checks":    checks,
	})
}

func (h *HealthHandler) checkCatalog(ctx context.Context) map[string]any {
	if h.catalog == nil {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, readyCheckTimeout)
	defer cancel()

	if err := h.catalog.Ready(ctx); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": err.Error(),
		}
	}
	return map[string]any{"status": "ok"}
}

// checkWritable проверяет доступность директории на запись.
func checkWritable(dir, title string) map[string]any {
	if dir == "" {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	testFile := filepath.Join(dir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": title + " недоступна для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return map[string]any{"status": "ok"}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
