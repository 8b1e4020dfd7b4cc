package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/krstream/internal/catalog"
	"github.com/bigkaa/krstream/internal/domain/model"
	"github.com/bigkaa/krstream/internal/service"
	"github.com/bigkaa/krstream/internal/storage/filestore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupRouter собирает маршруты поверх временного каталога.
func setupRouter(t *testing.T) (chi.Router, *catalog.FileCatalog, *filestore.FileStore) {
	t.Helper()

	root := t.TempDir()
	cat, err := catalog.NewFileCatalog(root+"/catalog", testLogger())
	if err != nil {
		t.Fatalf("NewFileCatalog: %v", err)
	}
	store, err := filestore.New(root + "/data")
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}

	catalogHandler := NewCatalogHandler(cat, testLogger())
	streamHandler := NewStreamHandler(service.NewStreamService(cat, store, testLogger()))

	r := chi.NewRouter()
	r.Get("/", catalogHandler.HandleIndex)
	r.Get("/watch/{id}", catalogHandler.HandleWatch)
	r.Get("/stream/{id}", streamHandler.Stream)
	return r, cat, store
}

func putMedia(t *testing.T, cat *catalog.FileCatalog, store *filestore.FileStore, id, name, body string) {
	t.Helper()
	if err := os.WriteFile(store.FullPath(name), []byte(body), 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	err := cat.Put(context.Background(), &model.MediaRecord{
		ID:              id,
		DisplayName:     name,
		SizeBytes:       int64(len(body)),
		ThumbnailRef:    "https://example.com/poster.jpg",
		StorageLocation: name,
		ContentType:     "video/mp4",
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
}

func TestHandleIndex_Empty(t *testing.T) {
	r, _, _ := setupRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Статус: хотели 200, получили %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Nothing uploaded yet") {
		t.Error("Пустой каталог должен показывать заглушку")
	}
}

func TestHandleIndex_Ordered(t *testing.T) {
	r, cat, store := setupRouter(t)
	putMedia(t, cat, store, "AgAD2", "B.mp4", "b")
	putMedia(t, cat, store, "AgAD3", "C.mp4", "c")
	putMedia(t, cat, store, "AgAD1", "A.mp4", "a")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	body := rec.Body.String()
	a, b, c := strings.Index(body, "A.mp4"), strings.Index(body, "B.mp4"), strings.Index(body, "C.mp4")
	if a < 0 || !(a < b && b < c) {
		t.Errorf("Карточки должны идти в порядке A, B, C: %d %d %d", a, b, c)
	}
	if strings.Contains(body, "storage_location") || strings.Contains(body, store.DataDir()) {
		t.Error("Страница не должна раскрывать расположение файлов")
	}
}

func TestHandleWatch(t *testing.T) {
	r, cat, store := setupRouter(t)
	putMedia(t, cat, store, "AgAD1", "movie.mp4", "data")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/watch/AgAD1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Статус: хотели 200, получили %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `src="/stream/AgAD1"`) {
		t.Error("Страница просмотра должна ссылаться на /stream/{id}")
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/watch/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Статус: хотели 404, получили %d", rec.Code)
	}
}

func TestStream_RangeAndNotFound(t *testing.T) {
	r, cat, store := setupRouter(t)
	putMedia(t, cat, store, "AgAD1", "movie.mp4", "0123456789")

	req := httptest.NewRequest(http.MethodGet, "/stream/AgAD1", nil)
	req.Header.Set("Range", "bytes=2-4")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusPartialContent || rec.Body.String() != "234" {
		t.Errorf("Ожидался 206 с телом 234, получили %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Статус: хотели 404, получили %d", rec.Code)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Ответ 404 не в формате JSON: %v", err)
	}
	if body.Error.Code != "NOT_FOUND" {
		t.Errorf("Код ошибки: хотели NOT_FOUND, получили %s", body.Error.Code)
	}
}

type readyFunc func(ctx context.Context) error

func (f readyFunc) Ready(ctx context.Context) error { return f(ctx) }

type staticDeps map[string]bool

func (d staticDeps) Health() map[string]bool { return d }

func TestHealthLive(t *testing.T) {
	h := NewHealthHandler("", "", nil, nil)
	rec := httptest.NewRecorder()
	h.HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Статус: хотели 200, получили %d", rec.Code)
	}
}

func TestHealthReady(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name       string
		dataDir    string
		ready      error
		deps       DependencyHealth
		wantCode   int
		wantStatus string
	}{
		{"всё в порядке", dir, nil, nil, http.StatusOK, "ok"},
		{"каталог не готов", dir, catalog.ErrNotReady, nil, http.StatusServiceUnavailable, statusFail},
		{"нет директории данных", dir + "/missing/sub", nil, nil, http.StatusServiceUnavailable, statusFail},
		{"Bot API недоступен", dir, nil, staticDeps{"telegram-bot-api:api.telegram.org:443": false},
			http.StatusOK, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ready := tt.ready
			h := NewHealthHandler(tt.dataDir, dir, readyFunc(func(context.Context) error { return ready }), tt.deps)

			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("Статус: хотели %d, получили %d", tt.wantCode, rec.Code)
			}
			var body map[string]any
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if body["status"] != tt.wantStatus {
				t.Errorf("status: хотели %s, получили %v", tt.wantStatus, body["status"])
			}
		})
	}
}

func TestHealthReady_CatalogErrorMessage(t *testing.T) {
	h := NewHealthHandler("", "", readyFunc(func(context.Context) error {
		return errors.New("pool closed")
	}), nil)

	rec := httptest.NewRecorder()
	h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if !strings.Contains(rec.Body.String(), "pool closed") {
		t.Errorf("Причина недоступности должна попасть в ответ: %s", rec.Body.String())
	}
}

func TestHealthReady_DiskUsage(t *testing.T) {
	h := NewHealthHandler(t.TempDir(), "", nil, nil)

	rec := httptest.NewRecorder()
	h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	var body struct {
		Checks struct {
			Filesystem map[string]any `json:"filesystem"`
		} `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := body.Checks.Filesystem["available_bytes"]; !ok {
		t.Errorf("Нет available_bytes в проверке файловой системы: %v", body.Checks.Filesystem)
	}
}
