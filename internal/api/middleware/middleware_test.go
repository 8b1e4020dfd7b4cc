package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/health/live", "/health/live"},
		{"/health/ready", "/health/ready"},
		{"/metrics", "/metrics"},
		{"/watch/AgAD1", "/watch/{id}"},
		{"/stream/AgADBAADr6cxG", "/stream/{id}"},
		{"/stream/", "other"},
		{"/stream/a/b", "other"},
		{"/wp-admin.php", "other"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q): хотели %q, получили %q", tt.path, tt.want, got)
		}
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("0123"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/stream/AgAD1", nil)
	req.Header.Set("Range", "bytes=0-3")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{"status=206", "bytes=4", `range="bytes=0-3"`, "path=/stream/AgAD1"} {
		if !strings.Contains(out, want) {
			t.Errorf("В логе нет %q: %s", want, out)
		}
	}
}

func TestRequestLogger_ErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(buf.String(), "level=ERROR") {
		t.Errorf("Ожидался уровень ERROR для 500: %s", buf.String())
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/stream/AgAD1", http.StatusPartialContent, slog.LevelInfo},
		{"/watch/AgAD1", http.StatusNotFound, slog.LevelWarn},
		{"/health/ready", http.StatusOK, slog.LevelDebug},
		{"/health/ready", http.StatusServiceUnavailable, slog.LevelError},
		{"/metrics", http.StatusOK, slog.LevelDebug},
		{"/healthz", http.StatusOK, slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := levelFor(tt.path, tt.status); got != tt.want {
			t.Errorf("levelFor(%q, %d) = %v, хотели %v", tt.path, tt.status, got, tt.want)
		}
	}
}

func TestMetricsMiddleware_PassThrough(t *testing.T) {
	handler := MetricsMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream/x", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Статус: хотели 404, получили %d", rec.Code)
	}
}
