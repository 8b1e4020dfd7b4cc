// Пакет server — HTTP-сервер KR Stream с graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/krstream/internal/api/handlers"
	"github.com/bigkaa/krstream/internal/api/middleware"
	"github.com/bigkaa/krstream/internal/config"
)

// Handlers — обработчики, монтируемые в роутер.
type Handlers struct {
	Catalog *handlers.CatalogHandler
	Stream  *handlers.StreamHandler
	Health  *handlers.HealthHandler
}

// Server — HTTP-сервер KR Stream.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, h Handlers) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(logger, h),
		ReadHeaderTimeout: 10 * time.Second,
		// WriteTimeout не задан: отдача фильма длится дольше любого разумного таймаута
		IdleTimeout: 120 * time.Second,
	}

	return &Server{
		httpServer:      srv,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          logger.With(slog.String("component", "http_server")),
	}
}

// NewRouter собирает маршруты:
//
//	GET  /               — каталог
//	GET  /watch/{id}     — страница просмотра
//	GET  /stream/{id}    — отдача с поддержкой Range (также HEAD)
//	GET  /health/live    — liveness probe
//	GET  /health/ready   — readiness probe
//	GET  /metrics        — Prometheus метрики
func NewRouter(logger *slog.Logger, h Handlers) chi.Router {
	router := chi.NewRouter()

	router.Use(chimw.Recoverer)
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())

	router.Get("/", h.Catalog.HandleIndex)
	router.Get("/watch/{id}", h.Catalog.HandleWatch)
	router.Get("/stream/{id}", h.Stream.Stream)
	router.Head("/stream/{id}", h.Stream.Stream)

	router.Get("/health/live", h.Health.HealthLive)
	router.Get("/health/ready", h.Health.HealthReady)
	router.Handle("/metrics", promhttp.Handler())

	return router
}

// Run запускает сервер и блокируется до отмены ctx или ошибки прослушивания.
// При отмене ctx выполняется graceful shutdown с таймаутом shutdownTimeout:
// незавершённые отдачи обрываются по его истечении.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен", slog.String("addr", s.httpServer.Addr))

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		_ = s.httpServer.Close()
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
