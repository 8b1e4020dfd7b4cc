// sweep.go — фоновая очистка директории данных.
//
// Очистка выполняет две задачи:
//  1. Удаляет временные файлы (.part) прерванных передач
//  2. Удаляет опубликованные файлы, на которые не ссылается ни одна запись каталога
//
// Записи каталога без файла на диске (missing_file) только считаются
// и логируются: восстановить файл очистка не может.
// Файлы моложе grace-периода и файлы pending WAL-транзакций не трогаются.
// Записи каталога очистка никогда не удаляет.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/krstream/internal/catalog"
	"github.com/bigkaa/krstream/internal/storage/filestore"
	"github.com/bigkaa/krstream/internal/storage/wal"
)

// Prometheus метрики очистки.
var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "krs_sweep_runs_total",
		Help: "Общее количество запусков очистки",
	})

	sweepFilesDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "krs_sweep_files_deleted_total",
		Help: "Общее количество файлов, удалённых очисткой",
	}, []string{"kind"})

	catalogMissingFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "krs_catalog_missing_files",
		Help: "Записи каталога, файл которых отсутствует на диске (по последней очистке)",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "krs_sweep_duration_seconds",
		Help:    "Длительность очистки в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// SweepResult — результат одного запуска очистки.
type SweepResult struct {
	// TempDeleted — удалённые временные файлы
	TempDeleted int
	// OrphansDeleted — удалённые файлы без записи в каталоге
	OrphansDeleted int
	// Errors — ошибки удаления
	Errors int
	// WALCleaned — удалённые завершённые WAL-записи
	WALCleaned int
	// MissingFiles — записи каталога без файла на диске
	MissingFiles []string
	Duration     time.Duration
}

// RecoverResult — результат восстановления после сбоя.
type RecoverResult struct {
	// Committed — транзакции, запись которых уже в каталоге
	Committed int
	// RolledBack — транзакции, файлы которых удалены
	RolledBack int
}

// SweepService — сервис очистки осиротевших файлов.
type SweepService struct {
	catalog   catalog.Store
	store     *filestore.FileStore
	walEngine *wal.WAL
	interval  time.Duration
	grace     time.Duration
	logger    *slog.Logger

	// now подменяется в тестах
	now func() time.Time

	mu sync.Mutex // защита от параллельного запуска RunOnce
}

// NewSweepService создаёт сервис очистки.
func NewSweepService(
	cat catalog.Store,
	store *filestore.FileStore,
	walEngine *wal.WAL,
	interval time.Duration,
	grace time.Duration,
	logger *slog.Logger,
) *SweepService {
	return &SweepService{
		catalog:   cat,
		store:     store,
		walEngine: walEngine,
		interval:  interval,
		grace:     grace,
		logger:    logger.With(slog.String("component", "sweep")),
		now:       time.Now,
	}
}

// Run выполняет очистку сразу и затем с периодом interval до отмены ctx.
func (s *SweepService) Run(ctx context.Context) error {
	s.logger.Info("Очистка запущена",
		slog.String("interval", s.interval.String()),
		slog.String("grace", s.grace.String()),
	)

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("Ошибка очистки", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Очистка остановлена")
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("Ошибка очистки", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce выполняет один цикл очистки.
//
// Порядок чтения важен: сначала pending транзакции, затем каталог,
// затем директория. Файл, опубликованный после чтения pending,
// моложе grace-периода; транзакция, завершённая после него, уже
// оставила запись в каталоге.
func (s *SweepService) RunOnce(ctx context.Context) (*SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result := &SweepResult{}

	pending, err := s.walEngine.Pending()
	if err != nil {
		return nil, fmt.Errorf("чтение WAL: %w", err)
	}
	protected := make(map[string]struct{}, len(pending)*2)
	for _, e := range pending {
		protected[e.TempName] = struct{}{}
		if e.StoragePath != "" {
			protected[e.StoragePath] = struct{}{}
		}
	}

	records, err := s.catalog.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("чтение каталога: %w", err)
	}
	referenced := make(map[string]struct{}, len(records))
	for _, rec := range records {
		referenced[rec.StorageLocation] = struct{}{}
	}

	entries, err := s.store.Scan()
	if err != nil {
		return nil, fmt.Errorf("сканирование директории данных: %w", err)
	}

	onDisk := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if !entry.Temp {
			onDisk[entry.Name] = struct{}{}
		}
	}
	for _, rec := range records {
		if _, ok := onDisk[rec.StorageLocation]; ok {
			continue
		}
		result.MissingFiles = append(result.MissingFiles, rec.ID)
		s.logger.Warn("Файл записи каталога отсутствует",
			slog.String("media_id", rec.ID),
			slog.String("storage_location", rec.StorageLocation),
		)
	}
	catalogMissingFiles.Set(float64(len(result.MissingFiles)))

	cutoff := s.now().Add(-s.grace)
	for _, entry := range entries {
		if _, ok := protected[entry.Name]; ok {
			continue
		}
		if !entry.ModTime.Before(cutoff) {
			continue
		}

		kind := "temp"
		if !entry.Temp {
			if _, ok := referenced[entry.Name]; ok {
				continue
			}
			kind = "orphan"
		}

		if err := s.store.DeleteFile(entry.Name); err != nil {
			s.logger.Error("Ошибка удаления файла",
				slog.String("name", entry.Name),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}

		sweepFilesDeletedTotal.WithLabelValues(kind).Inc()
		if kind == "temp" {
			result.TempDeleted++
		} else {
			result.OrphansDeleted++
		}
		s.logger.Info("Удалён осиротевший файл",
			slog.String("name", entry.Name),
			slog.String("kind", kind),
			slog.Int64("size", entry.Size),
			slog.Time("mod_time", entry.ModTime),
		)
	}

	cleaned, err := s.walEngine.CleanCommitted()
	if err != nil {
		s.logger.Warn("Ошибка очистки WAL", slog.String("error", err.Error()))
	}
	result.WALCleaned = cleaned

	result.Duration = time.Since(start)
	sweepRunsTotal.Inc()
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	s.logger.Info("Очистка завершена",
		slog.Int("temp_deleted", result.TempDeleted),
		slog.Int("orphans_deleted", result.OrphansDeleted),
		slog.Int("errors", result.Errors),
		slog.Int("wal_cleaned", result.WALCleaned),
		slog.Int("missing_files", len(result.MissingFiles)),
		slog.Duration("duration", result.Duration),
	)

	return result, nil
}

// Recover завершает транзакции, прерванные аварийной остановкой.
// Вызывается при старте до приёма новых загрузок.
//
// Если запись каталога уже ссылается на опубликованный файл, транзакция
// коммитится. Иначе временный и опубликованный файлы удаляются,
// транзакция откатывается.
func (s *SweepService) Recover(ctx context.Context) (*RecoverResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.walEngine.RecoverPending()
	if err != nil {
		return nil, err
	}

	result := &RecoverResult{}
	for _, entry := range pending {
		if err := s.store.DeleteFile(entry.TempName); err != nil {
			s.logger.Warn("Не удалось удалить временный файл",
				slog.String("name", entry.TempName),
				slog.String("error", err.Error()),
			)
		}

		if entry.StoragePath != "" {
			rec, err := s.catalog.Get(ctx, entry.MediaID)
			if err != nil {
				return result, fmt.Errorf("чтение каталога при восстановлении %s: %w", entry.MediaID, err)
			}
			if rec != nil && rec.StorageLocation == entry.StoragePath {
				if err := s.walEngine.Commit(entry.TransactionID); err != nil {
					return result, err
				}
				result.Committed++
				continue
			}
			if err := s.store.DeleteFile(entry.StoragePath); err != nil {
				s.logger.Warn("Не удалось удалить неопубликованный файл",
					slog.String("name", entry.StoragePath),
					slog.String("error", err.Error()),
				)
			}
		}

		if err := s.walEngine.Rollback(entry.TransactionID); err != nil {
			return result, err
		}
		result.RolledBack++
	}

	if len(pending) > 0 {
		s.logger.Info("Восстановление после сбоя завершено",
			slog.Int("committed", result.Committed),
			slog.Int("rolled_back", result.RolledBack),
		)
	}
	return result, nil
}
