// ingest.go — приём медиафайлов от оператора с WAL-транзакциями.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/krstream/internal/catalog"
	"github.com/bigkaa/krstream/internal/config"
	"github.com/bigkaa/krstream/internal/domain/model"
	"github.com/bigkaa/krstream/internal/storage/filestore"
	"github.com/bigkaa/krstream/internal/storage/wal"
)

// Prometheus метрики приёма.
var (
	ingestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "krs_ingest_total",
		Help: "Общее количество попыток загрузки по исходу",
	}, []string{"outcome"})

	ingestBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "krs_ingest_bytes_total",
		Help: "Общий объём принятых байт",
	})

	ingestDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "krs_ingest_duration_seconds",
		Help:    "Длительность передачи медиафайла в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
	})

	ingestSideEffectFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "krs_ingest_side_effect_failures_total",
		Help: "Ошибки резервного копирования и уведомлений (не влияют на загрузку)",
	}, []string{"sink"})
)

// Исходы загрузки для метрик.
const (
	outcomeCreated        = "created"
	outcomeExisting       = "existing"
	outcomeUnauthorized   = "unauthorized"
	outcomeInvalidPayload = "invalid_payload"
	outcomeTransferFailed = "transfer_failure"
)

// Attachment — вложение входящего сообщения.
type Attachment struct {
	// UniqueID — стабильный уникальный идентификатор файла на платформе
	UniqueID string
	// FileName — оригинальное имя файла (может быть пустым)
	FileName string
	// MimeType — MIME-тип, заявленный отправителем
	MimeType string
	// DeclaredSize — размер, заявленный платформой. Для записи не используется.
	DeclaredSize int64
	// Open открывает поток байт вложения
	Open func(ctx context.Context) (io.ReadCloser, error)
}

// IngestRequest — входящее сообщение с вложением.
type IngestRequest struct {
	SenderID int64
	Video    *Attachment
	Document *Attachment
}

// Mirror — резервная копия опубликованного файла во внешний канал.
type Mirror interface {
	Mirror(ctx context.Context, rec *model.MediaRecord, fullPath string) error
}

// Notifier — текстовое уведомление в журнал событий.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// IngestService — сервис приёма медиафайлов.
type IngestService struct {
	cfg       *config.Config
	catalog   catalog.Store
	store     *filestore.FileStore
	walEngine *wal.WAL
	mirror    Mirror
	notifier  Notifier
	logger    *slog.Logger
}

// NewIngestService создаёт сервис приёма. mirror и notifier могут быть nil.
func NewIngestService(
	cfg *config.Config,
	cat catalog.Store,
	store *filestore.FileStore,
	walEngine *wal.WAL,
	mirror Mirror,
	notifier Notifier,
	logger *slog.Logger,
) *IngestService {
	return &IngestService{
		cfg:       cfg,
		catalog:   cat,
		store:     store,
		walEngine: walEngine,
		mirror:    mirror,
		notifier:  notifier,
		logger:    logger.With(slog.String("component", "ingest_service")),
	}
}

// Ingest принимает вложение оператора и добавляет его в каталог.
//
// Поток:
//  1. Проверка отправителя (до любого I/O)
//  2. Выбор вложения: видео, иначе документ
//  3. Повтор уже принятого id — возврат существующей записи
//  4. WAL StartTransaction → SaveFile (temp → fsync → link) → SetStoragePath
//  5. catalog.Put → WAL Commit
//  6. Резервная копия и уведомление (best-effort)
//
// При ошибке опубликованный файл удаляется, WAL откатывается.
func (s *IngestService) Ingest(ctx context.Context, req IngestRequest) (*model.MediaRecord, error) {
	if req.SenderID != s.cfg.OperatorID {
		ingestTotal.WithLabelValues(outcomeUnauthorized).Inc()
		s.logger.Warn("Загрузка от неавторизованного отправителя",
			slog.Int64("sender_id", req.SenderID),
		)
		return nil, unauthorized()
	}

	att := req.Video
	if att == nil {
		att = req.Document
	}
	if att == nil || strings.TrimSpace(att.UniqueID) == "" || att.Open == nil {
		ingestTotal.WithLabelValues(outcomeInvalidPayload).Inc()
		return nil, invalidPayload("", nil)
	}
	if att.DeclaredSize > s.cfg.MaxFileSize {
		ingestTotal.WithLabelValues(outcomeInvalidPayload).Inc()
		return nil, invalidPayload(
			fmt.Sprintf("❌ File is too large (%s, max %s)",
				humanize.IBytes(uint64(att.DeclaredSize)), humanize.IBytes(uint64(s.cfg.MaxFileSize))),
			fmt.Errorf("заявленный размер %d превышает лимит %d", att.DeclaredSize, s.cfg.MaxFileSize),
		)
	}

	existing, err := s.catalog.Get(ctx, att.UniqueID)
	if err != nil {
		ingestTotal.WithLabelValues(outcomeTransferFailed).Inc()
		s.logger.Error("Ошибка чтения каталога", slog.String("id", att.UniqueID), slog.String("error", err.Error()))
		return nil, transferFailure("", err)
	}
	if existing != nil {
		ingestTotal.WithLabelValues(outcomeExisting).Inc()
		s.logger.Info("Повторная загрузка уже принятого файла",
			slog.String("id", existing.ID),
			slog.String("storage_location", existing.StorageLocation),
		)
		return existing, nil
	}

	start := time.Now()
	rec, fullPath, created, err := s.transfer(ctx, att)
	ingestDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		ingestTotal.WithLabelValues(outcomeTransferFailed).Inc()
		s.logger.Error("Ошибка загрузки",
			slog.String("id", att.UniqueID),
			slog.String("filename", att.FileName),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if !created {
		ingestTotal.WithLabelValues(outcomeExisting).Inc()
		return rec, nil
	}

	ingestTotal.WithLabelValues(outcomeCreated).Inc()
	ingestBytesTotal.Add(float64(rec.SizeBytes))
	s.logger.Info("Файл загружен",
		slog.String("id", rec.ID),
		slog.String("display_name", rec.DisplayName),
		slog.String("storage_location", rec.StorageLocation),
		slog.Int64("size", rec.SizeBytes),
		slog.Duration("duration", time.Since(start)),
	)

	s.publish(ctx, rec, fullPath)
	return rec, nil
}

// transfer записывает вложение на диск и публикует запись в каталоге.
// created = false, если конкурентная загрузка того же id успела раньше:
// тогда возвращается запись победителя, а собственный файл удаляется.
func (s *IngestService) transfer(ctx context.Context, att *Attachment) (rec *model.MediaRecord, fullPath string, created bool, err error) {
	id := att.UniqueID
	tempName := filestore.TempName(id)

	walEntry, err := s.walEngine.StartTransaction(wal.OpIngest, id, tempName)
	if err != nil {
		return nil, "", false, transferFailure("", fmt.Errorf("WAL: %w", err))
	}
	txID := walEntry.TransactionID

	var published string
	rollback := func() {
		if published != "" {
			if delErr := s.store.DeleteFile(published); delErr != nil {
				s.logger.Error("Ошибка удаления файла при откате",
					slog.String("storage_path", published),
					slog.String("error", delErr.Error()),
				)
			}
		}
		if rbErr := s.walEngine.Rollback(txID); rbErr != nil {
			s.logger.Error("Ошибка отката WAL",
				slog.String("tx_id", txID),
				slog.String("error", rbErr.Error()),
			)
		}
	}

	body, err := att.Open(ctx)
	if err != nil {
		rollback()
		return nil, "", false, transferFailure("", fmt.Errorf("открытие вложения: %w", err))
	}
	defer body.Close()

	candidates := filestore.CandidateNames(att.FileName, id, att.MimeType)
	saved, err := s.store.SaveFile(ctx, body, tempName, candidates, s.cfg.MaxFileSize)
	if err != nil {
		rollback()
		if errors.Is(err, filestore.ErrTooLarge) {
			return nil, "", false, transferFailure(
				fmt.Sprintf("❌ File is too large (max %s)", humanize.IBytes(uint64(s.cfg.MaxFileSize))), err)
		}
		return nil, "", false, transferFailure("", err)
	}
	published = saved.StoragePath

	if err := s.walEngine.SetStoragePath(txID, saved.StoragePath); err != nil {
		rollback()
		return nil, "", false, transferFailure("", fmt.Errorf("WAL: %w", err))
	}

	rec = &model.MediaRecord{
		ID:              id,
		DisplayName:     displayName(att.FileName, id),
		SizeBytes:       saved.Size,
		ThumbnailRef:    s.cfg.ThumbnailPlaceholder,
		StorageLocation: saved.StoragePath,
		ContentType:     att.MimeType,
		CreatedAt:       time.Now().UTC(),
	}

	err = s.catalog.Put(ctx, rec)
	if errors.Is(err, catalog.ErrDuplicateID) {
		// Гонка за id: побеждает уже опубликованная запись
		winner, getErr := s.catalog.Get(ctx, id)
		rollback()
		if getErr != nil || winner == nil {
			return nil, "", false, transferFailure("", fmt.Errorf("запись-победитель %s недоступна: %v", id, getErr))
		}
		s.logger.Info("Конкурентная загрузка того же файла, используется существующая запись",
			slog.String("id", id),
			slog.String("storage_location", winner.StorageLocation),
		)
		return winner, "", false, nil
	}
	if err != nil {
		rollback()
		return nil, "", false, transferFailure("", fmt.Errorf("запись в каталог: %w", err))
	}

	if err := s.walEngine.Commit(txID); err != nil {
		// Запись уже в каталоге: незакрытая транзакция будет
		// закоммичена при восстановлении
		s.logger.Warn("Ошибка коммита WAL",
			slog.String("tx_id", txID),
			slog.String("error", err.Error()),
		)
	}

	return rec, saved.FullPath, true, nil
}

// publish отправляет резервную копию и уведомление. Ошибки только логируются.
func (s *IngestService) publish(ctx context.Context, rec *model.MediaRecord, fullPath string) {
	if s.mirror != nil {
		if err := s.mirror.Mirror(ctx, rec, fullPath); err != nil {
			ingestSideEffectFailuresTotal.WithLabelValues("mirror").Inc()
			s.logger.Warn("Ошибка резервного копирования",
				slog.String("id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.notifier != nil {
		text := fmt.Sprintf("🆕 New movie uploaded: %s (%s)", rec.DisplayName, humanize.IBytes(uint64(rec.SizeBytes)))
		if s.cfg.PublicURL != "" {
			text += "\n" + s.cfg.WatchURL(rec.ID)
		}
		if err := s.notifier.Notify(ctx, text); err != nil {
			ingestSideEffectFailuresTotal.WithLabelValues("notify").Inc()
			s.logger.Warn("Ошибка отправки уведомления",
				slog.String("id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// displayName возвращает имя для каталога: оригинальное имя файла
// или заглушку с id.
func displayName(fileName, id string) string {
	name := strings.TrimSpace(fileName)
	if name == "" {
		return "Untitled " + id
	}
	return name
}
