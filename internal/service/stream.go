// stream.go — отдача медиафайлов с поддержкой Range.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/krstream/internal/api/errors"
	"github.com/bigkaa/krstream/internal/catalog"
	"github.com/bigkaa/krstream/internal/httprange"
	"github.com/bigkaa/krstream/internal/storage/filestore"
)

// streamBlockSize — размер блока копирования тела ответа.
const streamBlockSize = 64 * 1024

// defaultContentType — тип для файлов без известного MIME.
const defaultContentType = "application/octet-stream"

// Prometheus метрики отдачи.
var (
	streamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "krs_stream_requests_total",
		Help: "Общее количество запросов на отдачу по исходу",
	}, []string{"result"})

	streamBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "krs_stream_bytes_total",
		Help: "Общий объём отданных байт",
	})
)

var blockPool = sync.Pool{
	New: func() any {
		buf := make([]byte, streamBlockSize)
		return &buf
	},
}

// StreamError — ошибка отдачи с HTTP-кодом.
type StreamError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// StreamService — сервис отдачи медиафайлов.
type StreamService struct {
	catalog catalog.Store
	store   *filestore.FileStore
	logger  *slog.Logger
}

// NewStreamService создаёт сервис отдачи.
func NewStreamService(cat catalog.Store, store *filestore.FileStore, logger *slog.Logger) *StreamService {
	return &StreamService{
		catalog: cat,
		store:   store,
		logger:  logger.With(slog.String("component", "stream_service")),
	}
}

// Serve отдаёт медиафайл клиенту.
//
// Исходы: 404 (ошибка возвращается вызывающему), 200 весь файл,
// 206 один диапазон, 416 диапазон за концом файла. Размер берётся
// из открытого дескриптора, а не из каталога. Тело копируется
// блоками по 64 КБ; обрыв соединения завершает копирование молча.
func (s *StreamService) Serve(w http.ResponseWriter, r *http.Request, id string) *StreamError {
	ctx := r.Context()

	rec, err := s.catalog.Get(ctx, id)
	if err != nil {
		s.logger.Error("Ошибка чтения каталога",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		streamRequestsTotal.WithLabelValues("error").Inc()
		return &StreamError{
			StatusCode: http.StatusInternalServerError,
			Code:       apierrors.CodeInternalError,
			Message:    "Каталог временно недоступен",
		}
	}
	if rec == nil {
		streamRequestsTotal.WithLabelValues("not_found").Inc()
		return notFound(id)
	}

	file, info, err := s.store.Open(rec.StorageLocation)
	if err != nil {
		level := slog.LevelWarn
		if !errors.Is(err, filestore.ErrNotFound) {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "Файл записи недоступен",
			slog.String("id", id),
			slog.String("storage_location", rec.StorageLocation),
			slog.String("error", err.Error()),
		)
		streamRequestsTotal.WithLabelValues("not_found").Inc()
		return notFound(id)
	}
	defer file.Close()

	size := info.Size()
	rng := httprange.Parse(r.Header.Get("Range"), size)

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentType(rec.ContentType, rec.StorageLocation))
	h.Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
	h.Set("X-Content-Type-Options", "nosniff")

	var offset, length int64
	switch rng.Kind {
	case httprange.Unsatisfiable:
		streamRequestsTotal.WithLabelValues("unsatisfiable").Inc()
		h.Set("Content-Range", rng.ContentRange(size))
		h.Set("Content-Length", "0")
		h.Del("Content-Type")
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return nil
	case httprange.Partial:
		streamRequestsTotal.WithLabelValues("partial").Inc()
		offset, length = rng.Start, rng.Length()
		h.Set("Content-Range", rng.ContentRange(size))
		h.Set("Content-Length", strconv.FormatInt(length, 10))
		w.WriteHeader(http.StatusPartialContent)
	default:
		streamRequestsTotal.WithLabelValues("full").Inc()
		offset, length = 0, size
		h.Set("Content-Length", strconv.FormatInt(length, 10))
		w.WriteHeader(http.StatusOK)
	}

	if r.Method == http.MethodHead {
		return nil
	}

	written, err := copyRange(ctx, w, file, offset, length)
	streamBytesTotal.Add(float64(written))
	if err != nil {
		s.logger.Debug("Отдача прервана",
			slog.String("id", id),
			slog.Int64("written", written),
			slog.Int64("expected", length),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// copyRange копирует length байт из src, начиная с offset, блоками
// фиксированного размера. Завершается при отмене ctx, ошибке записи
// или преждевременном конце файла.
func copyRange(ctx context.Context, w io.Writer, src io.ReaderAt, offset, length int64) (int64, error) {
	bufPtr := blockPool.Get().(*[]byte)
	defer blockPool.Put(bufPtr)
	buf := *bufPtr

	var written int64
	for written < length {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		chunk := buf
		if remaining := length - written; remaining < int64(len(chunk)) {
			chunk = chunk[:remaining]
		}

		n, readErr := src.ReadAt(chunk, offset+written)
		if n > 0 {
			nw, writeErr := w.Write(chunk[:n])
			written += int64(nw)
			if writeErr != nil {
				return written, writeErr
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) && written == length {
				return written, nil
			}
			return written, readErr
		}
	}
	return written, nil
}

// contentType выбирает Content-Type: из записи, по расширению или общий.
func contentType(declared, storageLocation string) string {
	if declared != "" {
		return declared
	}
	if ct := mime.TypeByExtension(filepath.Ext(storageLocation)); ct != "" {
		return ct
	}
	return defaultContentType
}

func notFound(id string) *StreamError {
	return &StreamError{
		StatusCode: http.StatusNotFound,
		Code:       apierrors.CodeNotFound,
		Message:    fmt.Sprintf("Медиафайл %s не найден", id),
	}
}
