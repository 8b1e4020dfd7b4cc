package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bigkaa/krstream/internal/domain/model"
	"github.com/bigkaa/krstream/internal/storage/attr"
	"github.com/bigkaa/krstream/internal/storage/index"
)

// FileCatalog — файловый каталог: каждая запись хранится в своём
// attr.json, чтение идёт из in-memory индекса.
type FileCatalog struct {
	dir    string
	index  *index.Index
	logger *slog.Logger

	// writeMu сериализует вставки, чтобы attr.json и индекс
	// всегда менялись вместе
	writeMu sync.Mutex
}

// NewFileCatalog открывает каталог в dir и строит индекс из attr.json.
func NewFileCatalog(dir string, logger *slog.Logger) (*FileCatalog, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию каталога %s: %w", dir, err)
	}

	idx := index.New(logger)
	if err := idx.BuildFromDir(dir); err != nil {
		return nil, err
	}

	return &FileCatalog{
		dir:    dir,
		index:  idx,
		logger: logger.With(slog.String("component", "file_catalog")),
	}, nil
}

// Put публикует attr.json записи и добавляет её в индекс.
func (c *FileCatalog) Put(_ context.Context, rec *model.MediaRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	stored := rec.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if existing := c.index.Get(rec.ID); existing != nil {
		return compareExisting(existing, rec)
	}

	err := attr.Publish(c.dir, stored)
	if errors.Is(err, attr.ErrExists) {
		// attr.json есть на диске, но не в индексе: записан после
		// построения индекса или был пропущен при загрузке
		existing, readErr := attr.ReadByID(c.dir, rec.ID)
		if readErr != nil {
			return fmt.Errorf("id %s занят нечитаемой записью: %w", rec.ID, readErr)
		}
		c.index.PutIfAbsent(existing)
		return compareExisting(existing, rec)
	}
	if err != nil {
		return fmt.Errorf("ошибка публикации записи %s: %w", rec.ID, err)
	}

	c.index.PutIfAbsent(stored)

	c.logger.Debug("Запись добавлена в каталог",
		slog.String("id", stored.ID),
		slog.String("storage_location", stored.StorageLocation),
	)
	return nil
}

// Get возвращает копию записи из индекса.
func (c *FileCatalog) Get(_ context.Context, id string) (*model.MediaRecord, error) {
	return c.index.Get(id), nil
}

// ListAll возвращает все записи в порядке отображения.
func (c *FileCatalog) ListAll(_ context.Context) ([]*model.MediaRecord, error) {
	return c.index.List(), nil
}

// Ready возвращает ErrNotReady, пока индекс не построен.
func (c *FileCatalog) Ready(_ context.Context) error {
	if !c.index.IsReady() {
		return ErrNotReady
	}
	return nil
}

// Count возвращает количество записей.
func (c *FileCatalog) Count() int {
	return c.index.Count()
}

// compareExisting решает исход повторной вставки id.
func compareExisting(existing, rec *model.MediaRecord) error {
	if existing.SameContent(rec) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
}
