package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/krstream/internal/catalog"
	"github.com/bigkaa/krstream/internal/domain/model"
)

const mediaColumns = `id, display_name, size_bytes, thumbnail_ref, storage_location, content_type, created_at`

// MediaRepository — каталог в таблице media. Реализует catalog.Store.
type MediaRepository struct {
	db     DBTX
	logger *slog.Logger
}

// NewMediaRepository создаёт репозиторий записей каталога.
func NewMediaRepository(db DBTX, logger *slog.Logger) *MediaRepository {
	return &MediaRepository{
		db:     db,
		logger: logger.With(slog.String("component", "media_repository")),
	}
}

var _ catalog.Store = (*MediaRepository)(nil)

// Put вставляет запись без перезаписи. При конфликте id
// существующая запись сравнивается с новой.
func (r *MediaRepository) Put(ctx context.Context, rec *model.MediaRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO media (` + mediaColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	tag, err := r.db.Exec(ctx, query,
		rec.ID, rec.DisplayName, rec.SizeBytes, rec.ThumbnailRef,
		rec.StorageLocation, rec.ContentType, createdAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка вставки записи %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	existing, err := r.Get(ctx, rec.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		// Конфликт без строки возможен только при конкурентном удалении,
		// которого в каталоге нет
		return fmt.Errorf("запись %s не вставлена и не найдена", rec.ID)
	}
	if !existing.SameContent(rec) {
		return fmt.Errorf("%w: %s", catalog.ErrDuplicateID, rec.ID)
	}
	return nil
}

// Get возвращает запись по id или (nil, nil), если её нет.
func (r *MediaRepository) Get(ctx context.Context, id string) (*model.MediaRecord, error) {
	query := `SELECT ` + mediaColumns + ` FROM media WHERE id = $1`

	rec, err := scanMedia(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения записи %s: %w", id, err)
	}
	if err := rec.Validate(); err != nil {
		r.logger.Warn("Невалидная запись в таблице media",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	return rec, nil
}

// ListAll возвращает все записи в побайтовом порядке display_name, затем id.
// Невалидные строки пропускаются с предупреждением.
func (r *MediaRepository) ListAll(ctx context.Context) ([]*model.MediaRecord, error) {
	query := `SELECT ` + mediaColumns + ` FROM media
		ORDER BY display_name COLLATE "C", id COLLATE "C"`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка записей: %w", err)
	}
	defer rows.Close()

	var result []*model.MediaRecord
	for rows.Next() {
		rec, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		if err := rec.Validate(); err != nil {
			r.logger.Warn("Пропущена невалидная запись",
				slog.String("id", rec.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения списка записей: %w", err)
	}
	return result, nil
}

// Ready проверяет доступность PostgreSQL.
func (r *MediaRepository) Ready(ctx context.Context) error {
	p, ok := r.db.(pinger)
	if !ok {
		return nil
	}
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("%w: PostgreSQL недоступен: %v", catalog.ErrNotReady, err)
	}
	return nil
}

// scanMedia сканирует строку в MediaRecord.
func scanMedia(row pgx.Row) (*model.MediaRecord, error) {
	rec := &model.MediaRecord{}
	err := row.Scan(
		&rec.ID, &rec.DisplayName, &rec.SizeBytes, &rec.ThumbnailRef,
		&rec.StorageLocation, &rec.ContentType, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}
