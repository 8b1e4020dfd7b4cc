// Пакет model — доменные модели KR Stream.
// MediaRecord — единственная персистентная сущность: метаданные
// загруженного медиафайла. Используется и как in-memory представление,
// и как формат attr.json, и как строка таблицы media.
package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidRecord — запись не проходит валидацию и не может попасть в каталог.
var ErrInvalidRecord = errors.New("некорректная запись каталога")

// MediaRecord — метаданные медиафайла в каталоге.
type MediaRecord struct {
	// ID — стабильный уникальный идентификатор (file_unique_id платформы)
	ID string `json:"id"`

	// DisplayName — отображаемое имя (оригинальное имя файла или заглушка)
	DisplayName string `json:"display_name"`

	// SizeBytes — точный размер файла в момент загрузки
	SizeBytes int64 `json:"size_bytes"`

	// ThumbnailRef — URI превью, может быть общей заглушкой
	ThumbnailRef string `json:"thumbnail_ref"`

	// StorageLocation — имя файла относительно директории данных.
	// Никогда не отдаётся зрителям напрямую.
	StorageLocation string `json:"storage_location"`

	// ContentType — MIME-тип, заявленный отправителем (может быть пустым)
	ContentType string `json:"content_type,omitempty"`

	// CreatedAt — время добавления в каталог (UTC)
	CreatedAt time.Time `json:"created_at"`
}

// Validate проверяет запись перед публикацией в каталоге.
// Возвращает ошибку, обёрнутую в ErrInvalidRecord.
func (m *MediaRecord) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: пустая запись", ErrInvalidRecord)
	}
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("%w: пустой id", ErrInvalidRecord)
	}
	if m.SizeBytes < 0 {
		return fmt.Errorf("%w: отрицательный размер %d", ErrInvalidRecord, m.SizeBytes)
	}
	if m.StorageLocation == "" {
		return fmt.Errorf("%w: пустой storage_location", ErrInvalidRecord)
	}
	if filepath.IsAbs(m.StorageLocation) || !filepath.IsLocal(m.StorageLocation) {
		return fmt.Errorf("%w: storage_location %q выходит за пределы директории данных",
			ErrInvalidRecord, m.StorageLocation)
	}
	return nil
}

// SameContent сравнивает записи без учёта CreatedAt.
// Повторная вставка записи с тем же содержимым считается идемпотентной.
func (m *MediaRecord) SameContent(other *MediaRecord) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.ID == other.ID &&
		m.DisplayName == other.DisplayName &&
		m.SizeBytes == other.SizeBytes &&
		m.ThumbnailRef == other.ThumbnailRef &&
		m.StorageLocation == other.StorageLocation &&
		m.ContentType == other.ContentType
}

// Clone возвращает независимую копию записи.
func (m *MediaRecord) Clone() *MediaRecord {
	if m == nil {
		return nil
	}
	copied := *m
	return &copied
}
