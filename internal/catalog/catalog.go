// Пакет catalog — каталог медиазаписей.
//
// Store — контракт хранилища записей: вставка без перезаписи,
// чтение по id и полный список в порядке отображения. Реализации:
// FileCatalog (attr.json + in-memory индекс), repository.MediaRepository
// (PostgreSQL) и CachedStore (LRU поверх любой из них).
package catalog

import (
	"context"
	"errors"

	"github.com/bigkaa/krstream/internal/domain/model"
)

// Ошибки каталога.
var (
	// ErrDuplicateID — id уже занят записью с другим содержимым.
	ErrDuplicateID = errors.New("запись с таким id уже существует")
	// ErrInvalidRecord — запись не проходит валидацию.
	ErrInvalidRecord = model.ErrInvalidRecord
	// ErrNotReady — каталог ещё не загружен или хранилище недоступно.
	ErrNotReady = errors.New("каталог не готов")
)

// Store — хранилище записей каталога.
//
// Записи неизменяемы: операций обновления и удаления нет.
// Все методы безопасны для конкурентного использования и
// возвращают копии, изменение которых не затрагивает хранилище.
type Store interface {
	// Put добавляет запись. Повторная вставка записи с тем же
	// содержимым (без учёта CreatedAt) возвращает nil, с другим —
	// ErrDuplicateID. Невалидная запись — ErrInvalidRecord.
	Put(ctx context.Context, rec *model.MediaRecord) error

	// Get возвращает запись по id или (nil, nil), если её нет.
	Get(ctx context.Context, id string) (*model.MediaRecord, error)

	// ListAll возвращает все записи, отсортированные по DisplayName
	// (побайтово), при равенстве — по ID.
	ListAll(ctx context.Context) ([]*model.MediaRecord, error)
}

// ReadinessChecker — хранилище, умеющее сообщить о готовности.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}
