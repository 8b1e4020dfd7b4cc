// Пакет index — потокобезопасный in-memory индекс записей каталога.
//
// Индекс строится при старте из attr.json файлов (BuildFromDir)
// и пополняется синхронно при публикации новых записей (PutIfAbsent).
// Записи неизменяемы: операций обновления и удаления нет.
//
// Не персистентный: при рестарте пересобирается из attr.json.
package index

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/bigkaa/krstream/internal/domain/model"
	"github.com/bigkaa/krstream/internal/storage/attr"
)

// Index — потокобезопасный in-memory индекс записей.
// Использует sync.RWMutex для конкурентного чтения и
// эксклюзивной записи. Наружу отдаются только копии.
type Index struct {
	mu     sync.RWMutex
	items  map[string]*model.MediaRecord // id → запись
	ready  bool                          // индекс построен и готов
	logger *slog.Logger
}

// New создаёт пустой индекс. Для заполнения вызовите BuildFromDir.
func New(logger *slog.Logger) *Index {
	return &Index{
		items:  make(map[string]*model.MediaRecord),
		logger: logger.With(slog.String("component", "index")),
	}
}

// BuildFromDir строит индекс из attr.json файлов в указанной директории.
// Заменяет текущее содержимое индекса и помечает его как ready.
func (idx *Index) BuildFromDir(dir string) error {
	recs, skipped, err := attr.ScanDir(dir)
	if err != nil {
		return fmt.Errorf("ошибка сканирования директории %s: %w", dir, err)
	}
	for _, skipErr := range skipped {
		idx.logger.Warn("Пропущена невалидная запись каталога",
			slog.String("error", skipErr.Error()),
		)
	}

	items := make(map[string]*model.MediaRecord, len(recs))
	for _, rec := range recs {
		items[rec.ID] = rec
	}

	idx.mu.Lock()
	idx.items = items
	idx.ready = true
	idx.mu.Unlock()

	idx.logger.Info("Индекс каталога построен",
		slog.Int("records", len(items)),
		slog.Int("skipped", len(skipped)),
		slog.String("dir", dir),
	)

	return nil
}

// IsReady возвращает true, если индекс построен и готов к использованию.
func (idx *Index) IsReady() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.ready
}

// PutIfAbsent добавляет запись, если id ещё не занят.
// Возвращает (nil, true) при вставке или (копия существующей, false).
func (idx *Index) PutIfAbsent(rec *model.MediaRecord) (*model.MediaRecord, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if existing, ok := idx.items[rec.ID]; ok {
		return existing.Clone(), false
	}
	idx.items[rec.ID] = rec.Clone()
	return nil, true
}

// Get возвращает копию записи по id или nil, если записи нет.
func (idx *Index) Get(id string) *model.MediaRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	rec, ok := idx.items[id]
	if !ok {
		return nil
	}
	return rec.Clone()
}

// List возвращает копии всех записей, отсортированные по DisplayName
// (побайтовое сравнение), при равенстве — по ID.
func (idx *Index) List() []*model.MediaRecord {
	idx.mu.RLock()
	result := make([]*model.MediaRecord, 0, len(idx.items))
	for _, rec := range idx.items {
		result = append(result, rec.Clone())
	}
	idx.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].DisplayName != result[j].DisplayName {
			return result[i].DisplayName < result[j].DisplayName
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// Count возвращает количество записей в индексе.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.items)
}
