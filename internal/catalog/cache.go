package catalog

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/krstream/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "krs_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш каталога.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "krs_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша каталога.",
	})
)

// CachedStore — LRU-кэш записей с TTL поверх любого Store.
// Кэшируются только найденные записи: отсутствующий id может
// появиться в любой момент, а существующая запись не меняется.
type CachedStore struct {
	next  Store
	cache *expirable.LRU[string, *model.MediaRecord]
}

// NewCachedStore оборачивает next в LRU-кэш.
// maxSize — максимальное количество записей, ttl — время жизни записи.
func NewCachedStore(next Store, maxSize int, ttl time.Duration) *CachedStore {
	return &CachedStore{
		next:  next,
		cache: expirable.NewLRU[string, *model.MediaRecord](maxSize, nil, ttl),
	}
}

// Put передаёт вставку в хранилище. Кэш не заполняется: хранилище
// может дополнить запись (CreatedAt), первое чтение её подхватит.
func (c *CachedStore) Put(ctx context.Context, rec *model.MediaRecord) error {
	return c.next.Put(ctx, rec)
}

// Get возвращает запись из кэша или читает её из хранилища.
func (c *CachedStore) Get(ctx context.Context, id string) (*model.MediaRecord, error) {
	if rec, ok := c.cache.Get(id); ok {
		cacheHitsTotal.Inc()
		return rec.Clone(), nil
	}
	cacheMissesTotal.Inc()

	rec, err := c.next.Get(ctx, id)
	if err != nil || rec == nil {
		return rec, err
	}
	c.cache.Add(id, rec.Clone())
	return rec, nil
}

// ListAll всегда читает из хранилища.
func (c *CachedStore) ListAll(ctx context.Context) ([]*model.MediaRecord, error) {
	return c.next.ListAll(ctx)
}

// Ready делегирует проверку хранилищу, если оно её поддерживает.
func (c *CachedStore) Ready(ctx context.Context) error {
	if rc, ok := c.next.(ReadinessChecker); ok {
		return rc.Ready(ctx)
	}
	return nil
}

// Len возвращает количество записей в кэше.
func (c *CachedStore) Len() int {
	return c.cache.Len()
}
