package builder

import (
	"context"
	"sync"
	"time"

	"github.com/calade/reportdeck/model"
)

// CachedResult is one stored execution result.
type CachedResult struct {
	Rows     []model.ReportRow `json:"rows"`
	Count    int               `json:"count"`
	StoredAt time.Time         `json:"stored_at"`
}

// ResultCache stores execution results keyed by the definition hash. There is
// no automatic invalidation: entries live until evicted, expired, or
// explicitly cleared.
type ResultCache interface {
	// Get looks up a stored result by key.
	Get(ctx context.Context, key string) (*CachedResult, bool, error)

	// Put stores a result under key, replacing any previous entry.
	Put(ctx context.Context, key string, rows []model.ReportRow, count int) error

	// Clear drops every entry of this cache.
	Clear(ctx context.Context) error

	// Len returns the number of stored entries.
	Len(ctx context.Context) (int, error)
}

// --- MemoryResultCache ---

// DefaultCacheMaxEntries bounds the in-memory cache when no limit is
// configured.
const DefaultCacheMaxEntries = 256

// MemoryResultCache is a mutex-guarded in-memory ResultCache bounded by a
// maximum entry count; the oldest entry is evicted when the bound is hit.
// Suitable for testing and single-instance deployments.
type MemoryResultCache struct {
	mu         sync.RWMutex
	entries    map[string]*CachedResult
	order      []string
	maxEntries int
	onEvict    func()
}

// MemoryCacheOption configures a MemoryResultCache.
type MemoryCacheOption func(*MemoryResultCache)

// WithEvictionHook registers a callback fired once per evicted entry.
func WithEvictionHook(fn func()) MemoryCacheOption {
	return func(c *MemoryResultCache) { c.onEvict = fn }
}

// NewMemoryResultCache creates an in-memory result cache holding at most
// maxEntries results; zero or negative means the default bound.
func NewMemoryResultCache(maxEntries int, opts ...MemoryCacheOption) *MemoryResultCache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	c := &MemoryResultCache{
		entries:    make(map[string]*CachedResult),
		maxEntries: maxEntries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get looks up a stored result. The returned value shares no storage with the
// cache.
func (c *MemoryResultCache) Get(_ context.Context, key string) (*CachedResult, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	out := &CachedResult{
		Rows:     model.CloneRows(entry.Rows),
		Count:    entry.Count,
		StoredAt: entry.StoredAt,
	}
	return out, true, nil
}

// Put stores a result, evicting the oldest entry when the bound is exceeded.
func (c *MemoryResultCache) Put(_ context.Context, key string, rows []model.ReportRow, count int) error {
	c.mu.Lock()

	if _, exists := c.entries[key]; exists {
		c.removeFromOrderLocked(key)
	}
	c.entries[key] = &CachedResult{
		Rows:     model.CloneRows(rows),
		Count:    count,
		StoredAt: time.Now(),
	}
	c.order = append(c.order, key)

	evicted := 0
	for len(c.entries) > c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
		evicted++
	}
	onEvict := c.onEvict
	c.mu.Unlock()

	if onEvict != nil {
		for i := 0; i < evicted; i++ {
			onEvict()
		}
	}
	return nil
}

// Clear drops every entry.
func (c *MemoryResultCache) Clear(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]*CachedResult)
	c.order = nil
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries.
func (c *MemoryResultCache) Len(_ context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), nil
}

// HealthCheck reports the cache as always healthy.
func (c *MemoryResultCache) HealthCheck(_ context.Context) error {
	return nil
}

func (c *MemoryResultCache) removeFromOrderLocked(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
