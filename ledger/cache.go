package ledger

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// =============================================================================
// RECORD CACHE
// =============================================================================

// Cache holds an in-process copy of one table. The Record Store stays the
// source of truth: Get falls through to it on a miss, and Reload rebuilds
// the whole map from it.
type Cache[T any] struct {
	mu    sync.RWMutex
	items map[int64]T
	store Store
	table Table
}

// NewCache creates an empty cache over table.
func NewCache[T any](store Store, table Table) *Cache[T] {
	return &Cache[T]{items: make(map[int64]T), store: store, table: table}
}

// Get returns the cached record, loading it from the store on a miss.
func (c *Cache[T]) Get(ctx context.Context, id int64) (T, bool, error) {
	c.mu.RLock()
	v, ok := c.items[id]
	c.mu.RUnlock()
	if ok {
		return v, true, nil
	}

	rec, err := Get[T](ctx, c.store, c.table, id)
	if err != nil || rec == nil {
		var zero T
		return zero, false, err
	}
	c.Upsert(id, *rec)
	return *rec, true, nil
}

// Peek returns the cached record without touching the store.
func (c *Cache[T]) Peek(id int64) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[id]
	return v, ok
}

// Upsert replaces the cached copy of id.
func (c *Cache[T]) Upsert(id int64, v T) {
	c.mu.Lock()
	c.items[id] = v
	c.mu.Unlock()
}

// Invalidate drops id so the next Get reloads it.
func (c *Cache[T]) Invalidate(id int64) {
	c.mu.Lock()
	delete(c.items, id)
	c.mu.Unlock()
}

// Reload replaces the cache with every record currently in the table.
func (c *Cache[T]) Reload(ctx context.Context) error {
	docs, err := c.store.GetAll(ctx, c.table, nil)
	if err != nil {
		return &StoreError{Op: "getAll", Table: c.table, Err: err}
	}
	items := make(map[int64]T, len(docs))
	for _, doc := range docs {
		id, err := DocID(doc)
		if err != nil {
			return &StoreError{Op: "decode", Table: c.table, Err: err}
		}
		var v T
		if err := json.Unmarshal(doc, &v); err != nil {
			return &StoreError{Op: "decode", Table: c.table, Err: err}
		}
		items[id] = v
	}

	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
	return nil
}

// All returns the cached records ordered by id.
func (c *Cache[T]) All() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]int64, 0, len(c.items))
	for id := range c.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.items[id])
	}
	return out
}

// Len returns the number of cached records.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
