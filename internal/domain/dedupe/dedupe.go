// Package dedupe defines the interface for idempotency tracking.
package dedupe

import (
	"context"
	"sync"

	"github.com/emirpasic/gods/maps/linkedhashmap"
)

const defaultMaxSize = 50000

// Deduper records seen attempt IDs to ensure at-most-once recording.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes an ID from the seen list, allowing it to be retried.
	// Used when an id was recorded but its event could not be enqueued.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper keeps ids in insertion order. When bounded, the oldest id
// is evicted first; maxSize <= 0 means unbounded.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    *linkedhashmap.Map // id -> struct{}
	maxSize int
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		seen:    linkedhashmap.New(),
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SeenAndRecord implements Deduper.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen.Get(id); ok {
		return true
	}
	if d.maxSize > 0 && d.seen.Size() >= d.maxSize {
		d.evictOldest()
	}
	d.seen.Put(id, struct{}{})
	return false
}

// Unrecord implements Deduper.
func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen.Remove(id)
}

// Size implements Deduper.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.seen.Size())
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	it := d.seen.Iterator()
	if it.First() {
		d.seen.Remove(it.Key())
	}
}
