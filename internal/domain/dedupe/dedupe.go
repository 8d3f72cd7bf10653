// Package dedupe tracks idempotency keys so a request is acted on at most once.
package dedupe

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxSize = 50_000

// Deduper records seen keys.
type Deduper interface {
	// SeenAndRecord atomically checks whether key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so the request can be retried, e.g. after the
	// queue refused the job.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// NewInMemoryDeduper creates an in-memory deduper.
// With a positive max size the oldest key is evicted once the set is full;
// otherwise the set grows without bound.
func NewInMemoryDeduper(opts ...Option) Deduper {
	c := &config{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxSize <= 0 {
		return &unbounded{seen: make(map[string]struct{})}
	}
	cache, err := lru.New[string, struct{}](c.maxSize)
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	return &bounded{cache: cache}
}

// bounded keeps up to maxSize keys. ContainsOrAdd does not refresh recency,
// so eviction follows insertion order.
type bounded struct {
	cache *lru.Cache[string, struct{}]
}

func (d *bounded) SeenAndRecord(_ context.Context, key string) bool {
	seen, _ := d.cache.ContainsOrAdd(key, struct{}{})
	return seen
}

func (d *bounded) Unrecord(_ context.Context, key string) {
	d.cache.Remove(key)
}

func (d *bounded) Size() int64 {
	return int64(d.cache.Len())
}

type unbounded struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func (d *unbounded) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = struct{}{}
	return false
}

func (d *unbounded) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	delete(d.seen, key)
	d.mu.Unlock()
}

func (d *unbounded) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
