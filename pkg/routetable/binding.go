package routetable

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Loader produces a view on demand.
type Loader[V any] func(ctx context.Context) (V, error)

// Binding is either an eager value or a lazy loader.
type Binding[V any] struct {
	value  V
	loader Loader[V]
	lazy   bool
}

// Eager binds an already available view.
func Eager[V any](v V) Binding[V] {
	return Binding[V]{value: v}
}

// Lazy binds a view that is produced by load on first navigation.
func Lazy[V any](load Loader[V]) Binding[V] {
	return Binding[V]{loader: load, lazy: true}
}

// IsLazy reports whether the binding defers loading.
func (b Binding[V]) IsLazy() bool { return b.lazy }

func (b Binding[V]) handle() *Deferred[V] {
	if !b.lazy {
		return &Deferred[V]{value: b.value, done: true}
	}
	return &Deferred[V]{loader: b.loader, lazy: true}
}

// Deferred is the per-entry view handle. Eager handles are born resolved.
// A lazy handle runs its loader on the first Load and keeps the first
// successful value; a failed load is not remembered and the next Load
// tries again.
type Deferred[V any] struct {
	mu     sync.Mutex
	flight singleflight.Group
	loader Loader[V]
	value  V
	done   bool
	lazy   bool
}

// Lazy reports whether the handle came from a lazy binding.
func (d *Deferred[V]) Lazy() bool { return d.lazy }

// Resolved reports whether a value is available without loading.
func (d *Deferred[V]) Resolved() bool {
	_, ok := d.cached()
	return ok
}

func (d *Deferred[V]) cached() (V, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value, d.done
}

// Load returns the view, running the loader if it has not yet succeeded.
// Concurrent callers share one in-flight load, and each stops waiting when
// its own ctx ends. The shared load keeps ctx values but not its
// cancellation, so one caller leaving does not fail the others.
func (d *Deferred[V]) Load(ctx context.Context) (V, error) {
	if v, ok := d.cached(); ok {
		return v, nil
	}
	var zero V
	if d.loader == nil {
		return zero, ErrNoLoader
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	ch := d.flight.DoChan("load", func() (any, error) {
		if v, ok := d.cached(); ok {
			return v, nil
		}
		v, err := d.loader(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		d.mu.Lock()
		d.value, d.done = v, true
		d.mu.Unlock()
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}
