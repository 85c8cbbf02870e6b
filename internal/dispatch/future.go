package dispatch

import (
	"context"
	"sync"
)

// Future is a single-settlement promise. Exactly one of Resolve or Reject
// takes effect; later settlements are ignored.
type Future struct {
	done chan struct{}
	once sync.Once
	val  any
	err  error
}

// NewFuture creates an unsettled future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolve settles the future with a value.
func (f *Future) Resolve(v any) {
	f.once.Do(func() {
		f.val = v
		close(f.done)
	})
}

// Reject settles the future with an error.
func (f *Future) Reject(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done is closed once the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until settlement or ctx expiry. The bridge never settles a
// future on its own; callers wanting a timeout compose one via ctx.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
