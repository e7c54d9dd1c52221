package queue

import (
	"context"
	"sync"
)

// Future is a result that becomes available once.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	res  Result[T]
}

func newFuture[T any]() *Future[T] { return &Future[T]{done: make(chan struct{})} }

// resolve sets the result unless one is already set and reports whether it won.
func (f *Future[T]) resolve(r Result[T]) bool {
	won := false
	f.once.Do(func() {
		f.res = r
		close(f.done)
		won = true
	})
	return won
}

// Done is closed when the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the result is available or ctx ends.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.res.Get()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryGet returns the result if it is available.
func (f *Future[T]) TryGet() (Result[T], bool) {
	select {
	case <-f.done:
		return f.res, true
	default:
		return Result[T]{}, false
	}
}

// Promise is the write side of a Future, for producers outside this package.
type Promise[T any] struct {
	f *Future[T]
}

// NewPromise returns an unresolved promise.
func NewPromise[T any]() *Promise[T] { return &Promise[T]{f: newFuture[T]()} }

// Future returns the read side.
func (p *Promise[T]) Future() *Future[T] { return p.f }

// Resolve sets the result; later calls are ignored and return false.
func (p *Promise[T]) Resolve(r Result[T]) bool { return p.f.resolve(r) }

// Resolved returns a future that already holds r.
func Resolved[T any](r Result[T]) *Future[T] {
	f := newFuture[T]()
	f.resolve(r)
	return f
}
