// Package queue buffers work items from many producers and hands them to a
// handler in batches, one batch at a time, resolving a future per item.
package queue

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrNoReply resolves futures of items the handler returned no result for.
	ErrNoReply = errors.New("queue: handler did not reply")
	// ErrStopped is returned by Start on a stopped queue.
	ErrStopped = errors.New("queue: stopped")
	// ErrHandlerPanic wraps a panic recovered from a handler.
	ErrHandlerPanic = errors.New("queue: handler panic")
)

// Request is one buffered item. Results are matched to requests by pointer.
type Request[T any] struct {
	Value T
	fut   any
}

// ItemWithSource pairs a result with the request it answers.
type ItemWithSource[T, R any] struct {
	Source *Request[T]
	Result Result[R]
}

// Reply builds an ItemWithSource.
func Reply[T, R any](src *Request[T], res Result[R]) ItemWithSource[T, R] {
	return ItemWithSource[T, R]{Source: src, Result: res}
}

// Handler processes a batch. It may return fewer items than it was given;
// the missing ones fail with ErrNoReply. A returned error fails the whole batch.
type Handler[T, R any] interface {
	Handle(batch []*Request[T]) ([]ItemWithSource[T, R], error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[T, R any] func(batch []*Request[T]) ([]ItemWithSource[T, R], error)

func (f HandlerFunc[T, R]) Handle(batch []*Request[T]) ([]ItemWithSource[T, R], error) {
	return f(batch)
}

// Option configures a BufferedQueue.
type Option func(*options)

type options struct {
	log *zap.Logger
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// BufferedQueue accumulates items and drains them in batches on an Executor.
// At most one drain runs at a time.
type BufferedQueue[T, R any] struct {
	exec Executor
	log  *zap.Logger

	mu        sync.Mutex
	buf       []*Request[T]
	handler   Handler[T, R]
	started   bool
	stopped   bool
	scheduled bool

	drainMu sync.Mutex
}

// New creates a queue that schedules drains on exec.
func New[T, R any](exec Executor, opts ...Option) *BufferedQueue[T, R] {
	o := options{log: zap.L().Named("queue")}
	for _, opt := range opts {
		opt(&o)
	}
	if exec == nil {
		exec = GoExecutor{}
	}
	return &BufferedQueue[T, R]{exec: exec, log: o.log}
}

// Start installs the handler and schedules a drain for anything already buffered.
func (q *BufferedQueue[T, R]) Start(h Handler[T, R]) error {
	if h == nil {
		return errors.New("queue: nil handler")
	}
	q.mu.Lock()
	switch {
	case q.stopped:
		q.mu.Unlock()
		return ErrStopped
	case q.started:
		q.mu.Unlock()
		return errors.New("queue: already started")
	}
	q.handler = h
	q.started = true
	q.mu.Unlock()
	q.schedule()
	return nil
}

// Stop prevents further drains. A drain in progress completes normally and
// items still buffered are never resolved.
func (q *BufferedQueue[T, R]) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
}

// Add buffers v and returns the future of its result.
func (q *BufferedQueue[T, R]) Add(v T) *Future[R] {
	f := newFuture[R]()
	req := &Request[T]{Value: v, fut: f}
	q.mu.Lock()
	q.buf = append(q.buf, req)
	q.mu.Unlock()
	q.schedule()
	return f
}

// Len returns the number of buffered items not yet drained.
func (q *BufferedQueue[T, R]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

func (q *BufferedQueue[T, R]) schedule() {
	q.mu.Lock()
	if !q.started || q.stopped || q.scheduled || len(q.buf) == 0 {
		q.mu.Unlock()
		return
	}
	q.scheduled = true
	q.mu.Unlock()
	q.exec.Execute(q.loop)
}

func (q *BufferedQueue[T, R]) loop() {
	for {
		q.Run()
		q.mu.Lock()
		if q.stopped || len(q.buf) == 0 {
			q.scheduled = false
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()
	}
}

// Run drains the current buffer as one batch. It is a no-op before Start
// or after Stop, and concurrent calls serialize.
func (q *BufferedQueue[T, R]) Run() {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	q.mu.Lock()
	if !q.started || q.stopped || len(q.buf) == 0 {
		q.mu.Unlock()
		return
	}
	h := q.handler
	batch := q.buf
	q.buf = nil
	q.mu.Unlock()

	q.dispatch(h, batch)
}

func (q *BufferedQueue[T, R]) dispatch(h Handler[T, R], batch []*Request[T]) {
	results, err := invoke(h, batch)
	if err != nil {
		q.log.Error("batch handler failed", zap.Int("batch", len(batch)), zap.Error(err))
		for _, r := range batch {
			futureOf[T, R](r).resolve(Err[R](err))
		}
		return
	}

	inBatch := make(map[*Request[T]]struct{}, len(batch))
	for _, r := range batch {
		inBatch[r] = struct{}{}
	}
	for _, it := range results {
		if _, ok := inBatch[it.Source]; !ok {
			q.log.Warn("handler replied for a request outside the batch")
			continue
		}
		futureOf[T, R](it.Source).resolve(it.Result)
	}
	missing := 0
	for _, r := range batch {
		if futureOf[T, R](r).resolve(Err[R](ErrNoReply)) {
			missing++
		}
	}
	if missing > 0 {
		q.log.Debug("handler left requests unanswered", zap.Int("missing", missing), zap.Int("batch", len(batch)))
	}
}

func invoke[T, R any](h Handler[T, R], batch []*Request[T]) (out []ItemWithSource[T, R], err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, rec)
		}
	}()
	return h.Handle(batch)
}

func futureOf[T, R any](r *Request[T]) *Future[R] {
	return r.fut.(*Future[R])
}
