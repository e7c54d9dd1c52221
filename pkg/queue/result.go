package queue

// Result is either a value or an error.
type Result[T any] struct {
	val T
	err error
}

// Ok wraps a value.
func Ok[T any](v T) Result[T] { return Result[T]{val: v} }

// Err wraps an error. A nil error is still a failed result.
func Err[T any](err error) Result[T] {
	if err == nil {
		err = ErrNoReply
	}
	return Result[T]{err: err}
}

// Get returns the value and the error.
func (r Result[T]) Get() (T, error) { return r.val, r.err }

// IsOk reports whether the result carries a value.
func (r Result[T]) IsOk() bool { return r.err == nil }

// Value returns the value, zero on failure.
func (r Result[T]) Value() T { return r.val }

// Error returns the failure, nil on success.
func (r Result[T]) Error() error { return r.err }
