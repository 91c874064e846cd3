package errors

// Result carries either a value or an error. Service-layer operations that the
// CLI renders for the technician return a Result so the success and failure
// paths are handled in one place.
type Result[T any] struct {
	value T
	err   error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Err wraps a failure.
func Err[T any](err error) Result[T] {
	return Result[T]{err: err}
}

// Success reports whether the result holds a value.
func (r Result[T]) Success() bool {
	return r.err == nil
}

// Error returns the failure, or nil.
func (r Result[T]) Error() error {
	return r.err
}

// Unwrap returns the value and the error in the usual Go shape.
func (r Result[T]) Unwrap() (T, error) {
	return r.value, r.err
}

// UnwrapOr returns the value, or fallback on failure.
func (r Result[T]) UnwrapOr(fallback T) T {
	if r.err != nil {
		return fallback
	}
	return r.value
}

// Map applies fn to a successful value.
func Map[T, U any](r Result[T], fn func(T) U) Result[U] {
	if r.err != nil {
		return Err[U](r.err)
	}
	return Ok(fn(r.value))
}

// Then chains an operation that may itself fail.
func Then[T, U any](r Result[T], fn func(T) Result[U]) Result[U] {
	if r.err != nil {
		return Err[U](r.err)
	}
	return fn(r.value)
}
