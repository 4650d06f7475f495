package async

// Value holds either an immediate result or a pending Future.
//
// The zero Value is completed with the zero T.
type Value[T any] struct {
	v      T
	err    error
	future *Future[T]
}

// ValueOf returns a completed Value holding v.
func ValueOf[T any](v T) Value[T] {
	return Value[T]{v: v}
}

// ValueFromError returns a completed, faulted Value.
func ValueFromError[T any](err error) Value[T] {
	if err == nil {
		err = ErrNilRejection
	}
	return Value[T]{err: err}
}

// ValueFromFuture returns a Value backed by f.
func ValueFromFuture[T any](f *Future[T]) Value[T] {
	return Value[T]{future: f}
}

// IsCompleted reports whether the result is available without blocking.
func (v Value[T]) IsCompleted() bool {
	return v.future == nil || IsCompleted(v.future)
}

// Err returns the fault of a completed Value, or nil while pending.
func (v Value[T]) Err() error {
	if v.future != nil {
		return v.future.Err()
	}
	return v.err
}

// Result blocks until the result is available.
func (v Value[T]) Result() (T, error) {
	if v.future != nil {
		return v.future.Result()
	}
	return v.v, v.err
}

// AsFuture returns the backing Future, allocating a completed one for immediate values.
func (v Value[T]) AsFuture() *Future[T] {
	if v.future != nil {
		return v.future
	}
	if v.err != nil {
		return FromError[T](v.err)
	}
	return FromResult(v.v)
}
