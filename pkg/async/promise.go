package async

import "context"

// Promise completes a Future from outside of it, for work whose completion is
// signalled by a callback or another goroutine.
type Promise[T any] struct {
	f *Future[T]
}

// NewPromise creates a pending Promise.
func NewPromise[T any]() *Promise[T] {
	f := newFuture[T](nil)
	f.started.Store(true)
	return &Promise[T]{f: f}
}

// Future returns the handle completed by p.
func (p *Promise[T]) Future() *Future[T] { return p.f }

// Resolve completes the Future with v. It reports whether this call completed it.
func (p *Promise[T]) Resolve(v T) bool {
	return p.f.complete(v, nil)
}

// Reject completes the Future with err. A nil err is stored as ErrNilRejection.
func (p *Promise[T]) Reject(err error) bool {
	if err == nil {
		err = ErrNilRejection
	}
	var zero T
	return p.f.complete(zero, err)
}

// RejectAll completes the Future with an AggregateError of errs.
func (p *Promise[T]) RejectAll(errs ...error) bool {
	return p.Reject(NewAggregateError(errs...))
}

// Cancel completes the Future with context.Canceled.
func (p *Promise[T]) Cancel() bool {
	return p.Reject(context.Canceled)
}
