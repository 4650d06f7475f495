package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Awaitable is an asynchronous handle that can be joined.
//
// Err returns nil while the handle is pending. context.Context satisfies Awaitable.
type Awaitable interface {
	Done() <-chan struct{}
	Err() error
}

// Status is the state of an asynchronous handle.
type Status int

const (
	StatusPending Status = iota
	StatusSucceeded
	StatusFaulted
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSucceeded:
		return "succeeded"
	case StatusFaulted:
		return "faulted"
	case StatusCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// StatusOf classifies a without blocking. Errors matching context.Canceled are
// reported as StatusCanceled.
func StatusOf(a Awaitable) Status {
	select {
	case <-a.Done():
	default:
		return StatusPending
	}
	return StatusFromError(a.Err())
}

// StatusFromError classifies the outcome of completed work.
func StatusFromError(err error) Status {
	switch {
	case err == nil:
		return StatusSucceeded
	case errors.Is(err, context.Canceled):
		return StatusCanceled
	default:
		return StatusFaulted
	}
}

// IsCompleted reports whether a has finished, without blocking.
func IsCompleted(a Awaitable) bool {
	select {
	case <-a.Done():
		return true
	default:
		return false
	}
}

var lastID atomic.Uint64

// Future is a handle to one unit of work producing a T.
//
// It is safe for concurrent use.
type Future[T any] struct {
	id      uint64
	fn      func() (T, error)
	started atomic.Bool

	once sync.Once
	done chan struct{}
	val  T
	err  error
}

// Task is a Future without a result value.
type Task = Future[struct{}]

// New creates a cold Future that runs fn once started.
func New[T any](fn func() (T, error)) *Future[T] {
	if fn == nil {
		panic("async: New called with nil func")
	}
	return newFuture(fn)
}

// NewTask creates a cold Task that runs fn once started.
func NewTask(fn func() error) *Task {
	if fn == nil {
		panic("async: NewTask called with nil func")
	}
	return newFuture(func() (struct{}, error) { return struct{}{}, fn() })
}

// FromResult returns a completed Future holding v.
func FromResult[T any](v T) *Future[T] {
	f := newFuture[T](nil)
	f.started.Store(true)
	f.complete(v, nil)
	return f
}

// FromError returns a completed Future holding err.
func FromError[T any](err error) *Future[T] {
	if err == nil {
		err = ErrNilRejection
	}
	f := newFuture[T](nil)
	f.started.Store(true)
	var zero T
	f.complete(zero, err)
	return f
}

// CompletedTask returns a successfully completed Task.
func CompletedTask() *Task {
	return FromResult(struct{}{})
}

func newFuture[T any](fn func() (T, error)) *Future[T] {
	return &Future[T]{
		id:   lastID.Add(1),
		fn:   fn,
		done: make(chan struct{}),
	}
}

// ID returns a process-unique identifier.
func (f *Future[T]) ID() uint64 { return f.id }

// Start hands Run to l. If l is nil, GoLauncher is used.
//
// If l refuses the work, the Future completes with an error wrapping ErrLaunchFailed
// and that error is returned.
func (f *Future[T]) Start(l Launcher) error {
	if l == nil {
		l = GoLauncher
	}
	if f.started.Load() {
		return ErrAlreadyStarted
	}
	if err := l.Launch(f.Run); err != nil {
		err = fmt.Errorf("%w: %w", ErrLaunchFailed, err)
		if f.started.CompareAndSwap(false, true) {
			var zero T
			f.complete(zero, err)
		}
		return err
	}
	return nil
}

// Run executes the work on the calling goroutine. Only the first call runs it.
func (f *Future[T]) Run() {
	if !f.started.CompareAndSwap(false, true) {
		return
	}
	var (
		v   T
		err error
	)
	defer func() {
		if p := recover(); p != nil {
			var zero T
			v, err = zero, NewPanicError(p)
		}
		f.complete(v, err)
	}()
	v, err = f.fn()
}

// Done returns a channel closed once the work has finished.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Err returns the fault of the finished work, or nil while pending.
func (f *Future[T]) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Result blocks until the work has finished and returns its outcome.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.val, f.err
}

// Status classifies the Future without blocking.
func (f *Future[T]) Status() Status { return StatusOf(f) }

func (f *Future[T]) complete(v T, err error) bool {
	completed := false
	f.once.Do(func() {
		f.val = v
		f.err = err
		close(f.done)
		completed = true
	})
	return completed
}
