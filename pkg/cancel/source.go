// Package cancel provides a cancellation source: a releasable owner of a
// cancellable context that records whether cancellation was requested and runs
// cancellation callbacks.
package cancel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/poltergeist/taskmon/pkg/disposable"
)

var (
	// ErrClosed is returned by operations on a Source that has been closed.
	ErrClosed = errors.New("cancel: source closed")

	// ErrCanceled is the cause attached to the context when cancellation is
	// requested. It matches context.Canceled.
	ErrCanceled = fmt.Errorf("cancel: cancellation requested: %w", context.Canceled)
)

// Source owns a cancellable context.
//
// It is safe for concurrent use. Close releases the source; afterwards Cancel and
// CancelAfter return ErrClosed and IsCancellationRequested reports false.
type Source struct {
	ctx    context.Context
	cancel context.CancelCauseFunc

	mu        sync.Mutex
	requested bool
	closed    bool
	timer     *time.Timer
	callbacks []callback
	nextID    uint64

	closer disposable.Once
}

type callback struct {
	id uint64
	fn func() error
}

// NewSource creates a Source whose context is derived from parent.
// If parent is nil, context.Background() is used.
func NewSource(parent context.Context) *Source {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parent)
	return &Source{ctx: ctx, cancel: cancel}
}

// Context returns the token observed by cancellable work.
func (s *Source) Context() context.Context {
	return s.ctx
}

// IsCancellationRequested reports whether Cancel was called or the parent context
// was canceled. It reports false once the source is closed.
func (s *Source) IsCancellationRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	return s.requested || s.ctx.Err() != nil
}

// Cancel requests cancellation and runs all registered callbacks, joining their errors.
func (s *Source) Cancel() error {
	return s.CancelAndNotify(false)
}

// CancelAndNotify requests cancellation and runs registered callbacks in reverse
// registration order. With stopOnFirstError, the first failing callback stops the
// remaining ones and its error is returned; otherwise every callback runs and the
// errors are joined.
//
// Only the first request runs callbacks; later calls return nil.
func (s *Source) CancelAndNotify(stopOnFirstError bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.requested {
		s.mu.Unlock()
		return nil
	}
	s.requested = true
	s.stopTimerLocked()
	cbs := s.callbacks
	s.callbacks = nil
	s.mu.Unlock()

	s.cancel(ErrCanceled)
	return runCallbacks(cbs, stopOnFirstError)
}

// CancelAfter schedules Cancel after d, replacing any previously scheduled request.
// A non-positive d cancels immediately.
func (s *Source) CancelAfter(d time.Duration) error {
	if d <= 0 {
		return s.Cancel()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.requested {
		return nil
	}
	s.stopTimerLocked()
	s.timer = time.AfterFunc(d, func() { _ = s.Cancel() })
	return nil
}

// Register adds fn to the callbacks run on cancellation and returns a function
// that removes it again. If cancellation was already requested, fn runs
// immediately and its error is returned.
func (s *Source) Register(fn func() error) (unregister func() bool, err error) {
	if fn == nil {
		return func() bool { return false }, nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return func() bool { return false }, ErrClosed
	}
	if s.requested {
		s.mu.Unlock()
		return func() bool { return false }, runCallbacks([]callback{{fn: fn}}, true)
	}
	s.nextID++
	id := s.nextID
	s.callbacks = append(s.callbacks, callback{id: id, fn: fn})
	s.mu.Unlock()

	return func() bool { return s.unregister(id) }, nil
}

// Close releases the source. It is idempotent and safe for concurrent use.
// The context is canceled with cause ErrClosed unless it was canceled before.
func (s *Source) Close() error {
	return s.closer.Do(func() error {
		s.mu.Lock()
		s.closed = true
		s.stopTimerLocked()
		s.callbacks = nil
		s.mu.Unlock()
		s.cancel(ErrClosed)
		return nil
	})
}

// Closed reports whether Close has completed.
func (s *Source) Closed() bool {
	return s.closer.Disposed()
}

func (s *Source) unregister(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.callbacks {
		if s.callbacks[i].id != id {
			continue
		}
		s.callbacks = append(s.callbacks[:i], s.callbacks[i+1:]...)
		return true
	}
	return false
}

// s.mu must be held.
func (s *Source) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func runCallbacks(cbs []callback, stopOnFirstError bool) error {
	var errs []error
	for i := len(cbs) - 1; i >= 0; i-- {
		if err := callNoPanic(cbs[i].fn); err != nil {
			if stopOnFirstError {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func callNoPanic(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("cancel: callback panicked: %v", p)
		}
	}()
	return fn()
}
