package monitor

import (
	"github.com/poltergeist/taskmon/pkg/async"
	"github.com/poltergeist/taskmon/pkg/cancel"
)

// FutureHandle is a TaskHandle for work producing a T.
type FutureHandle[T any] struct {
	*TaskHandle
	future *async.Future[T]
}

// Future returns the tracked future.
func (h *FutureHandle[T]) Future() *async.Future[T] { return h.future }

// Result blocks until the handle's bookkeeping is done and returns the tracked
// future's outcome.
func (h *FutureHandle[T]) Result() (T, error) {
	<-h.Done()
	return h.future.Result()
}

// completedTracker is implemented by monitors that report work which finished
// before it was submitted.
type completedTracker interface {
	trackCompleted(err error, src *cancel.Source, keepAlive bool)
}

// TrackFuture is Track for a result-typed future.
func TrackFuture[T any](m Monitor, f *async.Future[T], src *cancel.Source, keepAlive bool) (*FutureHandle[T], error) {
	if m == nil {
		return nil, &ArgumentError{Param: "monitor"}
	}
	if f == nil {
		return nil, &ArgumentError{Param: "future"}
	}
	h, err := m.Track(f, src, keepAlive)
	if err != nil || h == nil {
		return nil, err
	}
	return &FutureHandle[T]{TaskHandle: h, future: f}, nil
}

// TrackValue is Track for an async.Value. A completed value is reported without
// allocating a future and yields (nil, nil); src is released per ownership even
// when m cannot report it.
func TrackValue[T any](m Monitor, v async.Value[T], src *cancel.Source, keepAlive bool) (*FutureHandle[T], error) {
	if m == nil {
		return nil, &ArgumentError{Param: "monitor"}
	}
	if v.IsCompleted() {
		if t, ok := m.(completedTracker); ok {
			t.trackCompleted(v.Err(), src, keepAlive)
		} else if src != nil && borrowed(keepAlive).closeOnRelease() {
			_ = src.Close()
		}
		return nil, nil
	}
	return TrackFuture(m, v.AsFuture(), src, keepAlive)
}
