package monitor

import (
	"context"
	"time"

	"github.com/poltergeist/taskmon/pkg/async"
	"github.com/poltergeist/taskmon/pkg/cancel"
)

// Nop is a Monitor that runs and tracks nothing. Submissions validate their
// arguments and return no handle; it never reports running work.
type Nop struct{}

var _ Monitor = Nop{}

// Go implements Monitor.
func (Nop) Go(fn func() error) (*TaskHandle, error) {
	if fn == nil {
		return nil, &ArgumentError{Param: "fn"}
	}
	return nil, nil
}

// GoCancellable implements Monitor.
func (Nop) GoCancellable(fn func(ctx context.Context) error, _ *cancel.Source, _ bool) (*TaskHandle, error) {
	if fn == nil {
		return nil, &ArgumentError{Param: "fn"}
	}
	return nil, nil
}

// Track implements Monitor.
func (Nop) Track(a async.Awaitable, _ *cancel.Source, _ bool) (*TaskHandle, error) {
	if a == nil {
		return nil, &ArgumentError{Param: "task"}
	}
	return nil, nil
}

func (Nop) RunningTaskCount() int { return 0 }

func (Nop) Dispose(time.Duration, time.Duration) bool { return true }

func (Nop) Close() error { return nil }
