package async

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/poltergeist/taskmon/pkg/logger"
)

// SafeGroup wraps errgroup.Group with panic recovery, so a panicking goroutine is
// reported as an error instead of crashing the process.
//
// SafeGroup implements Launcher. With a limit set, Launch refuses work instead of
// blocking, returning ErrLaunchRejected.
type SafeGroup struct {
	group  *errgroup.Group
	logger logger.Logger
}

// NewSafeGroup creates a SafeGroup. The returned context is canceled when the first
// goroutine returns an error or Wait returns. A nil log discards panic reports.
func NewSafeGroup(ctx context.Context, log logger.Logger) (*SafeGroup, context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	return &SafeGroup{
		group:  g,
		logger: log,
	}, ctx
}

// Go runs fn in a new goroutine, blocking while the limit is reached.
func (sg *SafeGroup) Go(fn func() error) {
	sg.group.Go(sg.recovering(fn))
}

// TryGo runs fn in a new goroutine only if the limit allows it.
func (sg *SafeGroup) TryGo(fn func() error) bool {
	return sg.group.TryGo(sg.recovering(fn))
}

// Launch implements Launcher.
func (sg *SafeGroup) Launch(fn func()) error {
	ok := sg.TryGo(func() error {
		fn()
		return nil
	})
	if !ok {
		return ErrLaunchRejected
	}
	return nil
}

// SetLimit sets the maximum number of concurrently running goroutines.
// A negative value removes the limit. It must not be called while goroutines run.
func (sg *SafeGroup) SetLimit(n int) {
	sg.group.SetLimit(n)
}

// Wait blocks until all goroutines have returned and reports the first error.
func (sg *SafeGroup) Wait() error {
	return sg.group.Wait()
}

func (sg *SafeGroup) recovering(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				perr := NewPanicError(r)
				if sg.logger != nil {
					sg.logger.Error("Goroutine panic recovered",
						logger.WithField("panic", r),
						logger.WithField("stack_trace", string(perr.Stack)))
				}
				err = fmt.Errorf("goroutine panic: %w", perr)
			}
		}()
		return fn()
	}
}
