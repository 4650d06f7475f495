// Package monitor launches and tracks background work and shuts it down in bounded
// time.
//
// Every submitted unit of work gets a TaskHandle that is registered before the
// work starts and unregistered once it has finished, so RunningTaskCount never
// misses work in flight. Dispose waits for the registered work, cancels what is
// left and waits again.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/poltergeist/taskmon/pkg/async"
	"github.com/poltergeist/taskmon/pkg/cancel"
	pcontext "github.com/poltergeist/taskmon/pkg/context"
	"github.com/poltergeist/taskmon/pkg/logger"
)

// Monitor submits work and tracks it until it finishes.
//
// Submission fails with an *ArgumentError for nil work and with ErrDisposed after
// Dispose. Faults of the work never surface from submission; they are reported to
// the sink and through the handle's Task.
type Monitor interface {
	// Go runs fn. fn cannot observe cancellation.
	Go(fn func() error) (*TaskHandle, error)

	// GoCancellable runs fn with the context of src. A nil src is replaced by a
	// source owned by the monitor. A supplied src is closed when fn returns unless
	// keepAlive is set; submitting an already closed src fails with ErrSourceClosed.
	GoCancellable(fn func(ctx context.Context) error, src *cancel.Source, keepAlive bool) (*TaskHandle, error)

	// Track monitors work that is already running. If a has already completed, its
	// outcome is reported, src is released per ownership and (nil, nil) is returned.
	Track(a async.Awaitable, src *cancel.Source, keepAlive bool) (*TaskHandle, error)

	RunningTaskCount() int
	Dispose(waitingTimeout, cancelingTimeout time.Duration) bool
	Close() error
}

const monitorSource = "monitor"

// Submission operations, attached to the context of monitored work.
const (
	opGo            = "go"
	opGoCancellable = "go-cancellable"
	opTrack         = "track"
)

// TaskMonitor is the Monitor backed by a Registry.
type TaskMonitor struct {
	registry *Registry
	sink     logger.Sink
	launcher async.Launcher
	baseCtx  context.Context
}

// Option configures a TaskMonitor.
type Option func(*TaskMonitor)

// WithSink sets the sink receiving registry and outcome events.
func WithSink(sink logger.Sink) Option {
	return func(m *TaskMonitor) {
		if sink != nil {
			m.sink = sink
		}
	}
}

// WithLauncher sets the launcher that starts work. The default starts a goroutine
// per unit of work.
func WithLauncher(l async.Launcher) Option {
	return func(m *TaskMonitor) {
		if l != nil {
			m.launcher = l
		}
	}
}

// WithBaseContext sets the parent of the sources the monitor creates.
func WithBaseContext(ctx context.Context) Option {
	return func(m *TaskMonitor) {
		if ctx != nil {
			m.baseCtx = ctx
		}
	}
}

// New creates a TaskMonitor.
func New(opts ...Option) *TaskMonitor {
	m := &TaskMonitor{
		sink:     logger.Discard,
		launcher: async.GoLauncher,
		baseCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.registry = NewRegistry(m.sink)
	return m
}

var _ Monitor = (*TaskMonitor)(nil)

// Registry exposes the registry for inspection.
func (m *TaskMonitor) Registry() *Registry { return m.registry }

// RunningTaskCount returns the number of registered handles.
func (m *TaskMonitor) RunningTaskCount() int { return m.registry.RunningTaskCount() }

// Dispose runs the two-phase shutdown, see Registry.Dispose.
func (m *TaskMonitor) Dispose(waitingTimeout, cancelingTimeout time.Duration) bool {
	return m.registry.Dispose(waitingTimeout, cancelingTimeout)
}

// Close disposes with the default timeouts, see Registry.Close.
func (m *TaskMonitor) Close() error { return m.registry.Close() }

// Go implements Monitor.
func (m *TaskMonitor) Go(fn func() error) (*TaskHandle, error) {
	if fn == nil {
		return nil, &ArgumentError{Param: "fn"}
	}
	src := cancel.NewSource(m.baseCtx)
	return m.start(opGo, src, owned(), func(context.Context) error { return fn() })
}

// GoCancellable implements Monitor.
func (m *TaskMonitor) GoCancellable(fn func(ctx context.Context) error, src *cancel.Source, keepAlive bool) (*TaskHandle, error) {
	if fn == nil {
		return nil, &ArgumentError{Param: "fn"}
	}
	src, own, err := m.source(src, keepAlive)
	if err != nil {
		return nil, err
	}
	return m.start(opGoCancellable, src, own, fn)
}

// Track implements Monitor. Pending work is joined through async.Wait, so the
// handle's Task fails with the original fault value.
func (m *TaskMonitor) Track(a async.Awaitable, src *cancel.Source, keepAlive bool) (*TaskHandle, error) {
	if a == nil {
		return nil, &ArgumentError{Param: "task"}
	}
	if async.IsCompleted(a) {
		m.trackCompleted(a.Err(), src, keepAlive)
		return nil, nil
	}
	src, own, err := m.source(src, keepAlive)
	if err != nil {
		return nil, err
	}
	return m.start(opTrack, src, own, func(context.Context) error {
		return async.Wait(a, false)
	})
}

// source returns the source work runs under and who releases it. A nil src is
// replaced by an owned one; a closed src is refused.
func (m *TaskMonitor) source(src *cancel.Source, keepAlive bool) (*cancel.Source, ownership, error) {
	if src == nil {
		return cancel.NewSource(m.baseCtx), owned(), nil
	}
	if src.Closed() {
		return nil, ownership{}, ErrSourceClosed
	}
	return src, borrowed(keepAlive), nil
}

// trackCompleted handles work that finished before it was submitted. Nothing is
// registered; a supplied source is released per ownership.
func (m *TaskMonitor) trackCompleted(err error, src *cancel.Source, keepAlive bool) {
	if src != nil && borrowed(keepAlive).closeOnRelease() {
		_ = src.Close()
	}
	m.report("Tracked task", err)
}

// start registers the handle and then launches its work. If the launcher refuses,
// the handle is unregistered and its source released before the error is returned.
func (m *TaskMonitor) start(op string, src *cancel.Source, own ownership, fn func(ctx context.Context) error) (*TaskHandle, error) {
	h := newHandle(src, own)
	ctx := pcontext.EnrichContext(src.Context(), h.id, op)
	task := async.NewTask(func() error {
		return m.execute(h, func() error { return fn(ctx) })
	})
	h.task = task

	if err := m.registry.Register(h); err != nil {
		_ = h.releaseCancellation()
		return nil, err
	}

	if err := task.Start(m.launcher); err != nil {
		m.registry.Unregister(h)
		_ = h.releaseCancellation()
		m.sink.Log(logger.LevelError, monitorSource, fmt.Sprintf("Task %d failed to start", h.id), err, EventStartFailed)
		return nil, err
	}
	return h, nil
}

// execute runs work and does the handle's bookkeeping before the task completes,
// so a joined task is never still counted as running.
func (m *TaskMonitor) execute(h *TaskHandle, work func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = async.NewPanicError(p)
		}
		_ = h.releaseCancellation()
		m.registry.Unregister(h)
		m.report(fmt.Sprintf("Task %d", h.id), err)
	}()
	return work()
}

// report emits exactly one outcome event.
func (m *TaskMonitor) report(subject string, err error) {
	switch async.StatusFromError(err) {
	case async.StatusSucceeded:
		m.sink.Log(logger.LevelInformation, monitorSource, subject+" completed", nil, EventCompleted)
	case async.StatusCanceled:
		m.sink.Log(logger.LevelWarning, monitorSource, subject+" was canceled", err, EventCanceled)
	default:
		m.sink.Log(logger.LevelError, monitorSource, subject+" faulted", err, EventFaulted)
	}
}
