package monitor

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/poltergeist/taskmon/pkg/async"
	"github.com/poltergeist/taskmon/pkg/cancel"
	"github.com/poltergeist/taskmon/pkg/disposable"
)

// ownership says who releases a handle's cancellation source.
type ownership struct {
	borrowed  bool
	keepAlive bool
}

// owned is a source created by the monitor. It is always closed on completion.
func owned() ownership { return ownership{} }

// borrowed is a source supplied by the caller. It is closed on completion unless
// keepAlive is set.
func borrowed(keepAlive bool) ownership {
	return ownership{borrowed: true, keepAlive: keepAlive}
}

func (o ownership) closeOnRelease() bool {
	return !o.borrowed || !o.keepAlive
}

func (o ownership) String() string {
	switch {
	case !o.borrowed:
		return "owned"
	case o.keepAlive:
		return "borrowed(keep-alive)"
	default:
		return "borrowed"
	}
}

var lastHandleID atomic.Uint64

// TaskHandle tracks one unit of monitored work and the cancellation source that
// can stop it.
//
// Cancellation queries stay valid after the work has finished: once the source is
// released, the handle answers from the value captured at release time.
type TaskHandle struct {
	id   uint64
	task async.Awaitable
	own  ownership

	mu       sync.Mutex
	source   *cancel.Source
	emulated bool

	released disposable.Once
}

func newHandle(src *cancel.Source, own ownership) *TaskHandle {
	return &TaskHandle{
		id:     lastHandleID.Add(1),
		own:    own,
		source: src,
	}
}

// ID returns a process-unique identifier used to correlate log events.
func (h *TaskHandle) ID() uint64 { return h.id }

// Task returns the monitored work. It completes after the handle has been
// unregistered and its outcome reported.
func (h *TaskHandle) Task() async.Awaitable { return h.task }

// Done is shorthand for Task().Done().
func (h *TaskHandle) Done() <-chan struct{} { return h.task.Done() }

// Err is shorthand for Task().Err().
func (h *TaskHandle) Err() error { return h.task.Err() }

// Cancel requests cancellation. It is safe to call at any time; after the work has
// finished it only records the request. Callback errors are dropped, use
// CancelAndNotify to observe them.
func (h *TaskHandle) Cancel() {
	_ = h.CancelAndNotify(false)
}

// CancelAndNotify requests cancellation and returns the errors of the source's
// cancellation callbacks, see cancel.Source.CancelAndNotify.
func (h *TaskHandle) CancelAndNotify(stopOnFirstError bool) error {
	src := h.liveSource()
	if src == nil {
		return nil
	}
	err := src.CancelAndNotify(stopOnFirstError)
	h.settle()
	if errors.Is(err, cancel.ErrClosed) {
		return nil
	}
	return err
}

// CancelAfter requests cancellation after d. After the work has finished the
// request is recorded immediately.
func (h *TaskHandle) CancelAfter(d time.Duration) {
	if src := h.liveSource(); src != nil {
		h.cancelAfter(src, d)
	}
}

// cancelAfter schedules the request on src. A src closed since it was read was
// released by the handle, so the request is recorded instead.
func (h *TaskHandle) cancelAfter(src *cancel.Source, d time.Duration) {
	err := src.CancelAfter(d)
	if d <= 0 || errors.Is(err, cancel.ErrClosed) {
		h.settle()
	}
}

// IsCancellationRequested reports whether cancellation was requested, either on the
// live source or, after release, at any point before or since.
func (h *TaskHandle) IsCancellationRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.source != nil {
		return h.source.IsCancellationRequested()
	}
	return h.emulated
}

// liveSource returns the source, or records the request and returns nil when it
// has already been released.
func (h *TaskHandle) liveSource() *cancel.Source {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.source == nil {
		h.emulated = true
	}
	return h.source
}

// settle records a cancel request that raced with the release of the source.
func (h *TaskHandle) settle() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.source == nil {
		h.emulated = true
	}
}

// releaseCancellation swaps the source out, captures its cancellation state and
// closes it when the handle's ownership says so. Only the first call has an effect.
func (h *TaskHandle) releaseCancellation() error {
	return h.released.Do(func() error {
		h.mu.Lock()
		defer h.mu.Unlock()
		src := h.source
		if src == nil {
			return nil
		}
		h.source = nil
		h.emulated = h.emulated || src.IsCancellationRequested()
		if h.own.closeOnRelease() {
			return src.Close()
		}
		return nil
	})
}
