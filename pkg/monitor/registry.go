package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/poltergeist/taskmon/pkg/async"
	"github.com/poltergeist/taskmon/pkg/logger"
)

const (
	// Infinite disables a Dispose timeout. Every negative duration behaves the same.
	Infinite time.Duration = -1

	// DefaultWaitingTimeout is the wait phase used by Close.
	DefaultWaitingTimeout = 5 * time.Second

	// DefaultCancelingTimeout is the cancel phase used by Close.
	DefaultCancelingTimeout = 5 * time.Second
)

const registrySource = "registry"

// Registry is the set of live task handles plus the two-phase shutdown.
//
// A handle is registered before its work starts and unregistered after the work has
// finished. Once disposed, the registry rejects new handles, so RunningTaskCount
// only decreases.
type Registry struct {
	sink logger.Sink

	mu       sync.Mutex
	handles  map[*TaskHandle]struct{}
	disposed bool

	// disposeDone is closed once the first Dispose has computed disposeResult.
	disposeDone   chan struct{}
	disposeResult bool
}

// HandleInfo is a point-in-time view of a registered handle.
type HandleInfo struct {
	ID                    uint64 `json:"id"`
	Ownership             string `json:"ownership"`
	CancellationRequested bool   `json:"cancellation_requested"`
	Done                  bool   `json:"done"`
}

// NewRegistry creates an empty registry reporting to sink. A nil sink discards.
func NewRegistry(sink logger.Sink) *Registry {
	if sink == nil {
		sink = logger.Discard
	}
	return &Registry{
		sink:        sink,
		handles:     make(map[*TaskHandle]struct{}),
		disposeDone: make(chan struct{}),
	}
}

// Register adds h. It fails with ErrDisposed once Dispose has been called.
func (r *Registry) Register(h *TaskHandle) error {
	if h == nil || h.task == nil {
		return &ArgumentError{Param: "handle"}
	}
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return ErrDisposed
	}
	r.handles[h] = struct{}{}
	r.mu.Unlock()

	r.sink.Log(logger.LevelDebug, registrySource, fmt.Sprintf("Task %d registered", h.id), nil, EventRegistered)
	return nil
}

// Unregister removes h. Removing an absent handle is a no-op.
func (r *Registry) Unregister(h *TaskHandle) {
	if h == nil {
		return
	}
	r.mu.Lock()
	_, ok := r.handles[h]
	delete(r.handles, h)
	r.mu.Unlock()

	if ok {
		r.sink.Log(logger.LevelDebug, registrySource, fmt.Sprintf("Task %d unregistered", h.id), nil, EventUnregistered)
	}
}

// RunningTaskCount returns the number of registered handles.
func (r *Registry) RunningTaskCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Disposed reports whether Dispose has been called.
func (r *Registry) Disposed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disposed
}

// Snapshot returns the registered handles ordered by id.
func (r *Registry) Snapshot() []HandleInfo {
	handles := r.handlesSnapshot()
	out := make([]HandleInfo, 0, len(handles))
	for _, h := range handles {
		out = append(out, HandleInfo{
			ID:                    h.id,
			Ownership:             h.own.String(),
			CancellationRequested: h.IsCancellationRequested(),
			Done:                  async.IsCompleted(h.task),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Dispose stops accepting work and shuts down what is running.
//
// The wait phase blocks until the registered work finishes or waitingTimeout
// elapses; a zero waitingTimeout skips it. If work remains and cancelingTimeout is
// non-zero, every registered handle is canceled and the cancel phase waits up to
// cancelingTimeout. Negative timeouts wait without limit.
//
// Each phase waits on the handles registered when it began. Dispose returns whether
// no work is left. Later calls have no side effects and return the result of the
// first call, waiting for it while that call is still running.
func (r *Registry) Dispose(waitingTimeout, cancelingTimeout time.Duration) bool {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		<-r.disposeDone
		return r.disposeResult
	}
	r.disposed = true
	pending := len(r.handles)
	r.mu.Unlock()

	completed := r.dispose(pending, waitingTimeout, cancelingTimeout)
	r.disposeResult = completed
	close(r.disposeDone)
	return completed
}

func (r *Registry) dispose(pending int, waitingTimeout, cancelingTimeout time.Duration) bool {
	r.sink.Log(logger.LevelDebug, registrySource,
		fmt.Sprintf("Disposing with %d running tasks (wait %s, cancel %s)", pending, waitingTimeout, cancelingTimeout),
		nil, EventDisposing)

	completed := pending == 0
	if !completed && waitingTimeout != 0 {
		waitAll(r.handlesSnapshot(), waitingTimeout)
		completed = r.RunningTaskCount() == 0
	}

	if !completed && cancelingTimeout != 0 {
		// Canceling outside the lock keeps cancellation callbacks from running under
		// it. Nothing can register in between since disposed is set.
		for _, h := range r.handlesSnapshot() {
			h.Cancel()
		}
		waitAll(r.handlesSnapshot(), cancelingTimeout)
		completed = r.RunningTaskCount() == 0
	}

	remaining := r.RunningTaskCount()
	if completed {
		r.sink.Log(logger.LevelDebug, registrySource, "Disposed, all tasks finished", nil, EventDisposed)
	} else {
		r.sink.Log(logger.LevelWarning, registrySource,
			fmt.Sprintf("Disposed with %d tasks still running", remaining), ErrShutdownIncomplete, EventDisposed)
	}
	return completed
}

// Close disposes with DefaultWaitingTimeout and DefaultCancelingTimeout and returns
// ErrShutdownIncomplete when work is still running.
func (r *Registry) Close() error {
	if !r.Dispose(DefaultWaitingTimeout, DefaultCancelingTimeout) {
		return ErrShutdownIncomplete
	}
	return nil
}

func (r *Registry) handlesSnapshot() []*TaskHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*TaskHandle, 0, len(r.handles))
	for h := range r.handles {
		out = append(out, h)
	}
	return out
}

// waitAll blocks until every handle's work is done or timeout elapses and reports
// whether all finished. A negative timeout waits without limit.
func waitAll(handles []*TaskHandle, timeout time.Duration) bool {
	if len(handles) == 0 {
		return true
	}

	ctx, cancel := context.WithCancel(context.Background())
	if timeout >= 0 {
		cancel()
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
	}
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range handles {
		done := h.task.Done()
		g.Go(func() error {
			select {
			case <-done:
				return nil
			default:
			}
			select {
			case <-done:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	return g.Wait() == nil
}
