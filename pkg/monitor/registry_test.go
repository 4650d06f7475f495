package monitor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/poltergeist/taskmon/pkg/async"
	"github.com/poltergeist/taskmon/pkg/cancel"
	"github.com/poltergeist/taskmon/pkg/logger"
	"github.com/poltergeist/taskmon/pkg/monitor"
)

// cancellationAware blocks until its context is canceled.
func cancellationAware(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// stubborn ignores its context until release is closed.
func stubborn(release <-chan struct{}) func(context.Context) error {
	return func(context.Context) error {
		<-release
		return nil
	}
}

func TestDispose_Empty(t *testing.T) {
	m, sink := newMonitor(t)

	require.True(t, m.Dispose(0, 0))
	require.True(t, m.Registry().Disposed())
	require.Equal(t, 1, sink.Count(monitor.EventDisposing))
	require.Equal(t, 1, sink.Count(monitor.EventDisposed))
}

func TestDispose_NoWaitNoCancel(t *testing.T) {
	m, _ := newMonitor(t)
	release := gate(t)

	h, err := m.GoCancellable(cancellationAware, nil, false)
	require.NoError(t, err)
	_, err = m.Go(func() error {
		<-release
		return nil
	})
	require.NoError(t, err)

	require.False(t, m.Dispose(0, 0))
	require.Equal(t, 2, m.RunningTaskCount())
	require.False(t, h.IsCancellationRequested())

	h.Cancel()
	close(release)
	require.Eventually(t, func() bool { return m.RunningTaskCount() == 0 }, long, time.Millisecond)
}

func TestDispose_WaitPhase(t *testing.T) {
	t.Run("work finishing in time", func(t *testing.T) {
		m, _ := newMonitor(t)

		_, err := m.Go(func() error {
			time.Sleep(10 * time.Millisecond)
			return nil
		})
		require.NoError(t, err)

		require.True(t, m.Dispose(long, 0))
		require.Zero(t, m.RunningTaskCount())
	})

	t.Run("work outliving the wait is left running", func(t *testing.T) {
		m, _ := newMonitor(t)

		h, err := m.GoCancellable(cancellationAware, nil, false)
		require.NoError(t, err)

		require.False(t, m.Dispose(short, 0))
		require.Equal(t, 1, m.RunningTaskCount())
		require.False(t, h.IsCancellationRequested())
		require.False(t, async.IsCompleted(h))

		h.Cancel()
		waitDone(t, h)
	})
}

func TestDispose_CancelPhase(t *testing.T) {
	t.Run("cancellation-aware work", func(t *testing.T) {
		m, sink := newMonitor(t)

		h1, err := m.GoCancellable(cancellationAware, nil, false)
		require.NoError(t, err)
		h2, err := m.GoCancellable(cancellationAware, cancel.NewSource(context.Background()), false)
		require.NoError(t, err)

		start := time.Now()
		require.True(t, m.Dispose(0, long))
		require.Less(t, time.Since(start), long)

		require.Zero(t, m.RunningTaskCount())
		require.True(t, h1.IsCancellationRequested())
		require.True(t, h2.IsCancellationRequested())
		require.Equal(t, 2, sink.Count(monitor.EventCanceled))

		disposed := sink.WithID(monitor.EventDisposed)
		require.Len(t, disposed, 1)
		require.Equal(t, logger.LevelDebug, disposed[0].Level)
	})

	t.Run("stubborn work", func(t *testing.T) {
		m, sink := newMonitor(t)
		release := gate(t)

		h, err := m.GoCancellable(stubborn(release), nil, false)
		require.NoError(t, err)

		require.False(t, m.Dispose(0, short))
		require.Equal(t, 1, m.RunningTaskCount())
		require.True(t, h.IsCancellationRequested())

		disposed := sink.WithID(monitor.EventDisposed)
		require.Len(t, disposed, 1)
		require.Equal(t, logger.LevelWarning, disposed[0].Level)
		require.ErrorIs(t, disposed[0].Err, monitor.ErrShutdownIncomplete)

		close(release)
		waitDone(t, h)
		require.Zero(t, m.RunningTaskCount())
	})
}

func TestDispose_IsIdempotent(t *testing.T) {
	m, sink := newMonitor(t)
	release := gate(t)

	h, err := m.GoCancellable(stubborn(release), nil, false)
	require.NoError(t, err)
	require.False(t, m.Dispose(0, short))

	// Later calls repeat the first result without touching the handles.
	require.False(t, m.Dispose(long, long))
	require.False(t, m.Dispose(monitor.Infinite, monitor.Infinite))
	require.Equal(t, 1, sink.Count(monitor.EventDisposing))
	require.Equal(t, 1, sink.Count(monitor.EventDisposed))
	require.Equal(t, 1, m.RunningTaskCount())

	close(release)
	waitDone(t, h)
	require.False(t, m.Dispose(0, 0))
}

func TestDispose_ConcurrentCallWaitsForFirstResult(t *testing.T) {
	m, sink := newMonitor(t)
	release := gate(t)

	_, err := m.GoCancellable(stubborn(release), nil, false)
	require.NoError(t, err)

	first := make(chan bool, 1)
	go func() { first <- m.Dispose(monitor.Infinite, 0) }()
	require.Eventually(t, m.Registry().Disposed, long, time.Millisecond)

	second := make(chan bool, 1)
	go func() { second <- m.Dispose(0, 0) }()
	require.Never(t, func() bool { return len(second) > 0 }, short, time.Millisecond)

	close(release)
	require.True(t, <-first)
	require.True(t, <-second)
	require.Equal(t, 1, sink.Count(monitor.EventDisposing))
}

func TestDispose_Infinite(t *testing.T) {
	m, _ := newMonitor(t)

	_, err := m.Go(func() error {
		time.Sleep(10 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)
	require.True(t, m.Dispose(monitor.Infinite, 0))

	m, _ = newMonitor(t)
	_, err = m.GoCancellable(cancellationAware, nil, false)
	require.NoError(t, err)
	require.True(t, m.Dispose(0, -time.Second))
	require.Zero(t, m.RunningTaskCount())
}

// Three units of work A, B and C: B finishes while A and C are pending, then
// shutdown cancels A and C.
func TestDispose_Scenario(t *testing.T) {
	run := func(t *testing.T, cIgnoresCancellation bool) (*monitor.TaskMonitor, bool) {
		m, _ := newMonitor(t)
		release := gate(t)

		srcA := cancel.NewSource(context.Background())
		a := async.NewPromise[struct{}]()
		go func() {
			<-srcA.Context().Done()
			a.Cancel()
		}()
		_, err := m.Track(a.Future(), srcA, false)
		require.NoError(t, err)
		require.Equal(t, 1, m.RunningTaskCount())

		b := async.NewPromise[struct{}]()
		hB, err := m.Track(b.Future(), nil, false)
		require.NoError(t, err)
		require.Equal(t, 2, m.RunningTaskCount())

		b.Resolve(struct{}{})
		waitDone(t, hB)
		require.Equal(t, 1, m.RunningTaskCount())

		c := cancellationAware
		if cIgnoresCancellation {
			c = stubborn(release)
		}
		_, err = m.GoCancellable(c, nil, false)
		require.NoError(t, err)
		require.Equal(t, 2, m.RunningTaskCount())

		if cIgnoresCancellation {
			return m, m.Dispose(short, 50*time.Millisecond)
		}
		return m, m.Dispose(short, long)
	}

	t.Run("all work honors cancellation", func(t *testing.T) {
		m, ok := run(t, false)
		require.True(t, ok)
		require.Zero(t, m.RunningTaskCount())
	})

	t.Run("one unit ignores cancellation", func(t *testing.T) {
		m, ok := run(t, true)
		require.False(t, ok)
		require.Equal(t, 1, m.RunningTaskCount())
	})
}

func TestRegistry_Snapshot(t *testing.T) {
	m, _ := newMonitor(t)
	release := gate(t)

	h1, err := m.Go(func() error {
		<-release
		return nil
	})
	require.NoError(t, err)
	h2, err := m.GoCancellable(stubborn(release), cancel.NewSource(context.Background()), true)
	require.NoError(t, err)
	h2.Cancel()

	snap := m.Registry().Snapshot()
	require.Equal(t, []monitor.HandleInfo{
		{ID: h1.ID(), Ownership: "owned"},
		{ID: h2.ID(), Ownership: "borrowed(keep-alive)", CancellationRequested: true},
	}, snap)

	close(release)
	waitDone(t, h1)
	waitDone(t, h2)
	require.Empty(t, m.Registry().Snapshot())
}

func TestRegistry_Close(t *testing.T) {
	m, _ := newMonitor(t)

	_, err := m.Go(func() error { return nil })
	require.NoError(t, err)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}
