package monitor_test

import (
	"testing"
	"time"

	"github.com/poltergeist/taskmon/pkg/async"
	"github.com/poltergeist/taskmon/pkg/mocks"
	"github.com/poltergeist/taskmon/pkg/monitor"
)

const (
	short = 20 * time.Millisecond
	long  = 2 * time.Second
)

func newMonitor(t *testing.T, opts ...monitor.Option) (*monitor.TaskMonitor, *mocks.RecordingSink) {
	t.Helper()
	sink := mocks.NewRecordingSink()
	m := monitor.New(append([]monitor.Option{monitor.WithSink(sink)}, opts...)...)
	return m, sink
}

// gate returns a channel that is closed when the test ends, for work that must
// outlive the assertions.
func gate(t *testing.T) chan struct{} {
	t.Helper()
	ch := make(chan struct{})
	t.Cleanup(func() {
		select {
		case <-ch:
		default:
			close(ch)
		}
	})
	return ch
}

func waitDone(t *testing.T, a async.Awaitable) {
	t.Helper()
	select {
	case <-a.Done():
	case <-time.After(long):
		t.Fatal("work did not finish")
	}
}
