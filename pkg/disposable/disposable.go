// Package disposable provides release-once semantics for resources that may be
// released from several goroutines at the same time.
package disposable

import (
	"sync"
	"sync/atomic"
)

// Once releases a resource exactly once.
//
// The zero value is ready to use. Concurrent calls to Do block until the first
// release has finished and then return its result.
type Once struct {
	once     sync.Once
	disposed atomic.Bool
	err      error
}

// Do runs release the first time it is called and returns the error of that
// first release on every call.
func (o *Once) Do(release func() error) error {
	o.once.Do(func() {
		defer o.disposed.Store(true)
		if release != nil {
			o.err = release()
		}
	})
	return o.err
}

// Disposed reports whether the release has completed.
func (o *Once) Disposed() bool {
	return o.disposed.Load()
}
