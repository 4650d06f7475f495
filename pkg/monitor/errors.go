package monitor

import (
	"errors"
	"fmt"

	"github.com/poltergeist/taskmon/pkg/cancel"
)

// Sentinel errors for monitor operations, checked with errors.Is.
var (
	// ErrDisposed is returned when work is submitted after the registry was disposed.
	ErrDisposed = errors.New("monitor: registry disposed")

	// ErrSourceClosed is returned when the supplied cancellation source was already
	// closed, for example by an earlier submission without keepAlive. It matches
	// cancel.ErrClosed.
	ErrSourceClosed = fmt.Errorf("monitor: src: %w", cancel.ErrClosed)

	// ErrNilArgument matches every *ArgumentError.
	ErrNilArgument = errors.New("monitor: nil argument")

	// ErrShutdownIncomplete is returned by Close when work is still running after
	// both shutdown phases.
	ErrShutdownIncomplete = errors.New("monitor: shutdown incomplete, work still running")
)

// ArgumentError reports a required argument that was nil.
type ArgumentError struct {
	Param string
}

func (e *ArgumentError) Error() string {
	return "monitor: argument " + e.Param + " must not be nil"
}

// Is makes errors.Is(err, ErrNilArgument) hold.
func (e *ArgumentError) Is(target error) bool {
	return target == ErrNilArgument
}
