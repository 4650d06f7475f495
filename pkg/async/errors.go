package async

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

var (
	// ErrAlreadyStarted is returned by Start when the Future already runs or ran.
	ErrAlreadyStarted = errors.New("async: future already started")

	// ErrLaunchFailed wraps the error of a Launcher that refused to run the work.
	ErrLaunchFailed = errors.New("async: launch failed")

	// ErrLaunchRejected is returned by a SafeGroup launcher when its limit is reached.
	ErrLaunchRejected = errors.New("async: launch rejected, goroutine limit reached")

	// ErrNilRejection is stored when a Promise is rejected with a nil error.
	ErrNilRejection = errors.New("async: promise rejected with nil error")
)

// AggregateError carries several faults of one asynchronous handle.
type AggregateError struct {
	Errors []error
}

// NewAggregateError builds an AggregateError, dropping nil errors.
func NewAggregateError(errs ...error) *AggregateError {
	agg := &AggregateError{}
	for _, err := range errs {
		if err != nil {
			agg.Errors = append(agg.Errors, err)
		}
	}
	return agg
}

func (e *AggregateError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "async: one or more errors occurred"
	case 1:
		return "async: one or more errors occurred: " + e.Errors[0].Error()
	}
	parts := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		parts = append(parts, err.Error())
	}
	return fmt.Sprintf("async: %d errors occurred: %s", len(e.Errors), strings.Join(parts, "; "))
}

// Unwrap exposes the inner errors to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// PanicError is the fault stored when work panics.
type PanicError struct {
	Value any
	// Stack is the goroutine stack captured while recovering, so it includes the
	// panic site.
	Stack []byte
}

// NewPanicError captures the current stack. Call it from the deferred function that
// recovered v.
func NewPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("async: work panicked: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
