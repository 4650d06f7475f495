package monitor

import "github.com/poltergeist/taskmon/pkg/logger"

// Event ids reported to the logger.Sink.
const (
	EventRegistered logger.EventID = iota + 1
	EventUnregistered
	EventCompleted
	EventFaulted
	EventCanceled
	EventStartFailed
	EventDisposing
	EventDisposed
)
