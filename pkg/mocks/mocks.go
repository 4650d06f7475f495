// Package mocks provides test doubles for the monitor's collaborators.
package mocks

import (
	"sync"

	"github.com/poltergeist/taskmon/pkg/async"
	"github.com/poltergeist/taskmon/pkg/logger"
)

// Event is one call recorded by RecordingSink.
type Event struct {
	Level   logger.Level
	Source  string
	Message string
	Err     error
	EventID logger.EventID
}

// RecordingSink is a logger.Sink that keeps every event in memory.
type RecordingSink struct {
	mu     sync.Mutex
	events []Event
}

// NewRecordingSink creates an empty recording sink
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// Log records the event
func (s *RecordingSink) Log(level logger.Level, source, message string, err error, eventID logger.EventID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Event{
		Level:   level,
		Source:  source,
		Message: message,
		Err:     err,
		EventID: eventID,
	})
}

// Events returns a copy of the recorded events
func (s *RecordingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// WithID returns the recorded events carrying id
func (s *RecordingSink) WithID(id logger.EventID) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.EventID == id {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many events carry id
func (s *RecordingSink) Count(id logger.EventID) int {
	return len(s.WithID(id))
}

// Reset drops all recorded events
func (s *RecordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// RefusingLauncher is an async.Launcher that never runs anything.
type RefusingLauncher struct {
	Err error

	mu    sync.Mutex
	calls int
}

// Launch refuses fn
func (l *RefusingLauncher) Launch(func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.Err
}

// Calls returns how many launches were attempted
func (l *RefusingLauncher) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

var (
	_ logger.Sink    = (*RecordingSink)(nil)
	_ async.Launcher = (*RefusingLauncher)(nil)
)
