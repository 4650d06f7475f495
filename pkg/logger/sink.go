package logger

import "fmt"

// Level is the severity of a Sink event.
type Level int

const (
	LevelDebug Level = iota
	LevelInformation
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInformation:
		return "information"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// EventID identifies the kind of event reported to a Sink. Zero means none.
type EventID int

//go:generate mockgen -destination=../mocks/mock_sink.go -package=mocks github.com/poltergeist/taskmon/pkg/logger Sink

// Sink receives leveled events from library code.
//
// Implementations must be safe for concurrent use and must not block for long;
// a Sink is called from the goroutines running monitored work.
type Sink interface {
	Log(level Level, source, message string, err error, eventID EventID)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(level Level, source, message string, err error, eventID EventID)

// Log calls f.
func (f SinkFunc) Log(level Level, source, message string, err error, eventID EventID) {
	f(level, source, message, err, eventID)
}

// Discard is a Sink that drops every event.
var Discard Sink = SinkFunc(func(Level, string, string, error, EventID) {})

type loggerSink struct {
	logger Logger
}

// NewSink returns a Sink writing to l. The event source becomes the log target,
// err is attached as the "error" field and a non-zero eventID as "event_id".
// A nil l yields Discard.
func NewSink(l Logger) Sink {
	if l == nil {
		return Discard
	}
	return &loggerSink{logger: l}
}

func (s *loggerSink) Log(level Level, source, message string, err error, eventID EventID) {
	l := s.logger
	if source != "" {
		l = l.WithTarget(source)
	}

	var fields []Field
	if err != nil {
		fields = append(fields, WithField("error", err))
	}
	if eventID != 0 {
		fields = append(fields, WithField("event_id", int(eventID)))
	}

	switch level {
	case LevelDebug:
		l.Debug(message, fields...)
	case LevelInformation:
		l.Info(message, fields...)
	case LevelWarning:
		l.Warn(message, fields...)
	default:
		l.Error(message, fields...)
	}
}
