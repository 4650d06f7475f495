// Package logger provides structured logging with per-source targets and the
// leveled Sink used by the task monitor.
package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Logger interface for abstracted logging
type Logger interface {
	Info(message string, fields ...Field)
	Error(message string, fields ...Field)
	Warn(message string, fields ...Field)
	Debug(message string, fields ...Field)
	Success(message string, fields ...Field)
	WithTarget(target string) Logger
}

// Field represents a structured logging field
type Field struct {
	Key   string
	Value interface{}
}

// WithField creates a new field
func WithField(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// TargetLogger is a Logger over logrus that prefixes entries with a target name,
// typically the component that emitted them.
type TargetLogger struct {
	logger *logrus.Logger
	target string
}

// CustomFormatter renders entries as
//
//	[15:04:05] LEVEL: [target] message {key=value, ...}
//
// with colors unless DisableColors is set.
type CustomFormatter struct {
	TimestampFormat string
	DisableColors   bool
}

var levelStyles = map[logrus.Level]struct {
	text  string
	color *color.Color
}{
	logrus.ErrorLevel: {"ERROR", color.New(color.FgRed, color.Bold)},
	logrus.WarnLevel:  {"WARN", color.New(color.FgYellow, color.Bold)},
	logrus.InfoLevel:  {"INFO", color.New(color.FgCyan)},
	logrus.DebugLevel: {"DEBUG", color.New(color.FgWhite, color.Faint)},
}

var (
	targetColor = color.New(color.FgBlue)
	fieldsColor = color.New(color.FgWhite, color.Faint)
)

// Format implements logrus.Formatter
func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	paint := func(c *color.Color, s string) string {
		if f.DisableColors {
			return s
		}
		return c.Sprint(s)
	}

	style, ok := levelStyles[entry.Level]
	if !ok {
		style.text, style.color = strings.ToUpper(entry.Level.String()), color.New(color.FgGreen)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: ", entry.Time.Format(f.TimestampFormat), paint(style.color, style.text))

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k == "target" {
			fmt.Fprintf(&b, "[%s] ", paint(targetColor, fmt.Sprint(entry.Data[k])))
			continue
		}
		keys = append(keys, k)
	}
	b.WriteString(entry.Message)

	if len(keys) > 0 {
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = fmt.Sprintf("%s=%v", k, entry.Data[k])
		}
		b.WriteString(paint(fieldsColor, " {"+strings.Join(pairs, ", ")+"}"))
	}

	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// CreateLogger creates a colored logger writing to stderr, and to logFile when set.
// Unknown levels fall back to info.
func CreateLogger(logFile string, logLevel string) Logger {
	return newTargetLogger(logFile, logLevel, os.Stderr, false)
}

// CreateLoggerWithOutput creates a logger writing uncolored output to output,
// and to logFile when set.
func CreateLoggerWithOutput(logFile string, logLevel string, output io.Writer) Logger {
	return newTargetLogger(logFile, logLevel, output, true)
}

func newTargetLogger(logFile, logLevel string, output io.Writer, disableColors bool) *TargetLogger {
	log := logrus.New()

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&CustomFormatter{
		TimestampFormat: "15:04:05",
		DisableColors:   disableColors,
	})

	log.SetOutput(output)
	if logFile != "" {
		// A log file that cannot be opened leaves console logging in place.
		if file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600); err == nil {
			log.SetOutput(io.MultiWriter(output, file))
		}
	}

	return &TargetLogger{logger: log}
}

// WithTarget returns a logger sharing l's output that prefixes entries with target.
func (l *TargetLogger) WithTarget(target string) Logger {
	return &TargetLogger{logger: l.logger, target: target}
}

func (l *TargetLogger) log(level logrus.Level, message string, fields []Field) {
	if !l.logger.IsLevelEnabled(level) {
		return
	}
	data := make(logrus.Fields, len(fields)+1)
	for _, f := range fields {
		data[f.Key] = f.Value
	}
	if l.target != "" {
		data["target"] = l.target
	}
	l.logger.WithFields(data).Log(level, message)
}

// Info logs an info message
func (l *TargetLogger) Info(message string, fields ...Field) {
	l.log(logrus.InfoLevel, message, fields)
}

// Error logs an error message
func (l *TargetLogger) Error(message string, fields ...Field) {
	l.log(logrus.ErrorLevel, message, fields)
}

// Warn logs a warning message
func (l *TargetLogger) Warn(message string, fields ...Field) {
	l.log(logrus.WarnLevel, message, fields)
}

// Debug logs a debug message
func (l *TargetLogger) Debug(message string, fields ...Field) {
	l.log(logrus.DebugLevel, message, fields)
}

// Success logs at info level with a check mark.
func (l *TargetLogger) Success(message string, fields ...Field) {
	l.log(logrus.InfoLevel, "✅ "+message, fields)
}

// ConsoleLogger prints plain status lines for the CLI.
type ConsoleLogger struct {
	out io.Writer
	err io.Writer
}

// NewConsoleLogger creates a console logger writing to stdout and stderr.
func NewConsoleLogger() *ConsoleLogger {
	return NewConsoleLoggerWithOutput(os.Stdout, os.Stderr)
}

// NewConsoleLoggerWithOutput creates a console logger with custom writers.
func NewConsoleLoggerWithOutput(out, errOut io.Writer) *ConsoleLogger {
	return &ConsoleLogger{out: out, err: errOut}
}

func (c *ConsoleLogger) print(w io.Writer, tag *color.Color, message string) {
	fmt.Fprintf(w, "%s %s\n", tag.Sprint("[taskmon]"), message)
}

// Info prints info message
func (c *ConsoleLogger) Info(message string) {
	c.print(c.out, color.New(color.FgCyan), message)
}

// Error prints to the error writer.
func (c *ConsoleLogger) Error(message string) {
	c.print(c.err, color.New(color.FgRed), message)
}

// Warn prints warning message
func (c *ConsoleLogger) Warn(message string) {
	c.print(c.out, color.New(color.FgYellow), message)
}

// Success prints success message
func (c *ConsoleLogger) Success(message string) {
	c.print(c.out, color.New(color.FgGreen), "✅ "+message)
}
