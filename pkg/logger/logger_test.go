package logger_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	pcontext "github.com/poltergeist/taskmon/pkg/context"
	"github.com/poltergeist/taskmon/pkg/logger"
)

func TestCreateLogger(t *testing.T) {
	log := logger.CreateLogger("", "info")
	require.NotNil(t, log)
}

func TestCreateLogger_Levels(t *testing.T) {
	tests := []struct {
		level   string
		visible []string
		hidden  []string
	}{
		{"debug", []string{"DEBUG", "INFO", "WARN", "ERROR"}, nil},
		{"info", []string{"INFO", "WARN", "ERROR"}, []string{"DEBUG"}},
		{"warn", []string{"WARN", "ERROR"}, []string{"DEBUG", "INFO"}},
		{"error", []string{"ERROR"}, []string{"DEBUG", "INFO", "WARN"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := logger.CreateLoggerWithOutput("", tt.level, &buf)

			log.Debug("message")
			log.Info("message")
			log.Warn("message")
			log.Error("message")

			output := buf.String()
			for _, level := range tt.visible {
				require.Contains(t, output, level+":")
			}
			for _, level := range tt.hidden {
				require.NotContains(t, output, level+":")
			}
		})
	}
}

func TestCreateLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("", "chatty", &buf)

	log.Debug("hidden")
	log.Info("shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}

func TestLogger_WithTarget(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("", "info", &buf)

	log.WithTarget("registry").Info("disposing")
	require.Contains(t, buf.String(), "[registry] disposing")
}

func TestLogger_Success(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("", "info", &buf)

	log.Success("shutdown completed")
	require.Contains(t, buf.String(), "shutdown completed")
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("", "info", &buf)

	log.Info("task finished",
		logger.WithField("task_id", 7),
		logger.WithField("attempt", "first"),
	)

	require.Contains(t, buf.String(), "task finished {attempt=first, task_id=7}")
}

func TestLogger_MultipleTargets(t *testing.T) {
	var buf bytes.Buffer
	baseLog := logger.CreateLoggerWithOutput("", "info", &buf)

	baseLog.WithTarget("registry").Info("registry message")
	baseLog.WithTarget("monitor").Info("monitor message")

	output := buf.String()
	require.Contains(t, output, "[registry] registry message")
	require.Contains(t, output, "[monitor] monitor message")
}

func TestLoggerContext_AddsTracingFields(t *testing.T) {
	var buf bytes.Buffer
	base := logger.CreateLoggerWithOutput("", "info", &buf)

	ctx := pcontext.WithCorrelationID(pcontext.WithTaskID(context.Background(), 3), "cor_test")
	logger.WithContext(ctx, base).Info("working")

	output := buf.String()
	require.Contains(t, output, "task_id=3")
	require.Contains(t, output, "correlation_id=cor_test")
	require.NotContains(t, output, "operation=")
}

func TestSink_MapsLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	sink := logger.NewSink(logger.CreateLoggerWithOutput("", "debug", &buf))

	boom := errors.New("boom")
	sink.Log(logger.LevelDebug, "registry", "registered", nil, 1)
	sink.Log(logger.LevelInformation, "monitor", "completed", nil, 0)
	sink.Log(logger.LevelWarning, "monitor", "canceled", nil, 5)
	sink.Log(logger.LevelError, "monitor", "faulted", boom, 4)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	require.Contains(t, lines[0], "DEBUG: [registry] registered {event_id=1}")
	require.Contains(t, lines[1], "INFO: [monitor] completed")
	require.NotContains(t, lines[1], "event_id")
	require.Contains(t, lines[2], "WARN: [monitor] canceled {event_id=5}")
	require.Contains(t, lines[3], "ERROR: [monitor] faulted {error=boom, event_id=4}")
}

func TestSink_NilLoggerDiscards(t *testing.T) {
	sink := logger.NewSink(nil)
	require.NotNil(t, sink)
	sink.Log(logger.LevelError, "monitor", "faulted", errors.New("boom"), 4)
}

func TestLevel_String(t *testing.T) {
	require.Equal(t, "information", logger.LevelInformation.String())
	require.Equal(t, "Level(9)", logger.Level(9).String())
}

func TestConsoleLogger(t *testing.T) {
	var out, errOut bytes.Buffer
	console := logger.NewConsoleLoggerWithOutput(&out, &errOut)

	console.Info("starting")
	console.Error("failed")

	require.Contains(t, out.String(), "starting")
	require.Contains(t, errOut.String(), "failed")
	require.NotContains(t, out.String(), "failed")
}
