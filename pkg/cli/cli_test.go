package cli_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/poltergeist/taskmon/pkg/cli"
	"github.com/poltergeist/taskmon/pkg/monitor"
	"github.com/poltergeist/taskmon/pkg/notifier"
)

// syncBuffer is written by log goroutines while tests read it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestCLI(t *testing.T) (*cli.CLI, *syncBuffer, *syncBuffer) {
	t.Helper()
	cfg := cli.NewConfig()
	cfg.Version = "1.2.3"
	// keep config discovery away from the working directory
	cfg.ProjectRoot = t.TempDir()
	out, errOut := &syncBuffer{}, &syncBuffer{}
	return cli.NewCLIWithOutput(cfg, out, errOut), out, errOut
}

type effectiveConfig struct {
	Version  string `json:"version"`
	Shutdown struct {
		WaitingTimeout   string `json:"waitingTimeout"`
		CancelingTimeout string `json:"cancelingTimeout"`
	} `json:"shutdown"`
	Logging struct {
		Level string `json:"level"`
	} `json:"logging"`
	Notifications struct {
		Enabled bool `json:"enabled"`
	} `json:"notifications"`
}

func runConfig(t *testing.T, c *cli.CLI, out *syncBuffer, args ...string) effectiveConfig {
	t.Helper()
	require.NoError(t, c.Execute(append([]string{"config", "-o", "json"}, args...)))

	var got effectiveConfig
	require.NoError(t, json.Unmarshal([]byte(out.String()), &got))
	return got
}

func TestVersionCommand(t *testing.T) {
	c, out, _ := newTestCLI(t)

	require.NoError(t, c.Execute([]string{"version"}))
	require.Contains(t, out.String(), "1.2.3")
}

func TestConfigCommandDefaults(t *testing.T) {
	c, out, errOut := newTestCLI(t)

	got := runConfig(t, c, out)
	require.Equal(t, "1.0", got.Version)
	require.Equal(t, "5s", got.Shutdown.WaitingTimeout)
	require.Equal(t, "5s", got.Shutdown.CancelingTimeout)
	require.Equal(t, "info", got.Logging.Level)
	require.False(t, got.Notifications.Enabled)
	require.Contains(t, errOut.String(), "defaults")
}

func TestConfigCommandYAML(t *testing.T) {
	c, out, _ := newTestCLI(t)

	require.NoError(t, c.Execute([]string{"config"}))
	require.Contains(t, out.String(), "waitingTimeout: 5s")
}

func TestConfigPrecedence(t *testing.T) {
	root := t.TempDir()
	configFile := filepath.Join(root, "taskmon.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(`version: "1.0"
shutdown:
  waitingTimeout: 2s
  cancelingTimeout: 3s
logging:
  level: warn
`), 0o600))

	t.Run("file", func(t *testing.T) {
		c, out, errOut := newTestCLI(t)
		got := runConfig(t, c, out, "--root", root)
		require.Equal(t, "2s", got.Shutdown.WaitingTimeout)
		require.Equal(t, "3s", got.Shutdown.CancelingTimeout)
		require.Equal(t, "warn", got.Logging.Level)
		require.Contains(t, errOut.String(), configFile)
	})

	t.Run("explicit file", func(t *testing.T) {
		c, out, _ := newTestCLI(t)
		got := runConfig(t, c, out, "--config", configFile)
		require.Equal(t, "2s", got.Shutdown.WaitingTimeout)
	})

	t.Run("environment over file", func(t *testing.T) {
		t.Setenv("TASKMON_SHUTDOWN_CANCELINGTIMEOUT", "infinite")
		t.Setenv("TASKMON_LOGGING_LEVEL", "ERROR")

		c, out, _ := newTestCLI(t)
		got := runConfig(t, c, out, "--root", root)
		require.Equal(t, "2s", got.Shutdown.WaitingTimeout)
		require.Equal(t, "infinite", got.Shutdown.CancelingTimeout)
		require.Equal(t, "error", got.Logging.Level)
	})

	t.Run("flag over environment", func(t *testing.T) {
		t.Setenv("TASKMON_LOGGING_LEVEL", "error")

		c, out, _ := newTestCLI(t)
		got := runConfig(t, c, out, "--root", root, "--verbosity", "debug")
		require.Equal(t, "debug", got.Logging.Level)
	})
}

func TestConfigErrors(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		c, _, _ := newTestCLI(t)
		err := c.Execute([]string{"config", "--config", filepath.Join(t.TempDir(), "nope.json")})
		require.Error(t, err)
	})

	t.Run("invalid environment duration", func(t *testing.T) {
		t.Setenv("TASKMON_SHUTDOWN_WAITINGTIMEOUT", "soon")
		c, _, _ := newTestCLI(t)
		err := c.Execute([]string{"config"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "shutdown.waitingTimeout")
	})

	t.Run("unknown format", func(t *testing.T) {
		c, _, _ := newTestCLI(t)
		require.Error(t, c.Execute([]string{"config", "-o", "toml"}))
	})
}

func TestRunCommand(t *testing.T) {
	t.Run("all tasks finish", func(t *testing.T) {
		c, out, _ := newTestCLI(t)
		err := c.Execute([]string{"run", "--tasks", "3", "--work", "10ms", "--for", "5s"})
		require.NoError(t, err)
		require.Contains(t, out.String(), "3 succeeded, 0 faulted, 0 canceled, 0 still running")
	})

	t.Run("cancellable tasks are canceled", func(t *testing.T) {
		c, out, _ := newTestCLI(t)
		err := c.Execute([]string{"run", "--tasks", "2", "--work", "1h", "--for", "20ms",
			"--wait-timeout", "10ms", "--cancel-timeout", "5s"})
		require.NoError(t, err)
		require.Contains(t, out.String(), "0 succeeded, 0 faulted, 2 canceled, 0 still running")
	})

	t.Run("stubborn task leaves shutdown incomplete", func(t *testing.T) {
		c, out, _ := newTestCLI(t)
		err := c.Execute([]string{"run", "--tasks", "2", "--stubborn", "1", "--work", "300ms", "--for", "20ms",
			"--wait-timeout", "10ms", "--cancel-timeout", "10ms"})
		require.ErrorIs(t, err, monitor.ErrShutdownIncomplete)
		require.Contains(t, out.String(), "1 canceled, 1 still running")
	})

	t.Run("rejects more special tasks than tasks", func(t *testing.T) {
		c, _, _ := newTestCLI(t)
		err := c.Execute([]string{"run", "--tasks", "1", "--stubborn", "1", "--failing", "1"})
		require.Error(t, err)
	})
}

type recordingSender struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingSender) send(title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, title+": "+message)
	return nil
}

func (r *recordingSender) all() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.messages, "\n")
}

func TestRunNotifications(t *testing.T) {
	sender := &recordingSender{}
	c, _, errOut := newTestCLI(t)
	c.SetNotifierOptions(
		notifier.WithSender(sender.send),
		notifier.WithBeeper(func() error { return nil }),
	)

	err := c.Execute([]string{"run", "--tasks", "2", "--failing", "1", "--work", "20ms", "--for", "5s", "--notify"})
	require.NoError(t, err)

	messages := sender.all()
	require.Contains(t, messages, "All work finished")
	require.Contains(t, messages, "Task Failed")
	require.Contains(t, messages, cli.ErrWorkerFailed.Error())
	require.Contains(t, errOut.String(), "1 succeeded, 1 faulted")
}

func TestRunWithoutNotifyFlagStaysQuiet(t *testing.T) {
	sender := &recordingSender{}
	c, _, _ := newTestCLI(t)
	c.SetNotifierOptions(notifier.WithSender(sender.send))

	require.NoError(t, c.Execute([]string{"run", "--tasks", "1", "--work", "5ms", "--for", "5s"}))
	require.Empty(t, sender.all())
}
