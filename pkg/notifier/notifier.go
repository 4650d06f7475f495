// Package notifier sends desktop notifications about shutdown and failed work
package notifier

import (
	"fmt"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/poltergeist/taskmon/pkg/logger"
)

// ShutdownNotifier tells the user how a shutdown went
type ShutdownNotifier struct {
	enabled      bool
	successSound string
	failureSound string
	logger       logger.Logger
	send         func(title, message string) error
	beep         func() error
}

// Config represents notification configuration
type Config struct {
	Enabled      bool
	SuccessSound string
	FailureSound string
}

// Option customizes a ShutdownNotifier
type Option func(*ShutdownNotifier)

// WithSender replaces the desktop notification backend
func WithSender(send func(title, message string) error) Option {
	return func(n *ShutdownNotifier) { n.send = send }
}

// WithBeeper replaces the sound backend
func WithBeeper(beep func() error) Option {
	return func(n *ShutdownNotifier) { n.beep = beep }
}

// New creates a new shutdown notifier
func New(config Config, log logger.Logger, opts ...Option) *ShutdownNotifier {
	n := &ShutdownNotifier{
		enabled:      config.Enabled,
		successSound: config.SuccessSound,
		failureSound: config.FailureSound,
		logger:       log,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		beep: func() error {
			return beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
		},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NotifyShutdownComplete reports that all work finished within d
func (n *ShutdownNotifier) NotifyShutdownComplete(d time.Duration) {
	if !n.enabled {
		return
	}
	n.sendNotification("✅ taskmon", fmt.Sprintf("All work finished in %s", formatDuration(d)), n.successSound)
}

// NotifyShutdownIncomplete reports work that ignored cancellation
func (n *ShutdownNotifier) NotifyShutdownIncomplete(remaining int) {
	if !n.enabled {
		return
	}
	noun := "tasks"
	if remaining == 1 {
		noun = "task"
	}
	n.sendNotification("⚠️ taskmon", fmt.Sprintf("Shutdown incomplete: %d %s still running", remaining, noun), n.failureSound)
}

// NotifyTaskFailed reports faulted work
func (n *ShutdownNotifier) NotifyTaskFailed(id uint64, err error) {
	if !n.enabled {
		return
	}
	n.sendNotification("❌ Task Failed", fmt.Sprintf("task %d: %v", id, err), n.failureSound)
}

func (n *ShutdownNotifier) sendNotification(title, message, soundName string) {
	if err := n.send(title, message); err != nil {
		n.logger.Debug("Failed to send notification", logger.WithField("error", err))
		n.logger.Info(fmt.Sprintf("%s: %s", title, message))
	}

	if soundName != "" {
		if err := n.beep(); err != nil {
			n.logger.Debug("Failed to play sound", logger.WithField("error", err))
		}
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
