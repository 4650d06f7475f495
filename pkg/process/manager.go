// Package process hosts monitored work in a process: it turns OS signals or
// context cancellation into one orderly shutdown.
package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/poltergeist/taskmon/pkg/logger"
)

// DefaultHeartbeatInterval is used when SetHeartbeat gets a non-positive interval.
const DefaultHeartbeatInterval = 10 * time.Second

// ShutdownHandler releases one part of the process. Handlers run in reverse
// registration order.
type ShutdownHandler func() error

// Manager handles process lifecycle and signals
type Manager struct {
	logger            logger.Logger
	shutdownHandlers  []ShutdownHandler
	heartbeatFunc     func()
	heartbeatInterval time.Duration
	heartbeatStop     chan struct{}
	signals           []os.Signal

	wg           sync.WaitGroup
	mu           sync.Mutex
	running      bool
	shutdownOnce sync.Once
	done         chan struct{}
	shutdownErr  error
}

// NewManager creates a new process manager handling SIGINT, SIGTERM and SIGHUP.
func NewManager(log logger.Logger) *Manager {
	return &Manager{
		logger:  log,
		signals: []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP},
		done:    make(chan struct{}),
	}
}

// RegisterShutdownHandler adds a shutdown handler
func (m *Manager) RegisterShutdownHandler(handler ShutdownHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shutdownHandlers = append(m.shutdownHandlers, handler)
}

// Start starts the process manager. Shutdown runs on the first handled signal or
// when ctx is done.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.heartbeatStop = make(chan struct{})
	heartbeat := m.heartbeatFunc
	m.mu.Unlock()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, m.signals...)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer signal.Stop(sigChan)

		select {
		case <-ctx.Done():
			m.logger.Info("Context done", logger.WithField("cause", context.Cause(ctx)))
			m.Shutdown()
		case sig := <-sigChan:
			m.logger.Info("Received signal", logger.WithField("signal", sig))
			m.Shutdown()
		case <-m.done:
		}
	}()

	if heartbeat != nil {
		m.startHeartbeat(ctx, heartbeat)
	}
}

// Stop stops signal handling and the heartbeat without running the shutdown
// handlers, unless a shutdown is already in progress.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		m.wg.Wait()
		return
	}
	m.running = false
	close(m.heartbeatStop)
	m.mu.Unlock()

	m.shutdownOnce.Do(func() { close(m.done) })
	m.wg.Wait()
}

// IsRunning checks if the process manager is running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// SetHeartbeat sets a function run every interval while the manager runs.
// It must be called before Start.
func (m *Manager) SetHeartbeat(interval time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	m.heartbeatInterval = interval
	m.heartbeatFunc = fn
}

// Shutdown runs the shutdown handlers once, in reverse order, and returns their
// joined errors. Later calls return the same result.
func (m *Manager) Shutdown() error {
	m.shutdownOnce.Do(func() {
		m.logger.Info("Initiating graceful shutdown...")

		m.mu.Lock()
		handlers := make([]ShutdownHandler, len(m.shutdownHandlers))
		copy(handlers, m.shutdownHandlers)
		if m.running {
			m.running = false
			close(m.heartbeatStop)
		}
		m.mu.Unlock()

		var errs []error
		for i := len(handlers) - 1; i >= 0; i-- {
			if err := runHandler(handlers[i]); err != nil {
				m.logger.Error("Shutdown handler failed", logger.WithField("error", err))
				errs = append(errs, err)
			}
		}
		m.shutdownErr = errors.Join(errs...)
		close(m.done)
	})
	<-m.done
	return m.shutdownErr
}

// Done is closed once the shutdown handlers have run or Stop was called.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Err returns the result of the shutdown handlers after Done is closed.
func (m *Manager) Err() error {
	select {
	case <-m.done:
		return m.shutdownErr
	default:
		return nil
	}
}

func runHandler(h ShutdownHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("shutdown handler panicked: %v", r)
		}
	}()
	return h()
}

func (m *Manager) startHeartbeat(ctx context.Context, fn func()) {
	m.mu.Lock()
	interval := m.heartbeatInterval
	stop := m.heartbeatStop
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}
