package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/poltergeist/taskmon/pkg/logger"
)

// DefaultDebouncePeriod coalesces the bursts of events editors produce on save.
const DefaultDebouncePeriod = 500 * time.Millisecond

// ErrConfigRemoved is the ReloadEvent error when the watched file disappears.
var ErrConfigRemoved = errors.New("configuration file was removed")

// ReloadManager watches the configuration file and reloads it on change
type ReloadManager struct {
	configPath string
	logger     logger.Logger
	loader     *Manager

	mu             sync.RWMutex
	watcher        *fsnotify.Watcher
	loopDone       chan struct{}
	callbacks      []ReloadCallback
	lastModTime    time.Time
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
}

// ReloadCallback is called when configuration changes. Event.Config is nil when
// Event.Error is set.
type ReloadCallback func(ReloadEvent)

// ReloadEvent describes one reload attempt.
type ReloadEvent struct {
	Path      string          `json:"path"`
	Timestamp time.Time       `json:"timestamp"`
	Config    *Config         `json:"config,omitempty"`
	Error     error           `json:"error,omitempty"`
	EventType ReloadEventType `json:"eventType"`
}

// ReloadEventType represents the type of reload event
type ReloadEventType string

const (
	ReloadEventTypeModified ReloadEventType = "modified"
	ReloadEventTypeCreated  ReloadEventType = "created"
	ReloadEventTypeRemoved  ReloadEventType = "removed"
	ReloadEventTypeError    ReloadEventType = "error"
)

// NewReloadManager creates a reload manager for the file at configPath.
func NewReloadManager(configPath string, log logger.Logger) *ReloadManager {
	return &ReloadManager{
		configPath:     configPath,
		logger:         log,
		loader:         NewManager(),
		debouncePeriod: DefaultDebouncePeriod,
	}
}

// AddCallback adds a reload callback
func (rm *ReloadManager) AddCallback(callback ReloadCallback) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.callbacks = append(rm.callbacks, callback)
}

// RemoveAllCallbacks removes all reload callbacks
func (rm *ReloadManager) RemoveAllCallbacks() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.callbacks = nil
}

// StartWatching watches the directory of the configuration file, since editors
// replace the file on save. It fails if the manager is already watching.
func (rm *ReloadManager) StartWatching() error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.watcher != nil {
		return fmt.Errorf("already watching %s", rm.configPath)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(rm.configPath)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	if stat, err := os.Stat(rm.configPath); err == nil {
		rm.lastModTime = stat.ModTime()
	}

	rm.watcher = watcher
	rm.loopDone = make(chan struct{})
	go rm.watchLoop(watcher, rm.loopDone)

	rm.logger.Debug("Watching configuration file", logger.WithField("path", rm.configPath))
	return nil
}

// StopWatching closes the watcher and waits for the watch loop to exit. A pending
// debounced reload is dropped.
func (rm *ReloadManager) StopWatching() error {
	rm.mu.Lock()
	watcher, loopDone := rm.watcher, rm.loopDone
	if watcher == nil {
		rm.mu.Unlock()
		return nil
	}
	rm.watcher = nil
	if rm.debounceTimer != nil {
		rm.debounceTimer.Stop()
		rm.debounceTimer = nil
	}
	rm.mu.Unlock()

	// Closing the watcher closes its channels, which ends the loop.
	err := watcher.Close()
	<-loopDone
	if err != nil {
		rm.logger.Warn("Error closing file watcher", logger.WithField("error", err))
	}
	return err
}

// IsWatching returns whether the manager is currently watching
func (rm *ReloadManager) IsWatching() bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.watcher != nil
}

// TriggerReload reloads the configuration now, regardless of its modification time.
func (rm *ReloadManager) TriggerReload() {
	rm.mu.Lock()
	rm.lastModTime = time.Time{}
	rm.mu.Unlock()
	rm.reload(ReloadEventTypeModified)
}

func (rm *ReloadManager) watchLoop(watcher *fsnotify.Watcher, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !rm.isConfigFileEvent(event.Name) {
				continue
			}
			rm.logger.Debug("Configuration file event", logger.WithField("event", event.String()))
			rm.debounce(eventType(event.Op))

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			rm.logger.Error("Configuration file watcher error", logger.WithField("error", err))
			rm.notifyCallbacks(nil, err, ReloadEventTypeError)
		}
	}
}

// isConfigFileEvent matches the file itself and the backup or swap files editors
// write next to it (taskmon.yaml~, .taskmon.yaml.swp, taskmon.yaml.tmp).
func (rm *ReloadManager) isConfigFileEvent(eventPath string) bool {
	name := filepath.Base(rm.configPath)
	base := strings.TrimPrefix(filepath.Base(eventPath), ".")
	return strings.HasPrefix(base, name)
}

func eventType(op fsnotify.Op) ReloadEventType {
	switch {
	case op.Has(fsnotify.Write):
		return ReloadEventTypeModified
	case op.Has(fsnotify.Create):
		return ReloadEventTypeCreated
	case op.Has(fsnotify.Remove):
		return ReloadEventTypeRemoved
	default:
		return ReloadEventTypeModified
	}
}

func (rm *ReloadManager) debounce(t ReloadEventType) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.watcher == nil {
		return
	}
	if rm.debounceTimer != nil {
		rm.debounceTimer.Stop()
	}
	rm.debounceTimer = time.AfterFunc(rm.debouncePeriod, func() { rm.reload(t) })
}

// reload loads the file if it changed since the last load and hands the result
// to the callbacks. A removed or unreadable file is reported as an error event.
func (rm *ReloadManager) reload(t ReloadEventType) {
	if t == ReloadEventTypeRemoved {
		rm.notifyCallbacks(nil, fmt.Errorf("%w: %s", ErrConfigRemoved, rm.configPath), t)
		return
	}

	stat, err := os.Stat(rm.configPath)
	if err != nil {
		rm.logger.Error("Failed to stat configuration file", logger.WithField("error", err))
		rm.notifyCallbacks(nil, err, ReloadEventTypeError)
		return
	}

	rm.mu.Lock()
	if !stat.ModTime().After(rm.lastModTime) {
		rm.mu.Unlock()
		return
	}
	rm.lastModTime = stat.ModTime()
	rm.mu.Unlock()

	cfg, err := rm.loader.LoadConfig(rm.configPath)
	if err != nil {
		rm.logger.Error("Failed to reload configuration", logger.WithField("error", err))
		rm.notifyCallbacks(nil, err, ReloadEventTypeError)
		return
	}

	rm.logger.Info("Configuration reloaded",
		logger.WithField("waitingTimeout", cfg.Shutdown.WaitingTimeout),
		logger.WithField("cancelingTimeout", cfg.Shutdown.CancelingTimeout))
	rm.notifyCallbacks(cfg, nil, t)
}

// notifyCallbacks runs the callbacks in order on the calling goroutine. A
// panicking callback is logged and does not stop the others.
func (rm *ReloadManager) notifyCallbacks(cfg *Config, err error, t ReloadEventType) {
	rm.mu.RLock()
	callbacks := append([]ReloadCallback(nil), rm.callbacks...)
	rm.mu.RUnlock()

	event := ReloadEvent{
		Path:      rm.configPath,
		Timestamp: time.Now(),
		Config:    cfg,
		Error:     err,
		EventType: t,
	}
	for _, callback := range callbacks {
		rm.runCallback(callback, event)
	}
}

func (rm *ReloadManager) runCallback(callback ReloadCallback, event ReloadEvent) {
	defer func() {
		if r := recover(); r != nil {
			rm.logger.Error("Reload callback panic recovered", logger.WithField("panic", r))
		}
	}()
	callback(event)
}

// SetDebouncePeriod sets the debounce period for file change events
func (rm *ReloadManager) SetDebouncePeriod(period time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.debouncePeriod = period
}

// GetLastReloadTime returns the modification time of the last loaded file
func (rm *ReloadManager) GetLastReloadTime() time.Time {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.lastModTime
}

// GetConfigPath returns the path of the watched configuration file
func (rm *ReloadManager) GetConfigPath() string {
	return rm.configPath
}
