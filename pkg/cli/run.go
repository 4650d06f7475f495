package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/poltergeist/taskmon/pkg/async"
	"github.com/poltergeist/taskmon/pkg/cancel"
	"github.com/poltergeist/taskmon/pkg/config"
	"github.com/poltergeist/taskmon/pkg/logger"
	"github.com/poltergeist/taskmon/pkg/monitor"
	"github.com/poltergeist/taskmon/pkg/notifier"
	"github.com/poltergeist/taskmon/pkg/process"
)

// ErrWorkerFailed is the fault reported by the --failing workers.
var ErrWorkerFailed = errors.New("worker failed")

type runOptions struct {
	tasks       int
	stubborn    int
	failing     int
	work        time.Duration
	runFor      time.Duration
	heartbeat   time.Duration
	limit       int
	watchConfig bool
}

func (c *CLI) newRunCmd() *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run sleeper tasks through the monitor and shut them down",
		Long: `Start --tasks sleepers through the task monitor. --stubborn of them ignore
cancellation and --failing of them fail after half their work.

The run ends on SIGINT/SIGTERM/SIGHUP, after --for, or once every task has
finished. Shutdown waits up to the waiting timeout, then cancels and waits up
to the canceling timeout. The command fails when tasks are still running.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.tasks < 0 || opts.stubborn < 0 || opts.failing < 0 {
				return fmt.Errorf("task counts must not be negative")
			}
			if opts.stubborn+opts.failing > opts.tasks {
				return fmt.Errorf("--stubborn (%d) and --failing (%d) exceed --tasks (%d)",
					opts.stubborn, opts.failing, opts.tasks)
			}
			return c.runWorkload(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.tasks, "tasks", "n", 4, "number of tasks to start")
	flags.IntVar(&opts.stubborn, "stubborn", 0, "number of tasks that ignore cancellation")
	flags.IntVar(&opts.failing, "failing", 0, "number of tasks that fail")
	flags.DurationVar(&opts.work, "work", 2*time.Second, "how long each task works")
	flags.DurationVar(&opts.runFor, "for", 0, "shut down after this long (0 waits for a signal or for all tasks)")
	flags.DurationVar(&opts.heartbeat, "heartbeat", 0, "log the running task count at this interval")
	flags.IntVar(&opts.limit, "limit", 0, "maximum number of concurrently running tasks (0 is unlimited)")
	flags.BoolVar(&opts.watchConfig, "watch-config", false, "reload shutdown timeouts when the config file changes")
	flags.String("wait-timeout", config.Duration(monitor.DefaultWaitingTimeout).String(), "how long shutdown waits before canceling (or infinite)")
	flags.String("cancel-timeout", config.Duration(monitor.DefaultCancelingTimeout).String(), "how long shutdown waits after canceling (or infinite)")
	flags.Bool("notify", false, "send desktop notifications")

	return cmd
}

func (c *CLI) runWorkload(ctx context.Context, opts runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := c.logger.WithTarget("taskmon")
	notify := c.newNotifier(log)

	group, _ := async.NewSafeGroup(context.Background(), log)
	if opts.limit > 0 {
		group.SetLimit(opts.limit)
	}
	mon := monitor.New(
		monitor.WithSink(logger.NewSink(c.logger)),
		monitor.WithLauncher(group),
	)

	pm := process.NewManager(log)
	pm.RegisterShutdownHandler(func() error {
		return c.shutdown(mon, notify, log)
	})

	if opts.watchConfig {
		c.watchConfig(pm, log)
	}
	if opts.heartbeat > 0 {
		pm.SetHeartbeat(opts.heartbeat, func() {
			log.Info("Heartbeat", logger.WithField("running", mon.RunningTaskCount()))
		})
	}

	handles, startErr := startWorkload(mon, group, opts)
	if startErr != nil {
		log.Error("Failed to start workload", logger.WithField("error", startErr))
	}
	log.Info("Workload started",
		logger.WithField("tasks", len(handles)),
		logger.WithField("stubborn", opts.stubborn),
		logger.WithField("failing", opts.failing))

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	if opts.runFor > 0 {
		var stopTimer context.CancelFunc
		runCtx, stopTimer = context.WithTimeout(runCtx, opts.runFor)
		defer stopTimer()
	}
	if startErr != nil {
		stop()
	}

	go func() {
		if waitHandles(runCtx, handles) {
			log.Info("All tasks finished")
			stop()
		}
	}()

	pm.Start(runCtx)
	<-pm.Done()
	pm.Stop()

	for _, h := range handles {
		if async.StatusOf(h) == async.StatusFaulted {
			notify.NotifyTaskFailed(h.ID(), h.Err())
		}
	}
	c.printSummary(handles)

	return errors.Join(startErr, pm.Err())
}

// startWorkload submits the sleepers. Stubborn sleepers come first, failing
// ones last.
func startWorkload(mon *monitor.TaskMonitor, l async.Launcher, opts runOptions) ([]*monitor.TaskHandle, error) {
	handles := make([]*monitor.TaskHandle, 0, opts.tasks)

	for i := 0; i < opts.tasks; i++ {
		var (
			h   *monitor.TaskHandle
			err error
		)
		switch {
		case i < opts.stubborn:
			h, err = mon.Go(func() error {
				time.Sleep(opts.work)
				return nil
			})
		case i >= opts.tasks-opts.failing:
			h, err = trackFailing(mon, l, i, opts.work/2)
		default:
			h, err = mon.GoCancellable(func(ctx context.Context) error {
				return sleep(ctx, opts.work)
			}, nil, false)
		}
		if err != nil {
			return handles, fmt.Errorf("task %d: %w", i, err)
		}
		if h != nil {
			handles = append(handles, h)
		}
	}
	return handles, nil
}

// trackFailing starts a future outside the monitor and hands it over with a
// borrowed cancellation source that the monitor closes on release.
func trackFailing(mon *monitor.TaskMonitor, l async.Launcher, i int, after time.Duration) (*monitor.TaskHandle, error) {
	src := cancel.NewSource(context.Background())
	f := async.New(func() (struct{}, error) {
		if err := sleep(src.Context(), after); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, fmt.Errorf("sleeper %d: %w", i, ErrWorkerFailed)
	})
	if err := f.Start(l); err != nil {
		_ = src.Close()
		return nil, err
	}

	fh, err := monitor.TrackFuture(mon, f, src, false)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	if fh == nil {
		return nil, nil
	}
	return fh.TaskHandle, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// waitHandles reports whether every handle completed before ctx was done.
func waitHandles(ctx context.Context, handles []*monitor.TaskHandle) bool {
	for _, h := range handles {
		select {
		case <-h.Done():
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (c *CLI) shutdown(mon monitor.Monitor, notify *notifier.ShutdownNotifier, log logger.Logger) error {
	sh := c.Settings().Shutdown
	start := time.Now()

	log.Info("Shutting down",
		logger.WithField("running", mon.RunningTaskCount()),
		logger.WithField("waiting_timeout", sh.WaitingTimeout.String()),
		logger.WithField("canceling_timeout", sh.CancelingTimeout.String()))

	if mon.Dispose(sh.WaitingTimeout.Std(), sh.CancelingTimeout.Std()) {
		notify.NotifyShutdownComplete(time.Since(start))
		return nil
	}

	remaining := mon.RunningTaskCount()
	notify.NotifyShutdownIncomplete(remaining)
	return fmt.Errorf("%w: %d tasks still running", monitor.ErrShutdownIncomplete, remaining)
}

// watchConfig reloads the configuration on change. Environment and flag
// overrides keep precedence over the reloaded file.
func (c *CLI) watchConfig(pm *process.Manager, log logger.Logger) {
	if c.configPath == "" {
		log.Warn("No config file to watch")
		return
	}

	rm := config.NewReloadManager(c.configPath, log)
	rm.AddCallback(func(ev config.ReloadEvent) {
		if ev.Error != nil {
			log.Warn("Keeping previous configuration", logger.WithField("error", ev.Error))
			return
		}
		cfg := ev.Config
		if err := c.applyOverrides(cfg); err != nil {
			log.Warn("Keeping previous configuration", logger.WithField("error", err))
			return
		}
		c.setSettings(cfg)
		log.Info("Shutdown timeouts updated",
			logger.WithField("waiting_timeout", cfg.Shutdown.WaitingTimeout.String()),
			logger.WithField("canceling_timeout", cfg.Shutdown.CancelingTimeout.String()))
	})

	if err := rm.StartWatching(); err != nil {
		log.Warn("Failed to watch config file", logger.WithField("error", err))
		return
	}
	pm.RegisterShutdownHandler(rm.StopWatching)
}

func (c *CLI) newNotifier(log logger.Logger) *notifier.ShutdownNotifier {
	settings := c.Settings()
	cfg := notifier.Config{Enabled: settings.NotificationsEnabled()}
	if n := settings.Notifications; n != nil {
		cfg.SuccessSound = n.SuccessSound
		cfg.FailureSound = n.FailureSound
	}
	return notifier.New(cfg, log, c.notifierOpts...)
}

// SetNotifierOptions customizes the notifier used by run.
func (c *CLI) SetNotifierOptions(opts ...notifier.Option) {
	c.notifierOpts = opts
}

func (c *CLI) printSummary(handles []*monitor.TaskHandle) {
	counts := make(map[async.Status]int)
	for _, h := range handles {
		counts[async.StatusOf(h)]++
	}

	summary := fmt.Sprintf("%d succeeded, %d faulted, %d canceled, %d still running",
		counts[async.StatusSucceeded], counts[async.StatusFaulted],
		counts[async.StatusCanceled], counts[async.StatusPending])

	switch {
	case counts[async.StatusPending] > 0:
		c.console.Warn(summary)
	case counts[async.StatusFaulted] > 0:
		c.console.Error(summary)
	default:
		c.console.Success(summary)
	}
}
