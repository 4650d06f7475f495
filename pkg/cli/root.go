// Package cli provides the command-line interface for taskmon
package cli

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/poltergeist/taskmon/pkg/config"
	"github.com/poltergeist/taskmon/pkg/logger"
	"github.com/poltergeist/taskmon/pkg/notifier"
)

// CLI encapsulates the command-line interface without global state.
type CLI struct {
	config   *Config
	rootCmd  *cobra.Command
	logger   logger.Logger
	console  *logger.ConsoleLogger
	output   io.Writer
	errorOut io.Writer

	env          *viper.Viper
	configPath   string
	notifierOpts []notifier.Option

	mu       sync.RWMutex
	settings *config.Config
}

// NewCLI creates a new CLI instance with the given configuration
func NewCLI(cfg *Config) *CLI {
	if cfg == nil {
		cfg = NewConfig()
	}

	cli := &CLI{
		config:   cfg,
		output:   os.Stdout,
		errorOut: os.Stderr,
	}

	cli.setupCommands()
	return cli
}

// NewCLIWithOutput creates a CLI with custom output writers (for testing)
func NewCLIWithOutput(cfg *Config, output, errorOut io.Writer) *CLI {
	cli := NewCLI(cfg)
	cli.output = output
	cli.errorOut = errorOut
	cli.rootCmd.SetOut(output)
	cli.rootCmd.SetErr(errorOut)
	return cli
}

// Execute runs the CLI with the given arguments
func (c *CLI) Execute(args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.Execute()
}

// ExecuteContext runs the CLI with context support
func (c *CLI) ExecuteContext(ctx context.Context, args []string) error {
	c.rootCmd.SetArgs(args)
	return c.rootCmd.ExecuteContext(ctx)
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:   "taskmon",
		Short: "Track background tasks and shut them down in two phases",
		Long: `taskmon runs background work through a task monitor that keeps a registry
of everything still running. On shutdown it first waits for the work to finish,
then requests cancellation and waits again, and reports what was left behind.`,

		PersistentPreRunE: c.initializeConfig,
		SilenceUsage:      true,
		SilenceErrors:     true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	c.setupFlags()

	c.rootCmd.Version = c.config.Version
	c.rootCmd.SetVersionTemplate("taskmon v{{.Version}}\n")

	c.rootCmd.AddCommand(c.newRunCmd())
	c.rootCmd.AddCommand(c.newConfigCmd())
	c.rootCmd.AddCommand(c.newVersionCmd())
}

func (c *CLI) setupFlags() {
	flags := c.rootCmd.PersistentFlags()

	cfg := c.config

	flags.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "config file (default: taskmon.{json,yaml} in --root)")
	flags.StringVar(&cfg.ProjectRoot, "root", cfg.ProjectRoot, "directory searched for the config file")
	flags.StringVarP(&cfg.Verbosity, "verbosity", "v", cfg.Verbosity, "log level (debug, info, warn, error)")
	flags.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "also write logs to this file")
}

func (c *CLI) initializeConfig(cmd *cobra.Command, args []string) error {
	c.console = logger.NewConsoleLoggerWithOutput(c.output, c.errorOut)

	settings, err := c.loadSettings(cmd)
	if err != nil {
		return err
	}
	c.setSettings(settings)

	c.logger = c.newLogger(settings.Logging)
	if c.configPath != "" {
		c.logger.Debug("Using config file", logger.WithField("file", c.configPath))
	}
	return nil
}

// newLogger logs to the error output so that command output stays parseable.
func (c *CLI) newLogger(cfg config.LoggingConfig) logger.Logger {
	if c.errorOut == os.Stderr {
		return logger.CreateLogger(cfg.File, cfg.Level)
	}
	return logger.CreateLoggerWithOutput(cfg.File, cfg.Level, c.errorOut)
}

// Settings returns the effective configuration of the last command.
func (c *CLI) Settings() *config.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

func (c *CLI) setSettings(cfg *config.Config) {
	c.mu.Lock()
	c.settings = cfg
	c.mu.Unlock()
}
