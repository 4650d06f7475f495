package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/poltergeist/taskmon/pkg/config"
)

// EnvPrefix prefixes the environment variables that override configuration,
// e.g. TASKMON_SHUTDOWN_WAITINGTIMEOUT.
const EnvPrefix = "TASKMON"

// Config holds all CLI configuration
type Config struct {
	ConfigFile  string
	ProjectRoot string
	Verbosity   string
	LogFile     string
	Version     string
}

// NewConfig creates a new CLI configuration with defaults
func NewConfig() *Config {
	return &Config{
		ProjectRoot: ".",
		Verbosity:   "info",
		Version:     "dev",
	}
}

// override binds a configuration key to the flag that can set it.
type override struct {
	key  string
	flag string
}

var overrides = []override{
	{key: "shutdown.waitingTimeout", flag: "wait-timeout"},
	{key: "shutdown.cancelingTimeout", flag: "cancel-timeout"},
	{key: "logging.level", flag: "verbosity"},
	{key: "logging.file", flag: "log-file"},
	{key: "notifications.enabled", flag: "notify"},
}

// resolveConfigFile locates the configuration file. An empty path and a nil
// error mean no file was found and defaults apply.
func (c *CLI) resolveConfigFile() (string, error) {
	v := viper.New()
	if c.config.ConfigFile != "" {
		v.SetConfigFile(c.config.ConfigFile)
	} else {
		v.AddConfigPath(c.config.ProjectRoot)
		v.SetConfigName("taskmon")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read config: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

// loadSettings builds the effective configuration: defaults, then the file,
// then environment variables, then flags set on the command line.
func (c *CLI) loadSettings(cmd *cobra.Command) (*config.Config, error) {
	mgr := config.NewManager()

	path, err := c.resolveConfigFile()
	if err != nil {
		return nil, err
	}

	cfg := mgr.GetDefaultConfig()
	if path != "" {
		if cfg, err = mgr.LoadConfig(path); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	c.configPath = path

	c.env = viper.New()
	c.env.SetEnvPrefix(EnvPrefix)
	c.env.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.env.AutomaticEnv()
	for _, o := range overrides {
		if f := cmd.Flags().Lookup(o.flag); f != nil {
			if err := c.env.BindPFlag(o.key, f); err != nil {
				return nil, err
			}
		}
	}

	if err := c.applyOverrides(cfg); err != nil {
		return nil, err
	}
	if err := mgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyOverrides copies environment and flag values over cfg. Flags left at
// their defaults do not count.
func (c *CLI) applyOverrides(cfg *config.Config) error {
	if c.env == nil {
		return nil
	}

	durations := map[string]*config.Duration{
		"shutdown.waitingTimeout":   &cfg.Shutdown.WaitingTimeout,
		"shutdown.cancelingTimeout": &cfg.Shutdown.CancelingTimeout,
	}
	for key, dst := range durations {
		if !c.env.IsSet(key) {
			continue
		}
		d, err := config.ParseDuration(c.env.GetString(key))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}

	if c.env.IsSet("logging.level") {
		cfg.Logging.Level = strings.ToLower(c.env.GetString("logging.level"))
	}
	if c.env.IsSet("logging.file") {
		cfg.Logging.File = c.env.GetString("logging.file")
	}
	if c.env.IsSet("notifications.enabled") {
		enabled := c.env.GetBool("notifications.enabled")
		if cfg.Notifications == nil {
			cfg.Notifications = &config.NotificationConfig{}
		}
		cfg.Notifications.Enabled = &enabled
	}
	return nil
}
