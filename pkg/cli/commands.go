package cli

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func (c *CLI) newConfigCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration taskmon would run with after merging the config
file, TASKMON_* environment variables and command-line flags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.printConfig(format)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "yaml", "output format (yaml, json)")
	return cmd
}

func (c *CLI) printConfig(format string) error {
	settings := c.Settings()

	var (
		data []byte
		err  error
	)
	switch format {
	case "yaml", "yml":
		data, err = yaml.Marshal(settings)
	case "json":
		data, err = json.MarshalIndent(settings, "", "  ")
		data = append(data, '\n')
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	source := c.configPath
	if source == "" {
		source = "defaults"
	}
	fmt.Fprintf(c.errorOut, "%s %s\n", color.New(color.Faint).Sprint("# source:"), source)
	_, err = c.output.Write(data)
	return err
}

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the taskmon version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.output, "%s %s\n", color.CyanString("taskmon"), c.config.Version)
		},
	}
}
