// Package cli implements the x8ql command line.
package cli

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/omniql-engine/x8ql/internal/config"
	"github.com/omniql-engine/x8ql/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format     string // "text" | "json" | "yaml"
	LogLevel   string
	ConfigPath string

	// Config is loaded before any subcommand runs.
	Config *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for the x8ql CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "x8ql",
		Short: "x8ql - one query language for documents",
		Long: `Parse, evaluate, translate and execute QL statements.

Statements run against in-memory collections or are lowered onto
PostgreSQL, MySQL, SQLite, MongoDB and Redis.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return WrapExitError(ExitCommandError, "invalid flags",
					fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level, overrides the config file")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file")

	cmd.AddCommand(NewParseCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewTranslateCommand(opts))
	cmd.AddCommand(NewReverseCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewExecCommand(opts))

	return cmd
}

// load reads the config file and installs the logger.
func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg := config.Defaults()
	if o.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(o.ConfigPath, os.Getenv); err != nil {
			return WrapExitError(ExitCommandError, "invalid config", err)
		}
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	o.Config = cfg
	logging.SetGlobalLogger(logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format))
	return nil
}

func (o *RootOptions) output(cmd *cobra.Command) *Output {
	return &Output{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// config returns the loaded config, or defaults when a command runs
// outside the root.
func (o *RootOptions) config() *config.Config {
	if o.Config == nil {
		return config.Defaults()
	}
	return o.Config
}
