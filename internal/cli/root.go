// Package cli implements the threadcmd command tree.
package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tbourn/thread-commands/internal/config"
	"github.com/tbourn/thread-commands/internal/sysutil"
)

// Version is stamped at build time with
// -ldflags "-X github.com/tbourn/thread-commands/internal/cli.Version=...".
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile  string
	LogLevel string
	Pretty   bool

	// Config is loaded by the root pre-run hook.
	Config config.Config
}

// NewRootCommand creates the root command for the threadcmd CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "threadcmd",
		Short:         "Thread command rule engine",
		Long:          "Matches chat messages against tiered trigger rules and dispatches the configured replies, reactions and deletions.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override LOG_LEVEL")
	cmd.PersistentFlags().BoolVar(&opts.Pretty, "pretty", false, "human-readable console logs")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewScanCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// load reads the dotenv file, then the environment, then applies flag
// overrides. A missing default dotenv file is not an error; a missing file
// named explicitly is.
func (o *RootOptions) load(cmd *cobra.Command) error {
	if o.EnvFile != "" {
		if err := godotenv.Load(o.EnvFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("env-file") {
				return fmt.Errorf("load %s: %w", o.EnvFile, err)
			}
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.Pretty {
		cfg.LogPretty = true
	}
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, cmd.ErrOrStderr())
	o.Config = cfg
	return nil
}
