package cli

import (
	"github.com/spf13/cobra"

	"github.com/tbourn/thread-commands/internal/sysutil"
)

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one retention pass and print what was removed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := sysutil.SignalContext(cmd.Context())
			defer stop()

			a, err := newApp(rootOpts.Config)
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.sweeper.SweepOnce(ctx)
			if werr := writeJSON(cmd.OutOrStdout(), rep); werr != nil && err == nil {
				err = werr
			}
			return err
		},
	}
}
