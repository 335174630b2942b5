package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tbourn/thread-commands/internal/sysutil"
)

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one reconciliation pass and print the report",
		Long: `Fetch recent events from the gateway and run every one not yet in the
processed ledger through the engine. Without --tenant every tenant with
scanning enabled is visited.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := sysutil.SignalContext(cmd.Context())
			defer stop()
			return runScan(ctx, rootOpts, tenant, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "scan only this tenant")
	return cmd
}

func runScan(ctx context.Context, rootOpts *RootOptions, tenant string, w io.Writer) error {
	a, err := newApp(rootOpts.Config)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.scanner == nil {
		return ErrNoGateway
	}

	var report any
	if tenant != "" {
		rep := a.scanner.ScanTenant(ctx, tenant)
		if rep.Err != "" {
			err = fmt.Errorf("scan %s: %s", tenant, rep.Err)
		}
		report = rep
	} else {
		rep, serr := a.scanner.ScanOnce(ctx)
		if serr != nil {
			return serr
		}
		report = rep
	}

	if ferr := a.usage.Flush(context.WithoutCancel(ctx)); ferr != nil && err == nil {
		err = ferr
	}
	if werr := writeJSON(w, report); werr != nil && err == nil {
		err = werr
	}
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
