package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/tbourn/thread-commands/internal/http"
	"github.com/tbourn/thread-commands/internal/observability"
	"github.com/tbourn/thread-commands/internal/sysutil"
)

const shutdownTimeout = 15 * time.Second

// ServeOptions holds flags of the serve command.
type ServeOptions struct {
	Addr     string
	NoScan   bool
	NoSweep  bool
	rootOpts *RootOptions
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{rootOpts: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the scanner, stats buffer and sweeper",
		Long: `Run the admin and ingest API together with the background loops:
the usage stats buffer, the reconciliation scanner (when a gateway is
configured and SCAN_ENABLED is true) and the retention sweeper.

SIGINT or SIGTERM drains in-flight requests, stops the loops and makes a
final stats flush.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default \":\"+PORT)")
	cmd.Flags().BoolVar(&opts.NoScan, "no-scan", false, "do not run the periodic scanner")
	cmd.Flags().BoolVar(&opts.NoSweep, "no-sweep", false, "do not run the retention sweeper")

	return cmd
}

func runServe(parent context.Context, opts *ServeOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg := opts.rootOpts.Config
	ctx, stop := sysutil.SignalContext(parent)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, Version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()
	observability.SetBuildInfo(Version)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("close resources")
		}
	}()

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, a.db, a.deps(), cfg)

	addr := sysutil.FirstNonEmpty(opts.Addr, ":"+cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", addr).Str("version", Version).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down http server")
		return srv.Shutdown(sctx)
	})

	g.Go(func() error {
		a.usage.Run(gctx)
		return nil
	})
	if a.scanner != nil && cfg.Scanner.Enabled && !opts.NoScan {
		g.Go(func() error {
			a.scanner.Run(gctx)
			return nil
		})
	}
	if !opts.NoSweep {
		g.Go(func() error {
			a.sweeper.Run(gctx)
			return nil
		})
	}

	err = g.Wait()
	log.Info().Msg("stopped")
	return err
}
