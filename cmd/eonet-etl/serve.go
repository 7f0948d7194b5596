package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/couchcryptid/eonet-etl/internal/adapter/eonet"
	httpadapter "github.com/couchcryptid/eonet-etl/internal/adapter/http"
	"github.com/couchcryptid/eonet-etl/internal/observability"
	"github.com/couchcryptid/eonet-etl/internal/report"
	"github.com/jonboulle/clockwork"
	"github.com/urfave/cli/v2"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the dashboard over live API data.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address (default: HTTP_ADDR)"},
		},
		Action: func(c *cli.Context) error {
			e, err := setup()
			if err != nil {
				return err
			}
			addr := e.cfg.HTTPAddr
			if c.IsSet("addr") {
				addr = c.String("addr")
			}

			ctx, stop := signalContext(c.Context)
			defer stop()
			return e.serve(ctx, addr)
		},
	}
}

func (e *env) serve(ctx context.Context, addr string) error {
	metrics := observability.NewMetrics()

	client := eonet.NewClient(e.cfg, e.logger, metrics)
	cached := eonet.NewCachedClient(client, e.cfg.EONETCacheSize, e.cfg.EONETCacheTTL, clockwork.NewRealClock(), metrics)
	source := report.NewLiveSource(cached, e.cfg.DashboardLookback, e.cfg.EONETStatus, e.logger, metrics)

	dashboard := httpadapter.NewDashboard(source, cached, e.logger)
	srv := httpadapter.NewServer(addr, dashboard, dashboard, e.logger)

	go func() {
		if err := dashboard.Warm(ctx); err != nil {
			e.logger.Error("initial dashboard load failed", "error", err)
		}
	}()

	if e.cfg.DashboardRefreshCron != "" {
		refresher, err := dashboard.StartRefresher(ctx, e.cfg.DashboardRefreshCron)
		if err != nil {
			return err
		}
		defer refresher.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	e.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		e.logger.Error("http server shutdown error", "error", err)
	}

	e.logger.Info("shutdown complete")
	return nil
}
