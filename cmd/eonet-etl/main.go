// Command eonet-etl fetches NASA EONET natural events, keeps them as yearly
// CSV partitions, and renders charts and a dashboard over them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/eonet-etl/internal/adapter/csvstore"
	"github.com/couchcryptid/eonet-etl/internal/config"
	"github.com/couchcryptid/eonet-etl/internal/observability"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		slog.Error("eonet-etl failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "eonet-etl",
		Usage: "Fetch, store, and chart NASA EONET natural events.",
		Commands: []*cli.Command{
			runCommand(),
			chartsCommand(),
			queryCommand(),
			serveCommand(),
		},
	}
}

// env bundles what every command needs.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
}

func setup() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &env{cfg: cfg, logger: observability.NewLogger(cfg)}, nil
}

func (e *env) store() *csvstore.Store {
	return csvstore.New(e.cfg.DataDir, e.logger)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

var yearFlag = &cli.StringFlag{
	Name:  "year",
	Usage: `partition year, or "all" (default: current year)`,
}
