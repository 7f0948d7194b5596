package main

import (
	"fmt"

	"github.com/couchcryptid/eonet-etl/internal/domain"
	"github.com/couchcryptid/eonet-etl/internal/report"
	"github.com/urfave/cli/v2"
)

func chartsCommand() *cli.Command {
	return &cli.Command{
		Name:  "charts",
		Usage: "Render charts from the stored CSV partitions.",
		Flags: []cli.Flag{yearFlag},
		Action: func(c *cli.Context) error {
			e, err := setup()
			if err != nil {
				return err
			}
			year, err := domain.ParseYear(c.String("year"))
			if err != nil {
				return err
			}

			renderer := report.NewRenderer(report.NewStoredSource(e.store()), e.cfg.ChartDir, e.logger)
			paths, err := renderer.Render(c.Context, year)
			if err != nil {
				return fmt.Errorf("render charts: %w", err)
			}
			for _, p := range paths {
				fmt.Fprintln(c.App.Writer, p)
			}
			return nil
		},
	}
}
