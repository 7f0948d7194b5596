package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/couchcryptid/eonet-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/eonet-etl/internal/domain"
	"github.com/couchcryptid/eonet-etl/internal/report"
	"github.com/urfave/cli/v2"
)

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:  "query",
		Usage: "Answer analytical questions over the stored CSV partitions.",
		Subcommands: []*cli.Command{
			analysisCommand("daily", "Occurrences per day.", printDaily),
			analysisCommand("categories", "Distinct events per category.", printCategories),
			analysisCommand("latest", "Occurrences on the most recent day.", printLatest),
			analysisCommand("years", "Years with stored occurrences.", printYears),
			{
				Name:      "sql",
				Usage:     "Run one read-only SQL statement against events, event_categories, and occurrences.",
				ArgsUsage: "<statement>",
				Action: func(c *cli.Context) error {
					stmt := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
					if stmt == "" {
						return errors.New("sql: statement required")
					}
					return withDatabase(c, 0, func(ctx context.Context, db *sqlite.DB, w io.Writer) error {
						res, err := db.Query(ctx, stmt)
						if err != nil {
							return err
						}
						return printResult(w, res)
					})
				},
			},
		},
	}
}

type printer func(ctx context.Context, db *sqlite.DB, year int, w io.Writer) error

func analysisCommand(name, usage string, show printer) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{yearFlag},
		Action: func(c *cli.Context) error {
			year, err := domain.ParseYear(c.String("year"))
			if err != nil {
				return err
			}
			return withDatabase(c, year, func(ctx context.Context, db *sqlite.DB, w io.Writer) error {
				return show(ctx, db, year, w)
			})
		},
	}
}

// withDatabase loads the stored rows for year into an analytics database.
func withDatabase(c *cli.Context, year int, fn func(context.Context, *sqlite.DB, io.Writer) error) error {
	e, err := setup()
	if err != nil {
		return err
	}
	ctx := c.Context

	rows, err := report.NewStoredSource(e.store()).Rows(ctx, year)
	if err != nil {
		return err
	}
	db, err := report.Analyze(ctx, rows)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(ctx, db, c.App.Writer)
}

func printDaily(ctx context.Context, db *sqlite.DB, year int, w io.Writer) error {
	counts, err := db.DailyCounts(ctx, year)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tOCCURRENCES")
	for _, dc := range counts {
		fmt.Fprintf(tw, "%s\t%d\n", dc.Date.Format(domain.DateLayout), dc.Count)
	}
	return tw.Flush()
}

func printCategories(ctx context.Context, db *sqlite.DB, year int, w io.Writer) error {
	counts, err := db.CategoryCounts(ctx, year)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tEVENTS")
	for _, cc := range counts {
		fmt.Fprintf(tw, "%s\t%d\n", cc.Category, cc.Events)
	}
	return tw.Flush()
}

func printLatest(ctx context.Context, db *sqlite.DB, year int, w io.Writer) error {
	dc, ok, err := db.LatestDay(ctx, year)
	if err != nil {
		return err
	}
	if !ok {
		_, err = fmt.Fprintln(w, "no occurrences")
		return err
	}
	_, err = fmt.Fprintf(w, "%s\t%d\n", dc.Date.Format(domain.DateLayout), dc.Count)
	return err
}

func printYears(ctx context.Context, db *sqlite.DB, _ int, w io.Writer) error {
	years, err := db.Years(ctx)
	if err != nil {
		return err
	}
	for _, y := range years {
		if _, err := fmt.Fprintln(w, y); err != nil {
			return err
		}
	}
	return nil
}

func printResult(w io.Writer, res sqlite.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(res.Columns, "\t")))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
				continue
			}
			cells[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}
