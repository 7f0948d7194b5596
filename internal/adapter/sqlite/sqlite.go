// Package sqlite answers analytical queries over persisted rows using an
// embedded SQLite database.
//
// Tables:
//
//	events(event_id, title, description, link, category_ids, category_titles)
//	event_categories(event_id, position, category_id, category_title)
//	occurrences(event_id, date, day, type, longitude, latitude, year, month, day_of_month)
//
// Dates are stored as RFC 3339 text; day is the YYYY-MM-DD prefix. Every
// year-scoped query treats year 0 as "all years".
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/eonet-etl/internal/domain"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		event_id        TEXT PRIMARY KEY,
		title           TEXT NOT NULL,
		description     TEXT NOT NULL,
		link            TEXT NOT NULL,
		category_ids    TEXT NOT NULL,
		category_titles TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS event_categories (
		event_id       TEXT NOT NULL,
		position       INTEGER NOT NULL,
		category_id    TEXT NOT NULL,
		category_title TEXT NOT NULL,
		PRIMARY KEY (event_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS occurrences (
		event_id     TEXT NOT NULL,
		date         TEXT NOT NULL,
		day          TEXT NOT NULL,
		type         TEXT NOT NULL,
		longitude    REAL NOT NULL,
		latitude     REAL NOT NULL,
		year         INTEGER NOT NULL,
		month        INTEGER NOT NULL,
		day_of_month INTEGER NOT NULL,
		PRIMARY KEY (event_id, date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_occurrences_year_day ON occurrences(year, day)`,
}

// DB wraps a SQLite connection holding the analytical tables.
type DB struct {
	db *sql.DB
}

// Open connects to dsn and creates the schema. Use MemoryDSN for a
// throwaway database.
func Open(ctx context.Context, dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps an in-memory database alive and shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &DB{db: db}, nil
}

// Close releases the connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Load replaces the database contents with rows. Event metadata comes from
// the last row seen for each event; duplicate occurrence keys keep the last
// row.
func (d *DB) Load(ctx context.Context, rows []domain.Row) (err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin load: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"occurrences", "event_categories", "events"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	insertEvent, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO events
		(event_id, title, description, link, category_ids, category_titles) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare events: %w", err)
	}
	defer insertEvent.Close()

	clearCategories, err := tx.PrepareContext(ctx, `DELETE FROM event_categories WHERE event_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare event_categories: %w", err)
	}
	defer clearCategories.Close()

	insertCategory, err := tx.PrepareContext(ctx, `INSERT INTO event_categories
		(event_id, position, category_id, category_title) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare event_categories: %w", err)
	}
	defer insertCategory.Close()

	insertOccurrence, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO occurrences
		(event_id, date, day, type, longitude, latitude, year, month, day_of_month) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare occurrences: %w", err)
	}
	defer insertOccurrence.Close()

	for _, r := range rows {
		if _, err := insertEvent.ExecContext(ctx, r.EventID, r.EventTitle, r.EventDescription, r.EventLink,
			domain.JoinList(r.CategoryIDs), domain.JoinList(r.CategoryTitles)); err != nil {
			return fmt.Errorf("insert event %s: %w", r.EventID, err)
		}
		if _, err := clearCategories.ExecContext(ctx, r.EventID); err != nil {
			return fmt.Errorf("clear categories %s: %w", r.EventID, err)
		}
		n := max(len(r.CategoryIDs), len(r.CategoryTitles))
		for i := range n {
			var id, title string
			if i < len(r.CategoryIDs) {
				id = r.CategoryIDs[i]
			}
			if i < len(r.CategoryTitles) {
				title = r.CategoryTitles[i]
			}
			if _, err := insertCategory.ExecContext(ctx, r.EventID, i, id, title); err != nil {
				return fmt.Errorf("insert category %s: %w", r.EventID, err)
			}
		}

		if !r.HasOccurrence() {
			continue
		}
		date := r.OccurrenceDate.UTC()
		if _, err := insertOccurrence.ExecContext(ctx, r.EventID, date.Format(time.RFC3339Nano), date.Format(domain.DateLayout),
			string(r.OccurrenceType), r.Longitude, r.Latitude, r.Year, r.Month, r.Day); err != nil {
			return fmt.Errorf("insert occurrence %s: %w", r.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit load: %w", err)
	}
	return nil
}

// DailyCounts returns the number of occurrences per calendar day, ascending.
func (d *DB) DailyCounts(ctx context.Context, year int) ([]domain.DayCount, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT day, COUNT(*) FROM occurrences
		WHERE ?1 = 0 OR year = ?1
		GROUP BY day ORDER BY day`, year)
	if err != nil {
		return nil, fmt.Errorf("daily counts: %w", err)
	}
	defer rows.Close()

	var out []domain.DayCount
	for rows.Next() {
		dc, err := scanDayCount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

// LatestDay returns the most recent day that has at least one occurrence and
// how many occurrences fall on it. ok is false when there are none.
func (d *DB) LatestDay(ctx context.Context, year int) (dc domain.DayCount, ok bool, err error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT day, COUNT(*) FROM occurrences
		WHERE ?1 = 0 OR year = ?1
		GROUP BY day ORDER BY day DESC LIMIT 1`, year)
	dc, err = scanDayCount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DayCount{}, false, nil
	}
	if err != nil {
		return domain.DayCount{}, false, err
	}
	return dc, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDayCount(s scanner) (domain.DayCount, error) {
	var (
		day   string
		count int
	)
	if err := s.Scan(&day, &count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DayCount{}, err
		}
		return domain.DayCount{}, fmt.Errorf("scan day count: %w", err)
	}
	date, err := time.Parse(domain.DateLayout, day)
	if err != nil {
		return domain.DayCount{}, fmt.Errorf("parse day %q: %w", day, err)
	}
	return domain.DayCount{Date: date, Count: count}, nil
}

// CategoryCounts returns the number of distinct events per category title,
// largest first. With a year, only events occurring in that year count.
func (d *DB) CategoryCounts(ctx context.Context, year int) ([]domain.CategoryCount, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT c.category_title, COUNT(DISTINCT c.event_id) AS n
		FROM event_categories c
		WHERE ?1 = 0 OR EXISTS (
			SELECT 1 FROM occurrences o WHERE o.event_id = c.event_id AND o.year = ?1
		)
		GROUP BY c.category_title
		ORDER BY n DESC, c.category_title`, year)
	if err != nil {
		return nil, fmt.Errorf("category counts: %w", err)
	}
	defer rows.Close()

	var out []domain.CategoryCount
	for rows.Next() {
		var cc domain.CategoryCount
		if err := rows.Scan(&cc.Category, &cc.Events); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}

// TotalEvents counts distinct events. With a year, only events occurring in
// that year count; with year 0, every loaded event counts.
func (d *DB) TotalEvents(ctx context.Context, year int) (int, error) {
	var row *sql.Row
	if year == 0 {
		row = d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`)
	} else {
		row = d.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT event_id) FROM occurrences WHERE year = ?`, year)
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("total events: %w", err)
	}
	return n, nil
}

// Years lists the distinct occurrence years, ascending.
func (d *DB) Years(ctx context.Context) ([]int, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT DISTINCT year FROM occurrences ORDER BY year`)
	if err != nil {
		return nil, fmt.Errorf("years: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, fmt.Errorf("scan year: %w", err)
		}
		out = append(out, y)
	}
	return out, rows.Err()
}

// Points returns every located occurrence joined with its event, ordered by
// date then event.
func (d *DB) Points(ctx context.Context, year int) ([]domain.MapPoint, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT o.event_id, e.title, e.category_titles, o.date, o.longitude, o.latitude
		FROM occurrences o JOIN events e ON e.event_id = o.event_id
		WHERE ?1 = 0 OR o.year = ?1
		ORDER BY o.date, o.event_id`, year)
	if err != nil {
		return nil, fmt.Errorf("points: %w", err)
	}
	defer rows.Close()

	var out []domain.MapPoint
	for rows.Next() {
		var (
			p          domain.MapPoint
			categories string
			date       string
		)
		if err := rows.Scan(&p.EventID, &p.Title, &categories, &date, &p.Longitude, &p.Latitude); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		if p.Date, err = time.Parse(time.RFC3339Nano, date); err != nil {
			return nil, fmt.Errorf("parse date %q: %w", date, err)
		}
		p.Categories = strings.Join(domain.SplitList(categories), ", ")
		out = append(out, p)
	}
	return out, rows.Err()
}

// Result is the tabular output of an ad-hoc query.
type Result struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// ErrNotReadOnly is returned by Query for statements other than SELECT or WITH.
var ErrNotReadOnly = errors.New("only a single SELECT or WITH statement is allowed")

// Query runs one read-only statement. It executes inside a transaction that
// is always rolled back, so a data-modifying CTE leaves no trace.
func (d *DB) Query(ctx context.Context, stmt string) (Result, error) {
	stmt = strings.TrimSpace(stmt)
	stmt = strings.TrimSpace(strings.TrimSuffix(stmt, ";"))
	lower := strings.ToLower(stmt)
	if strings.Contains(stmt, ";") || !(strings.HasPrefix(lower, "select") || strings.HasPrefix(lower, "with")) {
		return Result{}, ErrNotReadOnly
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("begin query: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, stmt)
	if err != nil {
		return Result{}, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("columns: %w", err)
	}
	res := Result{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, fmt.Errorf("scan: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, values)
	}
	return res, rows.Err()
}
