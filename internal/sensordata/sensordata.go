// Package sensordata reads air-quality measurements from PostgreSQL. It is
// the relational backend for summary statistics, filter option listings, and
// current-view exports. Reads that feed tool results go through the
// aggregation cache; this package never caches on its own.
package sensordata

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cityair/conductor/internal/log"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Query scopes a read to the session's active filters. Zero values mean no
// constraint on that dimension.
type Query struct {
	Boroughs    []string
	Pollutant   string
	SensorTypes []string
	Year        *int
	Month       *int
	Averaging   string
}

// Row is one measurement as stored in sensor_readings.
type Row struct {
	SiteCode        string  `json:"site_code"`
	SiteName        string  `json:"site_name"`
	Borough         string  `json:"borough"`
	Lat             float64 `json:"lat"`
	Lon             float64 `json:"lon"`
	SensorType      string  `json:"sensor_type"`
	Pollutant       string  `json:"pollutant"`
	Year            int     `json:"year"`
	Month           int     `json:"month"`
	Value           float64 `json:"value"`
	AveragingPeriod string  `json:"averaging_period"`
}

// Summary is one aggregated group of measurements.
type Summary struct {
	Borough   string  `json:"borough"`
	Pollutant string  `json:"pollutant"`
	Sites     int64   `json:"sites"`
	Readings  int64   `json:"readings"`
	Mean      float64 `json:"mean"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
}

// rowCols is the standard SELECT column list for sensor_readings.
const rowCols = `site_code, site_name, borough, lat, lon,
	sensor_type, pollutant, year, month, value, averaging_period`

// listableFields maps a filter option name to the column it enumerates.
// Acting as a whitelist keeps caller-supplied field names out of the SQL.
var listableFields = map[string]string{
	"borough":     "borough",
	"pollutant":   "pollutant",
	"sensor_type": "sensor_type",
	"year":        "year::text",
	"averaging":   "averaging_period",
}

// Client reads sensor data. Safe for concurrent use.
type Client struct {
	db     querier
	logger log.Logger
}

// NewClient creates a sensor data client.
func NewClient(db querier, logger log.Logger) (*Client, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{db: db, logger: logger}, nil
}

// Aggregate groups the readings matching q by borough and pollutant and
// returns per-group statistics, ordered by borough then pollutant.
func (c *Client) Aggregate(ctx context.Context, q Query) ([]Summary, error) {
	where, args := buildWhere(q)
	sql := fmt.Sprintf(`SELECT borough, pollutant,
		COUNT(DISTINCT site_code), COUNT(*),
		AVG(value), MIN(value), MAX(value)
		FROM sensor_readings%s
		GROUP BY borough, pollutant
		ORDER BY borough, pollutant`, where)

	rows, err := c.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregating readings: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.Borough, &s.Pollutant, &s.Sites, &s.Readings, &s.Mean, &s.Min, &s.Max); err != nil {
			return nil, fmt.Errorf("scanning summary row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading summary rows: %w", err)
	}
	return out, nil
}

// ListUniqueValues returns the distinct values of a listable field, sorted.
// The field must be one of: borough, pollutant, sensor_type, year, averaging.
func (c *Client) ListUniqueValues(ctx context.Context, field string) ([]string, error) {
	column, ok := listableFields[field]
	if !ok {
		return nil, fmt.Errorf("field %q is not listable", field)
	}

	sql := fmt.Sprintf("SELECT DISTINCT %s FROM sensor_readings ORDER BY 1", column)
	rows, err := c.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("listing %s values: %w", field, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning %s value: %w", field, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s values: %w", field, err)
	}
	return out, nil
}

// StreamRows passes each reading matching q to fn, one row at a time, up to
// limit rows. fn returning an error stops the stream and propagates the
// error. Rows are never materialized as a full slice.
func (c *Client) StreamRows(ctx context.Context, q Query, limit int, fn func(Row) error) error {
	where, args := buildWhere(q)
	args = append(args, limit)
	sql := fmt.Sprintf(`SELECT %s FROM sensor_readings%s
		ORDER BY borough, site_code, year, month
		LIMIT $%d`, rowCols, where, len(args))

	rows, err := c.db.Query(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("streaming readings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r Row
		err := rows.Scan(&r.SiteCode, &r.SiteName, &r.Borough, &r.Lat, &r.Lon,
			&r.SensorType, &r.Pollutant, &r.Year, &r.Month, &r.Value, &r.AveragingPeriod)
		if err != nil {
			return fmt.Errorf("scanning reading: %w", err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return nil
}

// buildWhere renders q as a WHERE clause with positional parameters. An
// empty query produces an empty clause.
func buildWhere(q Query) (string, []any) {
	var clauses []string
	var args []any

	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if len(q.Boroughs) > 0 {
		add("borough = ANY($%d)", q.Boroughs)
	}
	if q.Pollutant != "" {
		add("pollutant = $%d", q.Pollutant)
	}
	if len(q.SensorTypes) > 0 {
		add("sensor_type = ANY($%d)", q.SensorTypes)
	}
	if q.Year != nil {
		add("year = $%d", *q.Year)
	}
	if q.Month != nil {
		add("month = $%d", *q.Month)
	}
	if q.Averaging != "" {
		add("averaging_period = $%d", q.Averaging)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
