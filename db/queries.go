package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/heater-controller/internal/model"
)

// LoadRecent returns readings logged at or after since, oldest first. Rows missing a
// temperature or humidity are skipped.
func LoadRecent(ctx context.Context, db *sql.DB, since time.Time) ([]model.HistoryRow, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT temperature, humidity, window FROM sensor_log
		 WHERE time >= ? AND temperature IS NOT NULL AND humidity IS NOT NULL
		 ORDER BY time, rowid`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query recent readings: %w", err)
	}
	defer rows.Close()

	var out []model.HistoryRow
	for rows.Next() {
		var r model.HistoryRow
		var window sql.NullFloat64
		if err := rows.Scan(&r.Temperature, &r.Humidity, &window); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.Window = window.Float64
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}
	return out, nil
}

// LoadRecentWindowValues returns up to limit window samples, most recent first.
// Values that are not finite numbers are discarded.
func LoadRecentWindowValues(ctx context.Context, db *sql.DB, limit int) ([]float64, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT window FROM sensor_log ORDER BY time DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query window values: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan window value: %w", err)
		}
		if f, ok := model.NumericValue(v); ok {
			out = append(out, f)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate window values: %w", err)
	}
	return out, nil
}

func CountReadings(ctx context.Context, db *sql.DB) (int64, error) {
	var n int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sensor_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count readings: %w", err)
	}
	return n, nil
}
