package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/heater-controller/internal/model"
)

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

func InsertReading(ctx context.Context, db *sql.DB, r model.SensorReading) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO sensor_log (time, temperature, humidity, window, co2_ppm, tvoc_ppb) VALUES (?, ?, ?, ?, ?, ?)`,
		r.Timestamp.Unix(), nullable(r.Temperature), nullable(r.Humidity), nullable(r.Window), nullable(r.CO2), nullable(r.TVOC))
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// PruneBefore deletes readings logged before cutoff and returns how many were removed.
func PruneBefore(ctx context.Context, db *sql.DB, cutoff time.Time) (int64, error) {
	tx, err := StartTransaction(db)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sensor_log WHERE time < ?`, cutoff.Unix())
	if err != nil {
		RollbackTransaction(tx)
		return 0, fmt.Errorf("prune readings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		RollbackTransaction(tx)
		return 0, fmt.Errorf("prune readings: %w", err)
	}
	return n, CommitTransaction(tx)
}

func nullable(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
