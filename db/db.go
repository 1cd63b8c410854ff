package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS sensor_log (
		time INTEGER NOT NULL,
		temperature REAL,
		humidity REAL,
		window REAL,
		co2_ppm REAL,
		tvoc_ppb REAL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sensor_log_time ON sensor_log (time)`,
}

// Open opens the sqlite history database at path and applies migrations.
// sqlite serialises writers, so the pool is held to one connection; this also keeps
// ":memory:" databases shared across calls.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := ApplyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	log.Debug().Str("path", path).Msg("History database ready")
	return db, nil
}

func ApplyMigrations(db *sql.DB) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	for i, m := range migrations {
		if _, err := tx.Exec(m); err != nil {
			RollbackTransaction(tx)
			return fmt.Errorf("apply migration %d: %w", i, err)
		}
	}
	return CommitTransaction(tx)
}
