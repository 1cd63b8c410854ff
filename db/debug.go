package db

import (
	"context"
	"time"

	"github.com/thatsimonsguy/heater-controller/internal/model"
)

func InsertReadingCLI(dbPath string, r model.SensorReading) error {
	db, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	return InsertReading(context.Background(), db, r)
}

func PruneCLI(dbPath string, olderThan time.Duration) (int64, error) {
	db, err := Open(dbPath)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	return PruneBefore(context.Background(), db, time.Now().Add(-olderThan))
}

func RecentReadingsCLI(dbPath string, window time.Duration) ([]model.HistoryRow, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return LoadRecent(context.Background(), db, time.Now().Add(-window))
}

func RecentWindowValuesCLI(dbPath string, limit int) ([]float64, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return LoadRecentWindowValues(context.Background(), db, limit)
}
