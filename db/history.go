package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/heater-controller/internal/model"
)

// History is the sqlite-backed reading log the decision loop reads from.
type History struct {
	db *sql.DB
}

func NewHistory(db *sql.DB) *History {
	return &History{db: db}
}

func (h *History) Record(ctx context.Context, r model.SensorReading) error {
	return InsertReading(ctx, h.db, r)
}

func (h *History) RecentReadings(ctx context.Context, since time.Time) ([]model.HistoryRow, error) {
	return LoadRecent(ctx, h.db, since)
}

func (h *History) RecentWindowValues(ctx context.Context, limit int) ([]float64, error) {
	return LoadRecentWindowValues(ctx, h.db, limit)
}

// RunPruner deletes readings older than retention every interval until ctx is done.
func (h *History) RunPruner(ctx context.Context, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.prune(ctx, retention)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.prune(ctx, retention)
		}
	}
}

func (h *History) prune(ctx context.Context, retention time.Duration) {
	n, err := PruneBefore(ctx, h.db, time.Now().Add(-retention))
	if err != nil {
		log.Error().Err(err).Msg("Failed to prune sensor log")
		return
	}
	if n > 0 {
		log.Info().Int64("rows", n).Dur("retention", retention).Msg("Pruned sensor log")
	}
}
