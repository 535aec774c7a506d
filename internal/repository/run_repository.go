package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Proton-105/horoscope-bot/internal/domain"
)

// RunRecord summarizes one delivery run.
type RunRecord struct {
	RunID      string
	Window     domain.Window
	Trigger    string
	StartedAt  time.Time
	FinishedAt time.Time
	Delivered  int
	Skipped    int
	Failed     int
}

// RunStore keeps the delivery run history.
type RunStore interface {
	Record(ctx context.Context, rec RunRecord) error
	Recent(ctx context.Context, limit int) ([]RunRecord, error)
}

type runRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewRunRepository creates a SQL-backed run history.
func NewRunRepository(db *sql.DB, log *slog.Logger) RunStore {
	if log == nil {
		log = slog.Default()
	}
	return &runRepository{db: db, log: log}
}

func (r *runRepository) Record(ctx context.Context, rec RunRecord) error {
	const query = `
		INSERT INTO delivery_runs (run_id, window_date, trigger_source, started_at, finished_at, delivered, skipped, failed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	if _, err := r.db.ExecContext(ctx, query,
		rec.RunID,
		rec.Window.String(),
		rec.Trigger,
		rec.StartedAt.UTC(),
		rec.FinishedAt.UTC(),
		rec.Delivered,
		rec.Skipped,
		rec.Failed,
	); err != nil {
		r.log.Error("failed to record delivery run", slog.String("run_id", rec.RunID), slog.Any("error", err))
		return fmt.Errorf("insert delivery run: %w", err)
	}

	return nil
}

// Recent returns the latest runs, newest first.
func (r *runRepository) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	const query = `
		SELECT run_id, window_date, trigger_source, started_at, finished_at, delivered, skipped, failed
		FROM delivery_runs
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select delivery runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			rec    RunRecord
			window string
		)
		if err := rows.Scan(&rec.RunID, &window, &rec.Trigger, &rec.StartedAt, &rec.FinishedAt, &rec.Delivered, &rec.Skipped, &rec.Failed); err != nil {
			return nil, fmt.Errorf("scan delivery run: %w", err)
		}
		rec.Window = domain.Window(window)
		out = append(out, rec)
	}

	return out, rows.Err()
}
