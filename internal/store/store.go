package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/reportcast/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Schema creates the run history tables. It is safe to apply repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS capture_runs (
    id          UUID PRIMARY KEY,
    job         TEXT NOT NULL,
    status      TEXT NOT NULL,
    total       INTEGER NOT NULL,
    succeeded   INTEGER NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS deliveries (
    run_id      UUID NOT NULL REFERENCES capture_runs (id) ON DELETE CASCADE,
    position    INTEGER NOT NULL,
    target      TEXT NOT NULL,
    success     BOOLEAN NOT NULL,
    message_id  TEXT NOT NULL DEFAULT '',
    error       TEXT NOT NULL DEFAULT '',
    status_code INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, position)
);`

const (
	sqlInsertRun = `
        INSERT INTO capture_runs (id, job, status, total, succeeded, error, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
    `
	sqlInsertDelivery = `
        INSERT INTO deliveries (run_id, position, target, success, message_id, error, status_code)
        VALUES ($1, $2, $3, $4, $5, $6, $7);
    `
)

// Store records run summaries in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema applies Schema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply run history schema: %w", err)
	}
	return nil
}

// RecordRun writes the run and all of its delivery outcomes in one transaction.
func (s *Store) RecordRun(ctx context.Context, summary *schemas.RunSummary) error {
	if summary == nil || summary.RunID == "" {
		return errors.New("run summary has no run id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	errText := ""
	if summary.Err != nil {
		errText = summary.Err.Error()
	}
	finished := summary.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}

	_, err = tx.Exec(ctx, sqlInsertRun,
		summary.RunID, summary.Job, summary.Status(),
		summary.Total, summary.Succeeded, errText,
		summary.StartedAt.UTC(), finished.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", summary.RunID, err)
	}

	for i, o := range summary.Outcomes {
		_, err := tx.Exec(ctx, sqlInsertDelivery,
			summary.RunID, i, o.Target, o.Success, o.MessageID, o.Error, o.StatusCode,
		)
		if err != nil {
			return fmt.Errorf("failed to insert delivery %d of run %s: %w", i, summary.RunID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	s.log.Debug("Run recorded.", zap.String("run_id", summary.RunID), zap.Int("deliveries", len(summary.Outcomes)))
	return nil
}
