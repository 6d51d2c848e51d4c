package manager

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/webidx/ftindex/pkg/postgres"
	"github.com/webidx/ftindex/pkg/resilience"
)

// Ledger persists one row per index/index_link CLI invocation to the
// ingestion_runs table (§3.1), grounded on the source platform's
// publisher.Publisher pattern of persisting to Postgres before/after doing
// the actual work.
type Ledger struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewLedger wraps a postgres client as an ingestion-run ledger.
func NewLedger(db *postgres.Client) *Ledger {
	return &Ledger{db: db, logger: slog.Default().With("component", "ledger")}
}

// Run is one open ingestion_runs row.
type Run struct {
	ID      int64
	Command string
	DBName  string
	Batch   string
}

// Start inserts a new ingestion_runs row with status RUNNING and returns
// its handle.
func (l *Ledger) Start(ctx context.Context, command, dbName, batch string) (*Run, error) {
	if l == nil || l.db == nil {
		return &Run{Command: command, DBName: dbName, Batch: batch}, nil
	}
	var id int64
	err := resilience.Retry(ctx, "ledger.start", resilience.RetryConfig{MaxAttempts: 3}, func() error {
		return l.db.DB.QueryRowContext(ctx,
			`INSERT INTO ingestion_runs (db_name, command, batch, started_at, status)
			 VALUES ($1, $2, $3, $4, 'RUNNING') RETURNING id`,
			dbName, command, batch, time.Now().UTC(),
		).Scan(&id)
	})
	if err != nil {
		return nil, fmt.Errorf("starting ingestion run: %w", err)
	}
	return &Run{ID: id, Command: command, DBName: dbName, Batch: batch}, nil
}

// Finish marks a run complete, recording the number of files and shards
// touched, or the error message if runErr is non-nil.
func (l *Ledger) Finish(ctx context.Context, run *Run, fileCount, shardsTouched int, runErr error) error {
	if l == nil || l.db == nil || run.ID == 0 {
		return nil
	}
	status := "COMPLETED"
	var errMsg sql.NullString
	if runErr != nil {
		status = "FAILED"
		errMsg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	err := resilience.Retry(ctx, "ledger.finish", resilience.RetryConfig{MaxAttempts: 3}, func() error {
		_, execErr := l.db.DB.ExecContext(ctx,
			`UPDATE ingestion_runs SET finished_at=$1, file_count=$2, shards_touched=$3, status=$4, error_message=$5 WHERE id=$6`,
			time.Now().UTC(), fileCount, shardsTouched, status, errMsg, run.ID,
		)
		return execErr
	})
	if err != nil {
		l.logger.Error("failed to finalize ingestion run", "run_id", run.ID, "error", err)
		return fmt.Errorf("finishing ingestion run %d: %w", run.ID, err)
	}
	return nil
}
