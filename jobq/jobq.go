// Package jobq implements the parse-job queue backed by SQLite.
//
// Each row is one batch waiting to be parsed. A claimed job is invisible to
// other consumers for a configurable duration; if the worker finishes it acks
// (deletes) the row, and if the worker crashes or overruns the timeout the
// row reappears and another instance picks it up. Pure SQLite — no external
// broker, so the single-binary deployment stays a single binary.
//
// Schema (created by EnsureTable):
//
//	CREATE TABLE IF NOT EXISTS parse_jobs (
//	    id          TEXT PRIMARY KEY,
//	    batch_id    TEXT NOT NULL,
//	    visible_at  INTEGER NOT NULL DEFAULT 0,  -- milliseconds since epoch
//	    created_at  INTEGER NOT NULL,            -- milliseconds since epoch
//	    attempts    INTEGER NOT NULL DEFAULT 0
//	);
package jobq

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"
)

// Job is one queued parse request.
type Job struct {
	ID        string
	BatchID   string
	VisibleAt time.Time
	CreatedAt time.Time
	Attempts  int
}

// Options configures queue behaviour.
type Options struct {
	// Visibility is how long a claimed job stays invisible. Must exceed the
	// worst-case batch parse time or a second worker will double-process.
	// Default: 5m.
	Visibility time.Duration
	// PollInterval is the delay between claim attempts in the Run loop.
	// Default: 1s.
	PollInterval time.Duration
	// MaxAttempts limits how many times a job is redelivered before being
	// discarded. 0 means unlimited. Default: 3.
	MaxAttempts int
	// OnDiscard is called before a job exceeding MaxAttempts is dropped, so
	// the caller can mark the underlying work failed. Optional.
	OnDiscard func(ctx context.Context, job *Job)
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Visibility <= 0 {
		o.Visibility = 5 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 3
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Queue is the queue handle.
type Queue struct {
	db   *sql.DB
	opts Options
}

// New creates a queue handle. Call EnsureTable once at startup, then Enqueue
// and Claim (or Run) as needed.
func New(db *sql.DB, opts Options) *Queue {
	opts.defaults()
	return &Queue{db: db, opts: opts}
}

// EnsureTable creates the parse_jobs table and index if they don't exist.
func (q *Queue) EnsureTable(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS parse_jobs (
			id          TEXT PRIMARY KEY,
			batch_id    TEXT NOT NULL,
			visible_at  INTEGER NOT NULL DEFAULT 0,
			created_at  INTEGER NOT NULL,
			attempts    INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_parse_jobs_visible ON parse_jobs (visible_at);
	`)
	return err
}

// Enqueue inserts a job that is immediately visible.
func (q *Queue) Enqueue(ctx context.Context, id, batchID string) error {
	now := time.Now().UnixMilli()
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO parse_jobs (id, batch_id, visible_at, created_at) VALUES (?,?,?,?)`,
		id, batchID, now, now,
	)
	return err
}

// Claim atomically picks the oldest visible job, marks it invisible for the
// configured visibility duration, and returns it. Returns nil, nil if no job
// is available.
func (q *Queue) Claim(ctx context.Context) (*Job, error) {
	now := time.Now()
	hideUntil := now.Add(q.opts.Visibility).UnixMilli()

	row := q.db.QueryRowContext(ctx, `
		UPDATE parse_jobs
		SET visible_at = ?, attempts = attempts + 1
		WHERE id = (
			SELECT id FROM parse_jobs
			WHERE visible_at <= ?
			ORDER BY visible_at ASC
			LIMIT 1
		)
		RETURNING id, batch_id, visible_at, created_at, attempts`,
		hideUntil, now.UnixMilli(),
	)

	var j Job
	var visAt, creAt int64
	err := row.Scan(&j.ID, &j.BatchID, &visAt, &creAt, &j.Attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	j.VisibleAt = time.UnixMilli(visAt)
	j.CreatedAt = time.UnixMilli(creAt)
	return &j, nil
}

// Ack deletes a successfully processed job.
func (q *Queue) Ack(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM parse_jobs WHERE id = ?`, id)
	return err
}

// Nack makes a job immediately visible again so another consumer can pick it up.
func (q *Queue) Nack(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE parse_jobs SET visible_at = 0 WHERE id = ?`, id)
	return err
}

// Extend pushes the visibility timeout forward for a job that needs more
// processing time (heartbeat pattern for very large batches).
func (q *Queue) Extend(ctx context.Context, id string, extra time.Duration) error {
	hideUntil := time.Now().Add(extra).UnixMilli()
	_, err := q.db.ExecContext(ctx,
		`UPDATE parse_jobs SET visible_at = ? WHERE id = ?`, hideUntil, id)
	return err
}

// Pending returns the total number of jobs (visible + claimed).
func (q *Queue) Pending(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM parse_jobs`).Scan(&n)
	return n, err
}

// Handler processes a claimed job. Return nil to ack, non-nil to nack.
type Handler func(ctx context.Context, job *Job) error

// Run polls for visible jobs and calls handler for each one, sequentially.
// Batches parallelize internally, so one in-flight batch per consumer keeps
// memory bounded. Blocks until ctx is cancelled.
func (q *Queue) Run(ctx context.Context, handler Handler) {
	log := q.opts.Logger
	log.Info("jobq: consumer started",
		"visibility", q.opts.Visibility, "poll", q.opts.PollInterval)

	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("jobq: consumer stopped")
			return
		case <-ticker.C:
			q.poll(ctx, handler, log)
		}
	}
}

func (q *Queue) poll(ctx context.Context, handler Handler, log *slog.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := q.Claim(ctx)
		if err != nil {
			log.Warn("jobq: claim failed", "error", err)
			return
		}
		if job == nil {
			return // nothing visible
		}

		if q.opts.MaxAttempts > 0 && job.Attempts > q.opts.MaxAttempts {
			log.Warn("jobq: job exceeded max attempts, discarding",
				"id", job.ID, "batch", job.BatchID, "attempts", job.Attempts)
			if q.opts.OnDiscard != nil {
				q.opts.OnDiscard(context.WithoutCancel(ctx), job)
			}
			_ = q.Ack(context.WithoutCancel(ctx), job.ID)
			continue
		}

		if err := handler(ctx, job); err != nil {
			log.Warn("jobq: handler failed, nacking",
				"id", job.ID, "batch", job.BatchID, "error", err)
			_ = q.Nack(context.WithoutCancel(ctx), job.ID)
		} else {
			_ = q.Ack(context.WithoutCancel(ctx), job.ID)
		}
	}
}
