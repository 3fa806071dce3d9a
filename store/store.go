// Package store persists batches, their uploaded files, and their parse
// results in SQLite.
//
// One batch moves through a linear status lifecycle:
//
//	pending → running → completed | completed_with_errors | failed
//
// Uploaded file bytes are stored as BLOBs so a worker on any instance sharing
// the database file can pick the batch up; results are stored per drive group
// with the reconciled record serialized as JSON next to the columns reports
// are filtered on.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platterworks/drivebatch/dbopen"
	"github.com/platterworks/drivebatch/drivepipe"
)

// Batch statuses.
const (
	StatusPending             = "pending"
	StatusRunning             = "running"
	StatusCompleted           = "completed"
	StatusCompletedWithErrors = "completed_with_errors"
	StatusFailed              = "failed"
)

// ErrNotFound is returned when a batch ID does not exist.
var ErrNotFound = errors.New("batch not found")

// Batch is the stored batch row.
type Batch struct {
	ID         string             `json:"id"`
	Status     string             `json:"status"`
	FileCount  int                `json:"file_count"`
	CreatedAt  time.Time          `json:"created_at"`
	StartedAt  *time.Time         `json:"started_at,omitempty"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	Error      string             `json:"error,omitempty"`
	Summary    *drivepipe.Summary `json:"summary,omitempty"`
}

// Store wraps the SQLite handle.
type Store struct {
	db *sql.DB
}

// New creates a Store. Call EnsureSchema once at startup.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS batches (
    id          TEXT PRIMARY KEY,
    status      TEXT NOT NULL DEFAULT 'pending',
    file_count  INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL,
    started_at  INTEGER,
    finished_at INTEGER,
    error       TEXT NOT NULL DEFAULT '',
    summary     TEXT
);

CREATE TABLE IF NOT EXISTS uploads (
    batch_id  TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
    ord       INTEGER NOT NULL,
    name      TEXT NOT NULL,
    data      BLOB NOT NULL,
    PRIMARY KEY (batch_id, ord)
);

CREATE TABLE IF NOT EXISTS drives (
    batch_id  TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
    ord       INTEGER NOT NULL,
    serial    TEXT NOT NULL,
    model     TEXT NOT NULL DEFAULT '',
    vendor    TEXT NOT NULL DEFAULT '',
    health    TEXT NOT NULL DEFAULT 'UNKNOWN',
    grp       TEXT NOT NULL,
    PRIMARY KEY (batch_id, ord)
);
CREATE INDEX IF NOT EXISTS idx_drives_serial ON drives (serial);

CREATE TABLE IF NOT EXISTS parse_errors (
    batch_id     TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
    ord          INTEGER NOT NULL,
    file_name    TEXT NOT NULL,
    format_guess TEXT NOT NULL,
    reason       TEXT NOT NULL,
    detail       TEXT NOT NULL DEFAULT '',
    offset_hint  TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (batch_id, ord)
);
`

// EnsureSchema creates the tables if they don't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// CreateBatch inserts a pending batch and its uploaded files in one
// transaction.
func (s *Store) CreateBatch(ctx context.Context, id string, files []drivepipe.Input) error {
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO batches (id, status, file_count, created_at) VALUES (?,?,?,?)`,
			id, StatusPending, len(files), time.Now().UnixMilli(),
		); err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		for i, f := range files {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO uploads (batch_id, ord, name, data) VALUES (?,?,?,?)`,
				id, i, f.Name, f.Data,
			); err != nil {
				return fmt.Errorf("insert upload %s: %w", f.Name, err)
			}
		}
		return nil
	})
}

// GetBatch returns one batch row.
func (s *Store) GetBatch(ctx context.Context, id string) (*Batch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, file_count, created_at, started_at, finished_at, error, summary
		FROM batches WHERE id = ?`, id)

	var b Batch
	var created int64
	var started, finished sql.NullInt64
	var summary sql.NullString
	err := row.Scan(&b.ID, &b.Status, &b.FileCount, &created, &started, &finished, &b.Error, &summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.CreatedAt = time.UnixMilli(created)
	if started.Valid {
		t := time.UnixMilli(started.Int64)
		b.StartedAt = &t
	}
	if finished.Valid {
		t := time.UnixMilli(finished.Int64)
		b.FinishedAt = &t
	}
	if summary.Valid && summary.String != "" {
		var sum drivepipe.Summary
		if err := json.Unmarshal([]byte(summary.String), &sum); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
		b.Summary = &sum
	}
	return &b, nil
}

// Uploads returns the batch's stored files in upload order.
func (s *Store) Uploads(ctx context.Context, batchID string) ([]drivepipe.Input, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, data FROM uploads WHERE batch_id = ? ORDER BY ord`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var inputs []drivepipe.Input
	for rows.Next() {
		var in drivepipe.Input
		if err := rows.Scan(&in.Name, &in.Data); err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	return inputs, rows.Err()
}

// MarkRunning transitions a batch to running and stamps started_at.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	res, err := dbopen.Exec(ctx, s.db,
		`UPDATE batches SET status = ?, started_at = ? WHERE id = ?`,
		StatusRunning, time.Now().UnixMilli(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// MarkFailed records a whole-batch failure (resource exhaustion, storage
// errors). Per-file problems are parse errors inside a completed result, not
// failures.
func (s *Store) MarkFailed(ctx context.Context, id, reason string) error {
	res, err := dbopen.Exec(ctx, s.db,
		`UPDATE batches SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		StatusFailed, reason, time.Now().UnixMilli(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SaveResult persists one pipeline result and finishes the batch. Drive
// groups and parse errors are replaced wholesale, so a redelivered job
// overwrites rather than duplicates.
func (s *Store) SaveResult(ctx context.Context, id string, res *drivepipe.BatchResult) error {
	status := StatusCompleted
	if len(res.Errors) > 0 {
		status = StatusCompletedWithErrors
	}
	summary, err := json.Marshal(res.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		r, err := tx.ExecContext(ctx,
			`UPDATE batches SET status = ?, summary = ?, finished_at = ? WHERE id = ?`,
			status, string(summary), time.Now().UnixMilli(), id)
		if err != nil {
			return fmt.Errorf("update batch: %w", err)
		}
		if err := requireRow(r); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM drives WHERE batch_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM parse_errors WHERE batch_id = ?`, id); err != nil {
			return err
		}

		for i, g := range res.Groups {
			blob, err := json.Marshal(g)
			if err != nil {
				return fmt.Errorf("encode group %s: %w", g.SerialNumber, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO drives (batch_id, ord, serial, model, vendor, health, grp)
				VALUES (?,?,?,?,?,?,?)`,
				id, i, g.SerialNumber, g.Merged.Model, g.Merged.Vendor,
				string(g.Merged.OverallHealth), string(blob),
			); err != nil {
				return fmt.Errorf("insert drive %s: %w", g.SerialNumber, err)
			}
		}

		for i, e := range res.Errors {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO parse_errors (batch_id, ord, file_name, format_guess, reason, detail, offset_hint)
				VALUES (?,?,?,?,?,?,?)`,
				id, i, e.FileName, string(e.FormatGuess), string(e.Reason), e.Detail, e.OffsetHint,
			); err != nil {
				return fmt.Errorf("insert parse error for %s: %w", e.FileName, err)
			}
		}
		return nil
	})
}

// Groups returns the batch's reconciled drive groups in stored order.
func (s *Store) Groups(ctx context.Context, batchID string) ([]drivepipe.ReconciliationGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT grp FROM drives WHERE batch_id = ? ORDER BY ord`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := []drivepipe.ReconciliationGroup{}
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var g drivepipe.ReconciliationGroup
		if err := json.Unmarshal([]byte(blob), &g); err != nil {
			return nil, fmt.Errorf("decode group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// Errors returns the batch's parse errors in stored order.
func (s *Store) Errors(ctx context.Context, batchID string) ([]drivepipe.ParseError, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_name, format_guess, reason, detail, offset_hint
		FROM parse_errors WHERE batch_id = ? ORDER BY ord`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	errs := []drivepipe.ParseError{}
	for rows.Next() {
		var e drivepipe.ParseError
		var format, reason string
		if err := rows.Scan(&e.FileName, &format, &reason, &e.Detail, &e.OffsetHint); err != nil {
			return nil, err
		}
		e.FormatGuess = drivepipe.Format(format)
		e.Reason = drivepipe.ErrorReason(reason)
		errs = append(errs, e)
	}
	return errs, rows.Err()
}

// Result reassembles the full pipeline result for a finished batch.
func (s *Store) Result(ctx context.Context, batchID string) (*drivepipe.BatchResult, error) {
	b, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	groups, err := s.Groups(ctx, batchID)
	if err != nil {
		return nil, err
	}
	errs, err := s.Errors(ctx, batchID)
	if err != nil {
		return nil, err
	}
	res := &drivepipe.BatchResult{Groups: groups, Errors: errs}
	if b.Summary != nil {
		res.Summary = *b.Summary
	}
	return res, nil
}

// FindSerial returns every stored group for one serial number, newest batch
// first. Operators use this to trace a drive across intake batches. The
// lookup key is canonicalised the same way stored serials are, so lowercase
// queries still match.
func (s *Store) FindSerial(ctx context.Context, serial string) ([]drivepipe.ReconciliationGroup, error) {
	serial = strings.ToUpper(strings.TrimSpace(serial))
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.grp FROM drives d
		JOIN batches b ON b.id = d.batch_id
		WHERE d.serial = ?
		ORDER BY b.created_at DESC, d.ord`, serial)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := []drivepipe.ReconciliationGroup{}
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var g drivepipe.ReconciliationGroup
		if err := json.Unmarshal([]byte(blob), &g); err != nil {
			return nil, fmt.Errorf("decode group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
