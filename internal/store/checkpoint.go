package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldsync/fieldsync/internal/entity"
)

// Checkpoint records how far a collection has been synced. SyncedAsOf is
// the server-reported timestamp, stored verbatim and echoed back as the
// delta cursor on the next run.
type Checkpoint struct {
	Collection string
	SyncedAsOf string
	UpdatedAt  time.Time
}

// FailedOp is a single-record persist failure parked for a later retry
// sweep. Bulk-page failures never land here, they abort the session.
type FailedOp struct {
	ID         int64
	TableID    entity.TableID
	RecordID   int64
	EnqueuedAt time.Time
}

// Session is one sync run recorded in local history.
type Session struct {
	ID           string
	StartedAt    time.Time
	CompletedAt  time.Time
	Status       string
	ErrorMessage string
}

// LoadCheckpoints returns all saved checkpoints keyed by collection name.
// A missing collection means it has never completed a sync.
func (s *Store) LoadCheckpoints(ctx context.Context) (map[string]Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT collection, synced_as_of, updated_at FROM sync_checkpoints")
	if err != nil {
		return nil, fmt.Errorf("loading checkpoints: %w", err)
	}
	defer rows.Close()

	checkpoints := make(map[string]Checkpoint)
	for rows.Next() {
		var cp Checkpoint
		var updatedAt string
		if err := rows.Scan(&cp.Collection, &cp.SyncedAsOf, &updatedAt); err != nil {
			return nil, fmt.Errorf("loading checkpoints: %w", err)
		}
		cp.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		checkpoints[cp.Collection] = cp
	}
	return checkpoints, rows.Err()
}

// GetCheckpoint returns the checkpoint for one collection, or nil if the
// collection has never completed a sync.
func (s *Store) GetCheckpoint(ctx context.Context, collection string) (*Checkpoint, error) {
	var cp Checkpoint
	var updatedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT collection, synced_as_of, updated_at FROM sync_checkpoints WHERE collection = ?",
		collection).Scan(&cp.Collection, &cp.SyncedAsOf, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint %s: %w", collection, err)
	}
	cp.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &cp, nil
}

// SetCheckpoint advances the delta cursor for a collection. Called only
// after the collection's final (empty) page confirms the walk is complete.
func (s *Store) SetCheckpoint(ctx context.Context, collection, syncedAsOf string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sync_checkpoints (collection, synced_as_of, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(collection) DO UPDATE SET
				synced_as_of = excluded.synced_as_of,
				updated_at = excluded.updated_at
		`, collection, syncedAsOf, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("saving checkpoint %s: %w", collection, err)
		}
		return nil
	})
}

// EnqueueFailedOp parks a (table, record) pair for the retry sweep.
// Re-enqueueing an already-parked pair is a no-op.
func (s *Store) EnqueueFailedOp(ctx context.Context, tableID entity.TableID, recordID int64) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO failed_operations (table_id, record_id, enqueued_at)
			VALUES (?, ?, ?)
			ON CONFLICT(table_id, record_id) DO NOTHING
		`, int(tableID), recordID, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("enqueueing failed op: %w", err)
		}
		return nil
	})
}

// ListFailedOps returns parked operations in enqueue order.
func (s *Store) ListFailedOps(ctx context.Context) ([]FailedOp, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, table_id, record_id, enqueued_at FROM failed_operations ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing failed ops: %w", err)
	}
	defer rows.Close()

	var ops []FailedOp
	for rows.Next() {
		var op FailedOp
		var tableID int
		var enqueuedAt string
		if err := rows.Scan(&op.ID, &tableID, &op.RecordID, &enqueuedAt); err != nil {
			return nil, fmt.Errorf("listing failed ops: %w", err)
		}
		op.TableID = entity.TableID(tableID)
		op.EnqueuedAt, _ = time.Parse(time.RFC3339, enqueuedAt)
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// DeleteFailedOp removes a parked operation after a successful retry.
func (s *Store) DeleteFailedOp(ctx context.Context, id int64) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM failed_operations WHERE id = ?", id); err != nil {
			return fmt.Errorf("deleting failed op: %w", err)
		}
		return nil
	})
}

// CreateSession records the start of a sync run.
func (s *Store) CreateSession(ctx context.Context, id string, startedAt time.Time) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sync_sessions (id, started_at, status) VALUES (?, ?, 'running')
		`, id, startedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		return nil
	})
}

// CompleteSession records the terminal outcome of a sync run.
func (s *Store) CompleteSession(ctx context.Context, id, status, errorMessage string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE sync_sessions SET completed_at = ?, status = ?, error_message = ? WHERE id = ?
		`, time.Now().UTC().Format(time.RFC3339), status, errorMessage, id)
		if err != nil {
			return fmt.Errorf("completing session: %w", err)
		}
		return nil
	})
}

// ListSessions returns the most recent sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, completed_at, status, error_message
		FROM sync_sessions ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var startedAt string
		var completedAt sql.NullString
		if err := rows.Scan(&sess.ID, &startedAt, &completedAt, &sess.Status, &sess.ErrorMessage); err != nil {
			return nil, fmt.Errorf("listing sessions: %w", err)
		}
		sess.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if completedAt.Valid {
			sess.CompletedAt, _ = time.Parse(time.RFC3339, completedAt.String)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
