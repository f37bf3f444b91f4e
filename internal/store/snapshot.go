package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/folio/internal/model"
)

// snapshotKey is the only row of the snapshot table.
const snapshotKey = "current"

// ReadSnapshot returns the stored envelope, or nil when nothing has been
// written yet.
func (s *Store) ReadSnapshot(ctx context.Context) (*model.Envelope, error) {
	var hash, data string
	err := s.db.QueryRowContext(ctx,
		`SELECT hash, snapshot FROM snapshot WHERE key = ?`,
		snapshotKey,
	).Scan(&hash, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	snap, err := unmarshalSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return &model.Envelope{Hash: hash, Snapshot: snap}, nil
}

// WriteSnapshot replaces the stored envelope.
func (s *Store) WriteSnapshot(ctx context.Context, env model.Envelope) error {
	data, err := json.Marshal(env.Snapshot)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshot (key, hash, snapshot, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			hash = excluded.hash,
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at
	`,
		snapshotKey,
		env.Hash,
		string(data),
		s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// SnapshotWrittenAt returns when the snapshot slot was last written, in
// unix milliseconds, or 0 when it is empty.
func (s *Store) SnapshotWrittenAt(ctx context.Context) (int64, error) {
	var at int64
	err := s.db.QueryRowContext(ctx,
		`SELECT updated_at FROM snapshot WHERE key = ?`,
		snapshotKey,
	).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read snapshot time: %w", err)
	}
	return at, nil
}

// unmarshalSnapshot decodes a stored snapshot. Collections decoded as null
// are normalized to empty slices.
func unmarshalSnapshot(data string) (model.Snapshot, error) {
	var snap model.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap.Clone(), nil
}
