package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/folio/internal/model"
)

// Enqueue appends an intent to the outbox and returns its assigned id.
// The intent row and all of its fields are written in one transaction.
//
// Intents carrying an idempotency key already present in the outbox are
// not inserted twice; the existing id is returned.
func (s *Store) Enqueue(ctx context.Context, in model.Intent) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}
	defer tx.Rollback()

	if in.IdempotencyKey != "" {
		var existing int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM outbox WHERE idempotency_key = ?`,
			in.IdempotencyKey,
		).Scan(&existing)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("enqueue: %w", err)
		}
	}

	var (
		hasMeta   int
		entity    sql.NullString
		operation sql.NullString
		targetID  sql.NullInt64
	)
	if in.Meta != nil {
		hasMeta = 1
		entity = nullString(string(in.Meta.Entity))
		operation = nullString(string(in.Meta.Operation))
		if in.Meta.TargetID != nil {
			targetID = sql.NullInt64{Int64: *in.Meta.TargetID, Valid: true}
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO outbox
		(method, url, page_path, created_at, has_meta, entity, operation, target_id, idempotency_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		in.Method,
		in.URL,
		in.PagePath,
		in.CreatedAt,
		hasMeta,
		entity,
		operation,
		targetID,
		nullString(in.IdempotencyKey),
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}

	for pos, f := range in.Fields {
		if err := insertField(ctx, tx, id, pos, f); err != nil {
			return 0, fmt.Errorf("enqueue field %d: %w", pos, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}
	return id, nil
}

func insertField(ctx context.Context, tx *sql.Tx, entryID int64, pos int, f model.Field) error {
	var (
		value        sql.NullString
		blob         []byte
		fileName     sql.NullString
		fileType     sql.NullString
		lastModified sql.NullInt64
	)
	switch f.Kind {
	case model.FieldFile:
		blob = f.Blob
		if blob == nil {
			blob = []byte{}
		}
		fileName = sql.NullString{String: f.FileName, Valid: true}
		fileType = sql.NullString{String: f.FileType, Valid: true}
		lastModified = sql.NullInt64{Int64: f.LastModified, Valid: true}
	default:
		value = sql.NullString{String: f.Value, Valid: true}
	}

	kind := f.Kind
	if kind == "" {
		kind = model.FieldText
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO outbox_fields
		(entry_id, position, name, kind, value, blob, file_name, file_type, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entryID, pos, f.Name, string(kind), value, blob, fileName, fileType, lastModified,
	)
	return err
}

// ListOutbox returns every queued intent in insertion order, fields in
// submission order. Returns an empty slice when the outbox is empty.
func (s *Store) ListOutbox(ctx context.Context) ([]model.Intent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, method, url, page_path, created_at, has_meta, entity, operation, target_id, idempotency_key
		FROM outbox
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}

	intents := []model.Intent{}
	index := map[int64]int{}
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("list outbox: %w", err)
		}
		index[in.ID] = len(intents)
		intents = append(intents, in)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	rows.Close()

	fieldRows, err := tx.QueryContext(ctx, `
		SELECT entry_id, name, kind, value, blob, file_name, file_type, last_modified
		FROM outbox_fields
		ORDER BY entry_id ASC, position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list outbox fields: %w", err)
	}
	defer fieldRows.Close()

	for fieldRows.Next() {
		entryID, f, err := scanField(fieldRows)
		if err != nil {
			return nil, fmt.Errorf("list outbox fields: %w", err)
		}
		i, ok := index[entryID]
		if !ok {
			continue
		}
		intents[i].Fields = append(intents[i].Fields, f)
	}
	if err := fieldRows.Err(); err != nil {
		return nil, fmt.Errorf("list outbox fields: %w", err)
	}

	return intents, nil
}

// GetOutbox returns one queued intent by id, or ErrNotFound.
func (s *Store) GetOutbox(ctx context.Context, id int64) (model.Intent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, method, url, page_path, created_at, has_meta, entity, operation, target_id, idempotency_key
		FROM outbox
		WHERE id = ?
	`, id)
	in, err := scanIntent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Intent{}, fmt.Errorf("get outbox %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Intent{}, fmt.Errorf("get outbox %d: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, name, kind, value, blob, file_name, file_type, last_modified
		FROM outbox_fields
		WHERE entry_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return model.Intent{}, fmt.Errorf("get outbox %d fields: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		_, f, err := scanField(rows)
		if err != nil {
			return model.Intent{}, fmt.Errorf("get outbox %d fields: %w", id, err)
		}
		in.Fields = append(in.Fields, f)
	}
	return in, rows.Err()
}

// DeleteOutbox removes an intent and its fields. Deleting an id that does
// not exist is a no-op.
func (s *Store) DeleteOutbox(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete outbox %d: %w", id, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM outbox_fields WHERE entry_id = ?`, id); err != nil {
		return fmt.Errorf("delete outbox %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete outbox %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete outbox %d: %w", id, err)
	}
	return nil
}

// CountOutbox returns the number of queued intents.
func (s *Store) CountOutbox(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count outbox: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntent(row rowScanner) (model.Intent, error) {
	var (
		in        model.Intent
		hasMeta   int
		entity    sql.NullString
		operation sql.NullString
		targetID  sql.NullInt64
		key       sql.NullString
	)
	if err := row.Scan(&in.ID, &in.Method, &in.URL, &in.PagePath, &in.CreatedAt,
		&hasMeta, &entity, &operation, &targetID, &key); err != nil {
		return model.Intent{}, err
	}
	if hasMeta == 1 {
		in.Meta = &model.Meta{
			Entity:    model.Entity(entity.String),
			Operation: model.Operation(operation.String),
		}
		if targetID.Valid {
			in.Meta.TargetID = model.Int64Ptr(targetID.Int64)
		}
	}
	in.IdempotencyKey = key.String
	in.Fields = []model.Field{}
	return in, nil
}

func scanField(row rowScanner) (int64, model.Field, error) {
	var (
		entryID      int64
		f            model.Field
		kind         string
		value        sql.NullString
		blob         []byte
		fileName     sql.NullString
		fileType     sql.NullString
		lastModified sql.NullInt64
	)
	if err := row.Scan(&entryID, &f.Name, &kind, &value, &blob, &fileName, &fileType, &lastModified); err != nil {
		return 0, model.Field{}, err
	}
	f.Kind = model.FieldKind(kind)
	if f.Kind == model.FieldFile {
		f.Blob = blob
		if f.Blob == nil {
			f.Blob = []byte{}
		}
		f.FileName = fileName.String
		f.FileType = fileType.String
		f.LastModified = lastModified.Int64
	} else {
		f.Value = value.String
	}
	return entryID, f, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
