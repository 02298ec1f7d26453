package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/sibr/internal/model"
)

// PutObject stores a single object. Returns true if the object was new.
// Storing an existing hash is a no-op.
func (s *Store) PutObject(ctx context.Context, obj model.Object) (bool, error) {
	n, err := s.PutObjects(ctx, []model.Object{obj})
	return n == 1, err
}

// PutObjects stores objects in one transaction and returns how many were new.
func (s *Store) PutObjects(ctx context.Context, objs []model.Object) (int, error) {
	var inserted int
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		inserted, err = putObjects(ctx, tx, objs)
		return err
	})
	return inserted, err
}

// putObjects inserts objects within an existing transaction.
// Duplicate hashes inside the batch are written once.
func putObjects(ctx context.Context, tx *sql.Tx, objs []model.Object) (int, error) {
	if len(objs) == 0 {
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO objects (hash, data) VALUES (?, ?)
		ON CONFLICT(hash) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare object insert: %w", err)
	}
	defer stmt.Close()

	seen := make(map[model.Hash]struct{}, len(objs))
	inserted := 0
	for _, obj := range objs {
		if obj.Hash == "" {
			return inserted, fmt.Errorf("object has empty hash")
		}
		if _, dup := seen[obj.Hash]; dup {
			continue
		}
		seen[obj.Hash] = struct{}{}

		res, err := stmt.ExecContext(ctx, string(obj.Hash), string(obj.Data))
		if err != nil {
			return inserted, fmt.Errorf("insert object %s: %w", obj.Hash, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}
	return inserted, nil
}

// GetObject returns the object stored under hash, or ErrNotFound.
func (s *Store) GetObject(ctx context.Context, hash model.Hash) (model.Object, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM objects WHERE hash = ?`, string(hash),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Object{}, fmt.Errorf("object %s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return model.Object{}, fmt.Errorf("query object: %w", err)
	}
	return model.Object{Hash: hash, Data: []byte(data)}, nil
}
