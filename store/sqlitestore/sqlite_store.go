// Package sqlitestore persists session items in a SQLite database file.
package sqlitestore

import (
	"context"
	"database/sql"

	apperrors "github.com/jrsteele09/go-invoice-session/internal/errors"
	"github.com/jrsteele09/go-invoice-session/store"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const schema = `CREATE TABLE IF NOT EXISTS session_items (
	namespace TEXT NOT NULL,
	key       TEXT NOT NULL,
	value     TEXT NOT NULL,
	PRIMARY KEY (namespace, key)
)`

var _ store.Store = (*SQLiteStore)(nil)

// SQLiteStore writes every Put in a single transaction.
type SQLiteStore struct {
	db        *sql.DB
	namespace string
}

// New opens (or creates) the database at dbPath. ":memory:" is accepted for tests.
func New(dbPath, namespace string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, apperrors.Wrapf(err, "failed to open SQLite database")
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperrors.Wrapf(err, "failed to create session_items table")
	}
	return &SQLiteStore{db: db, namespace: namespace}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM session_items WHERE namespace = ? AND key = ?`,
		s.namespace, key,
	).Scan(&value)
	if apperrors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", apperrors.Wrapf(err, "failed to read %s", key)
	}
	return value, nil
}

func (s *SQLiteStore) Put(ctx context.Context, items map[string]string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for key, value := range items {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO session_items (namespace, key, value) VALUES (?, ?, ?)
				 ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value`,
				s.namespace, key, value,
			); err != nil {
				return apperrors.Wrapf(err, "failed to write %s", key)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, key := range keys {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM session_items WHERE namespace = ? AND key = ?`,
				s.namespace, key,
			); err != nil {
				return apperrors.Wrapf(err, "failed to delete %s", key)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrapf(err, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrapf(err, "failed to commit transaction")
	}
	return nil
}
