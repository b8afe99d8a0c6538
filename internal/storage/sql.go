package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQL persists keys in a single "kv" table.  The same statements run on
// sqlite and mysql apart from the upsert clause.
type SQL struct {
	DB     *sql.DB
	upsert string
}

// NewSQL creates the kv table when missing.  driver selects the dialect of
// the upsert statement.
func NewSQL(ctx context.Context, db *sql.DB, driver string) (*SQL, error) {
	var ddl, upsert string
	switch driver {
	case "sqlite":
		ddl = `CREATE TABLE IF NOT EXISTS kv (
			k TEXT PRIMARY KEY,
			v TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`
		upsert = "INSERT INTO kv (k, v, updated_at) VALUES (?,?,?) ON CONFLICT(k) DO UPDATE SET v=excluded.v, updated_at=excluded.updated_at"
	case "mysql":
		ddl = `CREATE TABLE IF NOT EXISTS kv (
			k VARCHAR(191) PRIMARY KEY,
			v TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)`
		upsert = "INSERT INTO kv (k, v, updated_at) VALUES (?,?,?) ON DUPLICATE KEY UPDATE v=VALUES(v), updated_at=VALUES(updated_at)"
	default:
		return nil, fmt.Errorf("storage: unsupported sql driver %q", driver)
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &SQL{DB: db, upsert: upsert}, nil
}

// Get returns the stored value or ErrNotFound.
func (s *SQL) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := s.DB.QueryRowContext(ctx, "SELECT v FROM kv WHERE k=? LIMIT 1", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if errors.Is(err, sql.ErrConnDone) {
		return "", ErrClosed
	}
	return v, err
}

// Set inserts or replaces key.
func (s *SQL) Set(ctx context.Context, key, value string) error {
	_, err := s.DB.ExecContext(ctx, s.upsert, key, value, time.Now().UTC())
	return err
}

// Remove deletes key; deleting a missing key is not an error.
func (s *SQL) Remove(ctx context.Context, key string) error {
	_, err := s.DB.ExecContext(ctx, "DELETE FROM kv WHERE k=?", key)
	return err
}

func (s *SQL) Close() error { return s.DB.Close() }
