// Package store persists plans, runtime state and price history.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/flexplan/core/repository"
)

// OpenSQLite opens or creates the database at path. Writes are funnelled
// through a single connection.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return db, nil
}

func ensureSchema(db *sql.DB, schema string) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

// SQLiteRepository stores JSON documents by key.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository ensures the documents table exists.
func NewSQLiteRepository(db *sql.DB) (*SQLiteRepository, error) {
	schema := `CREATE TABLE IF NOT EXISTS documents (
        key TEXT PRIMARY KEY,
        doc TEXT NOT NULL,
        updated_at INTEGER NOT NULL
    );`
	if err := ensureSchema(db, schema); err != nil {
		return nil, err
	}
	return &SQLiteRepository{db: db}, nil
}

// Get loads the document under key into out.
func (r *SQLiteRepository) Get(ctx context.Context, key string, out any) (bool, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT doc FROM documents WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return true, fmt.Errorf("decode %s: %w: %w", key, repository.ErrCorrupt, err)
	}
	return true, nil
}

// Save replaces the document under key.
func (r *SQLiteRepository) Save(ctx context.Context, key string, doc any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO documents (key, doc, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		key, string(b), time.Now().Unix())
	return err
}

// Keys lists the stored keys.
func (r *SQLiteRepository) Keys(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key FROM documents ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
