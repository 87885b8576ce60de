package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/feedopt/feedopt/pkg/catalog"

	_ "modernc.org/sqlite"
)

// Fixed record keys.
const (
	KeyLastOptimization = "last_optimization"
	KeyRawMaterials     = "raw_materials"
)

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS records (
  key         TEXT PRIMARY KEY,
  value       TEXT NOT NULL,
  updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
    `); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// Put overwrites the record stored under key.
func (d *DB) Put(ctx context.Context, key string, value []byte) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO records(key, value, updated_at) VALUES(?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`, key, string(value))
	return err
}

// Get returns the record stored under key. ok is false when there is none.
func (d *DB) Get(ctx context.Context, key string) (value []byte, ok bool, err error) {
	var s string
	err = d.sql.QueryRowContext(ctx, "SELECT value FROM records WHERE key = ?", key).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(s), true, nil
}

// SaveLastResult stores the raw optimization response verbatim, replacing
// the previous one.
func (d *DB) SaveLastResult(ctx context.Context, raw []byte) error {
	if err := d.Put(ctx, KeyLastOptimization, raw); err != nil {
		return fmt.Errorf("save last result: %w", err)
	}
	return nil
}

// LastResult returns the raw response saved by SaveLastResult.
func (d *DB) LastResult(ctx context.Context) ([]byte, bool, error) {
	return d.Get(ctx, KeyLastOptimization)
}

// LoadMaterials implements catalog.Persistence.
func (d *DB) LoadMaterials(ctx context.Context) ([]catalog.RawMaterial, error) {
	raw, ok, err := d.Get(ctx, KeyRawMaterials)
	if err != nil || !ok {
		return nil, err
	}
	var ms []catalog.RawMaterial
	if err := json.Unmarshal(raw, &ms); err != nil {
		return nil, fmt.Errorf("decode %s: %w", KeyRawMaterials, err)
	}
	return ms, nil
}

// SaveMaterials implements catalog.Persistence.
func (d *DB) SaveMaterials(ctx context.Context, ms []catalog.RawMaterial) error {
	if ms == nil {
		ms = []catalog.RawMaterial{}
	}
	raw, err := json.Marshal(ms)
	if err != nil {
		return err
	}
	return d.Put(ctx, KeyRawMaterials, raw)
}
