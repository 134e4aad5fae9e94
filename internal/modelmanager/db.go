// Package modelmanager implements the ModelManager boundary (§6.3):
// checksum-verified, atomically-renamed downloads of catalog entries, with
// local metadata persisted in SQLite (WAL mode, pure-Go driver, no CGO).
package modelmanager

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)

	"github.com/edgeveda/core/internal/domain"
)

// DB wraps a SQLite connection holding local model metadata.
type DB struct {
	db *sql.DB
}

// OpenDB creates or opens the SQLite database at dir/models.db, enabling
// WAL mode and a busy timeout suited to a single-writer mobile process.
func OpenDB(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "models.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

func (d *DB) Close() error { return d.db.Close() }

// Ping reports whether the underlying connection is still usable.
func (d *DB) Ping() error { return d.db.Ping() }

func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS models (
			id           TEXT PRIMARY KEY,
			sha256       TEXT NOT NULL,
			size_bytes   INTEGER NOT NULL,
			local_path   TEXT NOT NULL,
			format       TEXT NOT NULL DEFAULT '',
			quantization TEXT NOT NULL DEFAULT '',
			pulled_at    INTEGER NOT NULL,
			last_used    INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_models_used ON models(last_used)`,
	}
	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// Upsert implements domain.ModelStore.
func (d *DB) Upsert(info domain.ModelInfo) error {
	_, err := d.db.Exec(
		`INSERT INTO models (id, sha256, size_bytes, local_path, format, quantization, pulled_at, last_used)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			sha256=excluded.sha256,
			size_bytes=excluded.size_bytes,
			local_path=excluded.local_path,
			format=excluded.format,
			quantization=excluded.quantization,
			pulled_at=excluded.pulled_at,
			last_used=excluded.last_used`,
		info.ID, info.SHA256, info.SizeBytes, info.LocalPath,
		info.Format, info.Quantization, info.PulledAt.Unix(), nullableUnix(info.LastUsed),
	)
	return err
}

// Get implements domain.ModelStore.
func (d *DB) Get(id string) (*domain.ModelInfo, error) {
	row := d.db.QueryRow(
		`SELECT id, sha256, size_bytes, local_path, format, quantization, pulled_at, last_used
		 FROM models WHERE id = ?`, id,
	)
	return scanModel(row)
}

// List implements domain.ModelStore.
func (d *DB) List() ([]domain.ModelInfo, error) {
	rows, err := d.db.Query(
		`SELECT id, sha256, size_bytes, local_path, format, quantization, pulled_at, last_used
		 FROM models ORDER BY COALESCE(last_used, pulled_at) DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var models []domain.ModelInfo
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		if m != nil {
			models = append(models, *m)
		}
	}
	return models, rows.Err()
}

// Delete implements domain.ModelStore.
func (d *DB) Delete(id string) error {
	result, err := d.db.Exec(`DELETE FROM models WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrModelNotFound
	}
	return nil
}

// Touch implements domain.ModelStore.
func (d *DB) Touch(id string) error {
	_, err := d.db.Exec(`UPDATE models SET last_used = ? WHERE id = ?`, time.Now().Unix(), id)
	return err
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanModel(s scanner) (*domain.ModelInfo, error) {
	var m domain.ModelInfo
	var pulledAt int64
	var lastUsed sql.NullInt64

	err := s.Scan(&m.ID, &m.SHA256, &m.SizeBytes, &m.LocalPath,
		&m.Format, &m.Quantization, &pulledAt, &lastUsed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	m.PulledAt = time.Unix(pulledAt, 0)
	if lastUsed.Valid {
		m.LastUsed = time.Unix(lastUsed.Int64, 0)
	}
	return &m, nil
}

func nullableUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}
