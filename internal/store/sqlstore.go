package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// nowUTC returns the current UTC time as an ISO 8601 string.
func nowUTC() string { return time.Now().UTC().Format(time.RFC3339) }

// nullStr converts a sql.NullString to a plain string (empty if null).
func nullStr(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullable maps "" to NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// currentSchemaVersion is the target schema version for this build.
const currentSchemaVersion = schemaVersionV2

// SqlStore implements Store with SQLite.
type SqlStore struct {
	db *sql.DB
}

// Open opens or creates a SQLite DB at path and runs migrations.
// Creates the parent directory if it does not exist.
func Open(path string) (*SqlStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SqlStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqlStore) migrate() error {
	var tableCount int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableCount == 0 {
		return s.freshInstall()
	}

	var v int
	err = s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		// schema_version exists but is empty: treat as v1.
		v = schemaVersionV1
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", v); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	switch v {
	case currentSchemaVersion:
		return nil
	case schemaVersionV1:
		return s.migrateV1ToV2()
	default:
		return fmt.Errorf("unknown schema version %d", v)
	}
}

func (s *SqlStore) freshInstall() error {
	if _, err := s.db.Exec(schemaV2); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", currentSchemaVersion); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}

// migrateV1ToV2 runs inside a transaction.
func (s *SqlStore) migrateV1ToV2() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(migrationV1ToV2); err != nil {
		return fmt.Errorf("v1→v2 migration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration tx: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SqlStore) Close() error {
	return s.db.Close()
}

// SaveModel implements Store. The original created_at survives a replace.
func (s *SqlStore) SaveModel(m *Model) error {
	if m == nil || m.Name == "" {
		return errors.New("save model: name is required")
	}
	now := nowUTC()
	_, err := s.db.Exec(
		`INSERT INTO models(name, description, data_url, data_sha256, layers, params, source, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			data_url    = excluded.data_url,
			data_sha256 = excluded.data_sha256,
			layers      = excluded.layers,
			params      = excluded.params,
			source      = excluded.source,
			updated_at  = excluded.updated_at`,
		m.Name, nullable(m.Description), nullable(m.DataURL), nullable(m.DataSHA256),
		m.Layers, m.Params, m.Source, now, now,
	)
	if err != nil {
		return fmt.Errorf("save model %q: %w", m.Name, err)
	}
	return nil
}

const modelColumns = `id, name, description, data_url, data_sha256, layers, params, source, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModel(r rowScanner) (*Model, error) {
	var m Model
	var desc, url, sum sql.NullString
	if err := r.Scan(&m.ID, &m.Name, &desc, &url, &sum, &m.Layers, &m.Params, &m.Source, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Description = nullStr(desc)
	m.DataURL = nullStr(url)
	m.DataSHA256 = nullStr(sum)
	return &m, nil
}

// GetModel implements Store. Returns (nil, nil) if no model has that name.
func (s *SqlStore) GetModel(name string) (*Model, error) {
	m, err := scanModel(s.db.QueryRow("SELECT "+modelColumns+" FROM models WHERE name = ?", name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get model %q: %w", name, err)
	}
	return m, nil
}

// ListModels implements Store.
func (s *SqlStore) ListModels() ([]*Model, error) {
	rows, err := s.db.Query("SELECT " + modelColumns + " FROM models ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var out []*Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteModel implements Store.
func (s *SqlStore) DeleteModel(name string) error {
	res, err := s.db.Exec("DELETE FROM models WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete model %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete model %q: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("delete model %q: %w", name, ErrNotFound)
	}
	return nil
}

// RecordFetch implements Store. An empty VerifiedAt is stamped with the current time.
func (s *SqlStore) RecordFetch(f *Fetch) (int64, error) {
	if f == nil {
		return 0, errors.New("record fetch: fetch is nil")
	}
	at := f.VerifiedAt
	if at == "" {
		at = nowUTC()
	}
	res, err := s.db.Exec(
		"INSERT INTO fetches(url, sha256, path, size, verified_at) VALUES(?, ?, ?, ?, ?)",
		f.URL, f.SHA256, f.Path, f.Size, at,
	)
	if err != nil {
		return 0, fmt.Errorf("insert fetch: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// LastFetch implements Store. Returns (nil, nil) if the digest was never fetched.
func (s *SqlStore) LastFetch(sha256 string) (*Fetch, error) {
	var f Fetch
	err := s.db.QueryRow(
		`SELECT id, url, sha256, path, size, verified_at FROM fetches
		 WHERE sha256 = ? ORDER BY id DESC LIMIT 1`, sha256,
	).Scan(&f.ID, &f.URL, &f.SHA256, &f.Path, &f.Size, &f.VerifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last fetch: %w", err)
	}
	return &f, nil
}
