// Package sqlitestore persists the version graph in SQLite.
//
// A DB implements both version.Persister and version.Source, so a Store can
// be rebuilt from disk with version.Load and then keep writing through:
//
//	db, err := sqlitestore.Open(path)
//	store, err := version.Load(db, version.WithPersister(db))
package sqlitestore

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dshills/docforge/internal/version"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

//go:embed pragmas.sql
var pragmasSQL string

// ErrFileNotFound is returned when a file row does not exist.
var ErrFileNotFound = errors.New("sqlitestore: file not found")

// DB wraps a SQLite connection holding a version graph.
type DB struct {
	conn *sql.DB
	mu   sync.Mutex
	path string
}

// Open opens or creates the database at path.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	// a single connection keeps pragmas and transactions on one handle
	conn.SetMaxOpenConns(1)

	for _, pragma := range strings.Split(pragmasSQL, "\n") {
		pragma = strings.TrimSpace(pragma)
		if pragma == "" || strings.HasPrefix(pragma, "--") {
			continue
		}
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{conn: conn, path: path}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// SaveVersion implements version.Persister.
func (db *DB) SaveVersion(v *version.Version, state version.FileState) error {
	pages, err := json.Marshal(v.Pages)
	if err != nil {
		return fmt.Errorf("encoding pages: %w", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertFile(tx, state); err != nil {
		return err
	}
	_, err = tx.Exec(
		`INSERT INTO versions (id, file_id, parent_id, seq, created_at, pages, handle)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.FileID, v.ParentID, v.Seq, v.Created.UnixNano(), pages, string(v.Handle),
	)
	if err != nil {
		return fmt.Errorf("inserting version: %w", err)
	}
	return tx.Commit()
}

// SaveStates implements version.Persister.
func (db *DB) SaveStates(states []version.FileState) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, st := range states {
		if err := upsertFile(tx, st); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsertFile(tx *sql.Tx, st version.FileState) error {
	_, err := tx.Exec(
		`INSERT INTO files (id, display_name, pinned, active, leaf_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   display_name = excluded.display_name,
		   pinned = excluded.pinned,
		   active = excluded.active,
		   leaf_id = excluded.leaf_id`,
		st.FileID, st.DisplayName, boolToInt(st.Pinned), boolToInt(st.Active), st.LeafID, st.Created.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving file %s: %w", st.FileID, err)
	}
	return nil
}

// LoadFiles implements version.Source.
func (db *DB) LoadFiles() ([]version.FileState, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(
		`SELECT id, display_name, pinned, active, leaf_id, created_at
		 FROM files ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying files: %w", err)
	}
	defer rows.Close()

	var out []version.FileState
	for rows.Next() {
		st, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// LoadFile returns a single file state.
func (db *DB) LoadFile(fileID string) (version.FileState, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	row := db.conn.QueryRow(
		`SELECT id, display_name, pinned, active, leaf_id, created_at FROM files WHERE id = ?`,
		fileID,
	)
	st, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return version.FileState{}, ErrFileNotFound
	}
	return st, err
}

// LoadVersions implements version.Source.
func (db *DB) LoadVersions(fileID string) ([]*version.Version, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(
		`SELECT id, file_id, parent_id, seq, created_at, pages, handle
		 FROM versions WHERE file_id = ? ORDER BY seq`,
		fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying versions: %w", err)
	}
	defer rows.Close()

	var out []*version.Version
	for rows.Next() {
		var (
			v       version.Version
			created int64
			pages   []byte
			handle  string
		)
		if err := rows.Scan(&v.ID, &v.FileID, &v.ParentID, &v.Seq, &created, &pages, &handle); err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		if err := json.Unmarshal(pages, &v.Pages); err != nil {
			return nil, fmt.Errorf("decoding pages of %s: %w", v.ID, err)
		}
		v.Created = time.Unix(0, created)
		v.Handle = version.ContentHandle(handle)
		out = append(out, &v)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (version.FileState, error) {
	var (
		st      version.FileState
		pinned  int
		active  int
		created int64
	)
	if err := s.Scan(&st.FileID, &st.DisplayName, &pinned, &active, &st.LeafID, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return st, err
		}
		return st, fmt.Errorf("scanning file: %w", err)
	}
	st.Pinned = pinned != 0
	st.Active = active != 0
	st.Created = time.Unix(0, created)
	return st, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
