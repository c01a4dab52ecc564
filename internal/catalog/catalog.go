// Package catalog reads the notebook/note index shipped with a note export.
//
// The index is an SQLite database with two tables: notebook_attr (id, name,
// stack, ...) and note_attr (id, title, ..., notebook_uid). Columns are read
// by position because exports from different client versions add trailing
// columns.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/everzim/internal/apperr"
)

// Column positions inside the export tables.
const (
	notebookIDCol    = 0
	notebookNameCol  = 1
	notebookStackCol = 2
	noteNameCol      = 1
)

// DB is a read-only handle on an export index.
type DB struct {
	conn *sql.DB
}

// Open opens the SQLite index at path read-only.
func Open(path string) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("catalog: %s: %w", path, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("catalog: stat: %w", err)
	}
	conn, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("catalog: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
