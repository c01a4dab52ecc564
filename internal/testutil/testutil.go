// Package testutil provides shared test helpers for export fixtures.
package testutil

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/everzim/internal/storage"
)

// ExportSchemaSQL mirrors the two index tables read by the catalog.
const ExportSchemaSQL = `
CREATE TABLE notebook_attr (
	uid   INTEGER PRIMARY KEY,
	name  TEXT,
	stack TEXT
);

CREATE TABLE note_attr (
	uid          INTEGER PRIMARY KEY,
	title        TEXT,
	notebook_uid INTEGER
);
`

// Notebook is a fixture notebook with the note stems filed in it.
type Notebook struct {
	ID    int
	Name  string
	Stack string
	Notes []string
}

// TestIndex writes an export index database and returns its path.
func TestIndex(t *testing.T, notebooks ...Notebook) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.exb")
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Exec(ExportSchemaSQL); err != nil {
		t.Fatalf("schema: %v", err)
	}
	for _, nb := range notebooks {
		var stack any
		if nb.Stack != "" {
			stack = nb.Stack
		}
		if _, err := conn.Exec(`INSERT INTO notebook_attr (uid, name, stack) VALUES (?, ?, ?)`, nb.ID, nb.Name, stack); err != nil {
			t.Fatalf("insert notebook: %v", err)
		}
		for _, n := range nb.Notes {
			if _, err := conn.Exec(`INSERT INTO note_attr (title, notebook_uid) VALUES (?, ?)`, n, nb.ID); err != nil {
				t.Fatalf("insert note: %v", err)
			}
		}
	}
	return path
}

// TestExport creates an export directory holding files (relative path →
// content) and returns it.
func TestExport(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// TestOutput creates a temporary output directory with a storage.FS.
func TestOutput(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}
