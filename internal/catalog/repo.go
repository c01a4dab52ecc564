package catalog

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/starford/everzim/internal/models"
)

// Notebooks returns every notebook in the index.
func (db *DB) Notebooks() ([]models.Notebook, error) {
	rows, err := db.conn.Query(`SELECT * FROM notebook_attr`)
	if err != nil {
		return nil, fmt.Errorf("catalog: notebooks: %w", err)
	}
	defer rows.Close()

	var out []models.Notebook
	err = scanRows(rows, notebookStackCol+1, func(vals []any) {
		out = append(out, models.Notebook{
			ID:    asString(vals[notebookIDCol]),
			Name:  asString(vals[notebookNameCol]),
			Stack: asString(vals[notebookStackCol]),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: notebooks: %w", err)
	}
	return out, nil
}

// NoteNames returns the file stems of the notes filed in notebookID.
func (db *DB) NoteNames(notebookID string) (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT * FROM note_attr WHERE notebook_uid = ?`, notebookID)
	if err != nil {
		return nil, fmt.Errorf("catalog: notes of %s: %w", notebookID, err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	err = scanRows(rows, noteNameCol+1, func(vals []any) {
		if name := asString(vals[noteNameCol]); name != "" {
			out[name] = struct{}{}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: notes of %s: %w", notebookID, err)
	}
	return out, nil
}

// scanRows scans each row into a slice of raw values and hands it to fn.
// Rows narrower than minCols fail the whole scan.
func scanRows(rows *sql.Rows, minCols int, fn func([]any)) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	if len(cols) < minCols {
		return fmt.Errorf("expected at least %d columns, got %d", minCols, len(cols))
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		fn(vals)
	}
	return rows.Err()
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
