// Package models defines the domain types for everzim.
package models

import "time"

// Notebook is one row of the export's notebook index. Stack is empty for
// notebooks that do not belong to a stack.
type Notebook struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Stack string `json:"stack,omitempty"`
}

// NoteFile is a lightweight representation of a file in the output tree.
type NoteFile struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
