// Package storage defines the output tree file-system abstraction.
package storage

import "github.com/starford/everzim/internal/models"

// Provider is the interface for output tree file operations. All paths are
// slash or OS separated and relative to the output root.
type Provider interface {
	// Root returns the absolute output root.
	Root() string
	// List returns metadata for every file under dir whose name ends in ext.
	List(dir, ext string) ([]models.NoteFile, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// Import copies the external file src to path. It reports false when
	// path already holds identical content.
	Import(src, path string) (bool, error)
}
