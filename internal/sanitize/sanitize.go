// Package sanitize replaces characters that are unsafe in target file system
// paths. Full mode is for note titles, file names and directory names;
// Trailing mode is for asset paths that must keep "/" as a separator.
package sanitize

import (
	"fmt"
	"strings"

	"github.com/starford/everzim/internal/apperr"
)

// Mode selects the forbidden character set.
type Mode int

const (
	// ModeFull replaces "/" with "&" and every other forbidden character with "_".
	ModeFull Mode = iota
	// ModeTrailing leaves "/" alone and replaces the rest of the forbidden set.
	ModeTrailing
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeTrailing:
		return "trailing"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode maps "full" and "trailing" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "":
		return ModeFull, nil
	case "trailing":
		return ModeTrailing, nil
	default:
		return 0, fmt.Errorf("sanitize: unknown mode %q: %w", s, apperr.ErrInvalidInput)
	}
}

// Replacement is written in place of every forbidden character.
const Replacement = '_'

// The sets must never contain Replacement or "&", otherwise sanitizing would
// stop being idempotent.
const (
	fullForbidden     = "?#/\\*\"<>|% "
	trailingForbidden = "?#\\*\"<>|% "
)

// Forbidden returns the characters replaced in mode m.
func Forbidden(m Mode) string {
	if m == ModeTrailing {
		return trailingForbidden
	}
	return fullForbidden
}

// Full sanitizes a title, file name or directory name.
func Full(s string) string {
	return replace(strings.ReplaceAll(s, "/", "&"), fullForbidden)
}

// Trailing sanitizes a slash-separated asset path.
func Trailing(s string) string {
	return replace(s, trailingForbidden)
}

// Sanitize dispatches on mode. An unknown mode is a caller bug and is
// reported as apperr.ErrInvalidInput.
func Sanitize(s string, mode Mode) (string, error) {
	switch mode {
	case ModeFull:
		return Full(s), nil
	case ModeTrailing:
		return Trailing(s), nil
	default:
		return "", fmt.Errorf("sanitize: %s: %w", mode, apperr.ErrInvalidInput)
	}
}

// Segments sanitizes every segment of a slash path. Empty segments are kept,
// so leading and doubled slashes survive.
func Segments(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = Trailing(part)
	}
	return strings.Join(parts, "/")
}

// RenameExtension swaps a trailing from extension, matched in any case, for
// to. Names that do not end in from are returned unchanged.
func RenameExtension(name, from, to string) string {
	if !HasExtension(name, from) {
		return name
	}
	return name[:len(name)-len(from)] + to
}

// HasExtension reports whether name ends in ext, ignoring case.
func HasExtension(name, ext string) bool {
	return len(name) >= len(ext) && strings.EqualFold(name[len(name)-len(ext):], ext)
}

// NoteFilename is the output file name of an exported .html note.
func NoteFilename(name string) string {
	return RenameExtension(Full(name), ".html", ".txt")
}

func replace(s, forbidden string) string {
	if !strings.ContainsAny(s, forbidden) {
		return s
	}
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(forbidden, r) {
			return Replacement
		}
		return r
	}, s)
}
