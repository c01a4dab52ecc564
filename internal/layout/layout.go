// Package layout files exported notes into a notebook/stack directory tree.
package layout

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/everzim/internal/models"
	"github.com/starford/everzim/internal/sanitize"
	"github.com/starford/everzim/internal/storage"
)

// DefaultUncategorized receives everything no notebook claims.
const DefaultUncategorized = "uncategorized"

// Catalog is the part of the export index the builder reads.
type Catalog interface {
	Notebooks() ([]models.Notebook, error)
	NoteNames(notebookID string) (map[string]struct{}, error)
}

// Result counts what a Build did.
type Result struct {
	Notebooks     int
	Filed         int
	Uncategorized int
	Unchanged     int
}

// Builder copies an export directory into the output tree.
type Builder struct {
	exportDir     string
	store         storage.Provider
	catalog       Catalog
	logger        *slog.Logger
	uncategorized string
}

// Option configures a Builder.
type Option func(*Builder)

// WithUncategorized overrides the directory for unclaimed entries.
func WithUncategorized(dir string) Option {
	return func(b *Builder) {
		b.uncategorized = strings.Trim(dir, "/")
	}
}

// New returns a Builder. A nil catalog files everything as uncategorized.
func New(exportDir string, store storage.Provider, catalog Catalog, logger *slog.Logger, opts ...Option) *Builder {
	b := &Builder{
		exportDir:     exportDir,
		store:         store,
		catalog:       catalog,
		logger:        logger,
		uncategorized: DefaultUncategorized,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type entry struct {
	raw     string // name inside the export dir
	decoded string // percent-decoded name
	isDir   bool
}

func (e entry) stem() string {
	if i := strings.LastIndex(e.decoded, "."); i > 0 {
		return e.decoded[:i]
	}
	return ""
}

// Build files every top-level export entry whose name stem is a note of a
// notebook into that notebook's directory, then copies all remaining
// entries, recursively, under the uncategorized directory.
func (b *Builder) Build(ctx context.Context) (Result, error) {
	var res Result

	entries, err := b.readExport()
	if err != nil {
		return res, err
	}

	claimed := make(map[string]struct{})
	if b.catalog != nil {
		notebooks, err := b.catalog.Notebooks()
		if err != nil {
			return res, fmt.Errorf("layout: %w", err)
		}
		for _, nb := range notebooks {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			dir := NotebookDir(nb)
			if dir == "" {
				continue
			}
			notes, err := b.catalog.NoteNames(nb.ID)
			if err != nil {
				return res, fmt.Errorf("layout: %w", err)
			}
			for _, e := range entries {
				if e.isDir {
					continue
				}
				if _, ok := notes[e.stem()]; !ok {
					continue
				}
				if err := b.importFile(filepath.Join(b.exportDir, e.raw), path.Join(dir, sanitize.Full(e.decoded)), &res); err != nil {
					return res, err
				}
				claimed[e.raw] = struct{}{}
				res.Filed++
			}
			res.Notebooks++
			b.logger.Info("layout: notebook organized",
				slog.String("notebook", nb.Name),
				slog.String("dir", dir),
				slog.Int("notebooks", res.Notebooks))
		}
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, ok := claimed[e.raw]; ok {
			continue
		}
		src := filepath.Join(b.exportDir, e.raw)
		if !e.isDir {
			if err := b.importFile(src, b.target(e.decoded), &res); err != nil {
				return res, err
			}
			res.Uncategorized++
			continue
		}
		if err := b.importDir(ctx, src, e.decoded, &res); err != nil {
			return res, err
		}
	}
	b.logger.Info("layout: uncategorized copied", slog.Int("entries", res.Uncategorized))
	return res, nil
}

// NotebookDir is the output directory of a notebook: stack/notebook,
// notebook, or stack when the notebook has no name.
func NotebookDir(nb models.Notebook) string {
	stack := sanitize.Full(nb.Stack)
	name := sanitize.Full(nb.Name)
	switch {
	case stack != "" && name != "":
		return stack + "/" + name
	case name != "":
		return name
	default:
		return stack
	}
}

func (b *Builder) readExport() ([]entry, error) {
	des, err := os.ReadDir(b.exportDir)
	if err != nil {
		return nil, fmt.Errorf("layout: read export dir: %w", err)
	}
	out := make([]entry, 0, len(des))
	for _, de := range des {
		out = append(out, entry{raw: de.Name(), decoded: decode(de.Name()), isDir: de.IsDir()})
	}
	return out, nil
}

func (b *Builder) importDir(ctx context.Context, src, decoded string, res *Result) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		for i, part := range parts {
			parts[i] = decode(part)
		}
		if err := b.importFile(p, b.target(decoded+"/"+strings.Join(parts, "/")), res); err != nil {
			return err
		}
		res.Uncategorized++
		return nil
	})
}

func (b *Builder) target(rel string) string {
	rel = sanitize.Segments(rel)
	if b.uncategorized == "" {
		return rel
	}
	return b.uncategorized + "/" + rel
}

func (b *Builder) importFile(src, dst string, res *Result) error {
	copied, err := b.store.Import(src, dst)
	if err != nil {
		return fmt.Errorf("layout: copy %s: %w", src, err)
	}
	if !copied {
		res.Unchanged++
	}
	b.logger.Debug("layout: copied", slog.String("path", dst), slog.Bool("changed", copied))
	return nil
}

func decode(name string) string {
	if d, err := url.PathUnescape(name); err == nil {
		return d
	}
	return name
}
