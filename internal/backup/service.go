// Package backup runs an export conversion: file notes into notebook
// directories, then turn every .html note into a text note.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/starford/everzim/internal/apperr"
	"github.com/starford/everzim/internal/assets"
	"github.com/starford/everzim/internal/convert"
	"github.com/starford/everzim/internal/layout"
	"github.com/starford/everzim/internal/markup"
	"github.com/starford/everzim/internal/parser"
	"github.com/starford/everzim/internal/sanitize"
	"github.com/starford/everzim/internal/storage"
)

// Policy decides what happens when a note cannot be processed.
type Policy string

const (
	PolicySkip   Policy = "skip"
	PolicyAbort  Policy = "abort"
	PolicyPrompt Policy = "prompt"
)

// Event kinds passed to an EventFunc.
const (
	EventConverted = "converted"
	EventFailed    = "failed"
)

// progressEvery is how many converted notes pass between progress logs.
const progressEvery = 50

// EventFunc is called after each note is converted or fails.
type EventFunc func(kind, path string)

// RunObserver follows the conversion step of each Run.
type RunObserver interface {
	BeginRun(total int)
	EndRun(stats Stats, err error)
}

// Options selects the steps of a run.
type Options struct {
	Convert bool
	Zim     bool
	Workers int
	OnError Policy
}

// Stats summarises a run.
type Stats struct {
	Organized     int
	Converted     int
	Failed        int
	MissingAssets int
	Fetched       int
}

// Service coordinates layout, conversion and storage.
type Service struct {
	store    storage.Provider
	conv     *convert.Converter
	rw       *markup.Rewriter
	layout   *layout.Builder
	fetcher  *assets.Fetcher
	opts     Options
	logger   *slog.Logger
	prompter Prompter
	onEvent  EventFunc
	observer RunObserver

	promptMu sync.Mutex
	missing  atomic.Int64
	fetched  atomic.Int64
}

// ServiceOption configures optional collaborators.
type ServiceOption func(*Service)

// WithLayout organizes the export with b before converting.
func WithLayout(b *layout.Builder) ServiceOption {
	return func(s *Service) { s.layout = b }
}

// WithFetcher downloads remote images of Zim pages into the output tree
// with f and embeds the local copies.
func WithFetcher(f *assets.Fetcher) ServiceOption {
	return func(s *Service) { s.fetcher = f }
}

// WithPrompter sets the prompter used by PolicyPrompt.
func WithPrompter(p Prompter) ServiceOption {
	return func(s *Service) { s.prompter = p }
}

// WithEvents registers a callback for per-note events.
func WithEvents(fn EventFunc) ServiceOption {
	return func(s *Service) { s.onEvent = fn }
}

// WithRunObserver reports the start and end of every Run to o.
func WithRunObserver(o RunObserver) ServiceOption {
	return func(s *Service) { s.observer = o }
}

// NewService creates a backup service writing into store.
func NewService(store storage.Provider, conv *convert.Converter, rw *markup.Rewriter, logger *slog.Logger, opts Options, svcOpts ...ServiceOption) *Service {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.OnError == "" {
		opts.OnError = PolicySkip
	}
	s := &Service{
		store:  store,
		conv:   conv,
		rw:     rw,
		opts:   opts,
		logger: logger,
	}
	for _, o := range svcOpts {
		o(s)
	}
	if s.prompter == nil {
		s.prompter = NewStdinPrompter()
	}
	return s
}

// Run organizes the export (when a layout is set) and converts every .html
// note under the output root.
func (s *Service) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	if s.layout != nil {
		s.logger.Info("Organizing notes by directory (based on notebooks & stacks)")
		res, err := s.layout.Build(ctx)
		if err != nil {
			return stats, fmt.Errorf("backup: organize: %w", err)
		}
		stats.Organized = res.Filed + res.Uncategorized
	}

	if !s.opts.Convert && !s.opts.Zim {
		return stats, nil
	}

	s.logger.Info("Converting note syntax", slog.Bool("zim", s.opts.Zim), slog.Int("workers", s.opts.Workers))
	files, err := s.store.List("", ".html")
	if err != nil {
		return stats, fmt.Errorf("backup: list notes: %w", err)
	}

	if s.observer != nil {
		s.observer.BeginRun(len(files))
	}

	var converted, failed atomic.Int64
	missingBefore, fetchedBefore := s.missing.Load(), s.fetched.Load()
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	for _, f := range files {
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if _, err := s.ConvertFile(gCtx, f.Path); err != nil {
				if cancelled(gCtx, err) {
					return nil
				}
				failed.Add(1)
				return s.fail("convert", f.Path, err)
			}
			if n := converted.Add(1); n%progressEvery == 0 {
				s.logger.Info("backup: progress", slog.Int64("converted", n), slog.Int("total", len(files)))
			}
			return nil
		})
	}

	err = g.Wait()
	stats.Converted = int(converted.Load())
	stats.Failed = int(failed.Load())
	stats.MissingAssets = int(s.missing.Load() - missingBefore)
	stats.Fetched = int(s.fetched.Load() - fetchedBefore)
	if err == nil {
		err = ctx.Err()
	}
	if s.observer != nil {
		s.observer.EndRun(stats, err)
	}
	if err != nil {
		return stats, err
	}

	s.logger.Info("Process complete",
		slog.Int("organized", stats.Organized),
		slog.Int("converted", stats.Converted),
		slog.Int("failed", stats.Failed),
		slog.Int("missing_assets", stats.MissingAssets),
		slog.Int("fetched_images", stats.Fetched))
	return stats, nil
}

// ConvertFile converts the .html note at rel and replaces it with its text
// version. It returns the path of the written note.
func (s *Service) ConvertFile(ctx context.Context, rel string) (string, error) {
	out, err := s.convertFile(ctx, rel)
	if err != nil {
		if !cancelled(ctx, err) {
			s.emit(EventFailed, rel)
		}
		return "", err
	}
	s.logger.Debug("backup: converted", slog.String("path", rel), slog.String("output", out))
	s.emit(EventConverted, out)
	return out, nil
}

// Import stores an .html note at rel and converts it.
func (s *Service) Import(ctx context.Context, rel string, html []byte) (string, error) {
	if err := s.store.Write(rel, html); err != nil {
		return "", fmt.Errorf("backup: import %s: %w", rel, err)
	}
	return s.ConvertFile(ctx, rel)
}

func (s *Service) convertFile(ctx context.Context, rel string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	out := path.Join(path.Dir(rel), sanitize.NoteFilename(path.Base(rel)))
	if out == rel {
		return "", fmt.Errorf("backup: %s is not an .html note: %w", rel, apperr.ErrInvalidInput)
	}
	data, err := s.store.Read(rel)
	if err != nil {
		return "", err
	}
	text, err := s.Render(string(data), s.opts.Zim)
	if err != nil {
		return "", err
	}
	if s.opts.Zim {
		if s.fetcher != nil {
			text = s.localizeImages(ctx, rel, text)
		}
		s.checkEmbeds(rel, text)
	}

	if err := s.store.Write(out, []byte(text)); err != nil {
		return "", err
	}
	if err := s.store.Delete(rel); err != nil {
		return "", err
	}
	return out, nil
}

// Render converts one HTML note to markdown and, when zim is set, rewrites
// it into Zim syntax.
func (s *Service) Render(html string, zim bool) (string, error) {
	text, err := s.conv.Convert(html)
	if err != nil {
		return "", err
	}
	if zim {
		text = s.rw.Rewrite(text)
	}
	return text, nil
}

// Rewriter returns the markup rewriter used for Zim output.
func (s *Service) Rewriter() *markup.Rewriter { return s.rw }

// Store returns the output tree.
func (s *Service) Store() storage.Provider { return s.store }

// localizeImages saves the remote images a page embeds into the asset
// directory and points the embeds at the copies. Images that cannot be
// fetched stay remote.
func (s *Service) localizeImages(ctx context.Context, rel, page string) string {
	for _, src := range parser.Parse([]byte(page)).Embeds {
		if !strings.Contains(src, "://") {
			continue
		}
		img, err := s.fetcher.Fetch(ctx, src, "")
		if err != nil {
			s.logger.Warn("backup: fetch image failed",
				slog.String("path", rel),
				slog.String("image", src),
				slog.String("error", err.Error()))
			continue
		}
		local := s.rw.AssetPath(assets.FetchedDir + "/" + img.Name)
		page = strings.ReplaceAll(page, "{{"+s.rw.AssetPath(src)+"|", "{{"+local+"|")
		if !img.Reused {
			s.fetched.Add(1)
		}
	}
	return page
}

// checkEmbeds warns about images a page embeds from the output tree that
// are not there.
func (s *Service) checkEmbeds(rel, page string) {
	root := s.store.Root() + string(os.PathSeparator)
	for _, p := range parser.Parse([]byte(page)).Embeds {
		abs := filepath.FromSlash(p)
		if !strings.HasPrefix(abs, root) {
			continue
		}
		if _, err := os.Stat(abs); err == nil {
			continue
		}
		s.missing.Add(1)
		s.logger.Warn("backup: embedded image missing", slog.String("path", rel), slog.String("image", p))
	}
}

// fail logs a failed note and applies the error policy. A nil return means
// the run continues.
func (s *Service) fail(op, p string, err error) error {
	s.logger.Error("backup: "+op+" failed", slog.String("path", p), slog.String("error", err.Error()))

	switch s.opts.OnError {
	case PolicyAbort:
		return fmt.Errorf("backup: %s %s: %w", op, p, err)
	case PolicyPrompt:
		s.promptMu.Lock()
		defer s.promptMu.Unlock()
		ok, perr := s.prompter.Confirm(fmt.Sprintf("Cannot %s: %s\nError: %v\nSkip & continue? y/n: ", op, p, err))
		if perr != nil {
			return fmt.Errorf("backup: prompt: %w", perr)
		}
		if !ok {
			return fmt.Errorf("backup: %s %s: %w", op, p, apperr.ErrAborted)
		}
		return nil
	default:
		return nil
	}
}

// cancelled reports whether err only says that ctx was cancelled, as happens
// to notes still in flight after another one aborted the run.
func cancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, context.Canceled)
}

func (s *Service) emit(kind, p string) {
	if s.onEvent != nil {
		s.onEvent(kind, p)
	}
}
