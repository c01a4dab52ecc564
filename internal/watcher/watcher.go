// Package watcher converts .html notes that appear under a directory while
// the server runs.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Debounce is how long the watcher waits after the last event before it
// hands pending notes to the handler.
const Debounce = 200 * time.Millisecond

// NoteExt is the extension of notes the watcher reacts to.
const NoteExt = ".html"

// HandleFunc receives the slash-separated path of a note relative to the
// watched root.
type HandleFunc func(rel string)

// Watch starts an fsnotify watcher on root and calls handle for every .html
// note created or written under it, until ctx is cancelled. Bursts of
// events are coalesced; each note is handed over once per burst and only if
// it still exists.
//
// New directories created at runtime are added to the watch list and any
// notes already inside them are picked up.
func Watch(ctx context.Context, root string, logger *slog.Logger, handle HandleFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	pending := make(map[string]struct{})
	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	schedule := func(abs string) {
		rel, relErr := filepath.Rel(root, abs)
		if relErr != nil || strings.HasPrefix(rel, "..") {
			return
		}
		pending[filepath.ToSlash(rel)] = struct{}{}
		if flushTimer == nil {
			flushTimer = time.NewTimer(Debounce)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(Debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-flushCh:
			batch := make([]string, 0, len(pending))
			for rel := range pending {
				batch = append(batch, rel)
			}
			clear(pending)
			sort.Strings(batch)
			for _, rel := range batch {
				if _, statErr := os.Stat(filepath.Join(root, filepath.FromSlash(rel))); statErr != nil {
					continue
				}
				logger.Debug("watcher: note ready", slog.String("path", rel))
				handle(rel)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
					for _, p := range notesIn(ev.Name) {
						schedule(p)
					}
					continue
				}
			}

			if !isNote(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				schedule(ev.Name)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func isNote(p string) bool {
	return strings.EqualFold(filepath.Ext(p), NoteExt)
}

// notesIn lists the notes already present in a newly created directory.
func notesIn(dir string) []string {
	var out []string
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isNote(p) {
			return nil
		}
		out = append(out, p)
		return nil
	})
	return out
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(p)
		}
		return nil
	})
}
