package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/everzim/internal/backup"
	"github.com/starford/everzim/internal/convert"
	"github.com/starford/everzim/internal/markup"
	"github.com/starford/everzim/internal/storage"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) handle(rel string) {
	r.mu.Lock()
	r.paths = append(r.paths, rel)
	r.mu.Unlock()
}

func (r *recorder) count(rel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.paths {
		if p == rel {
			n++
		}
	}
	return n
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startWatch(t *testing.T, root string, rec *recorder) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go Watch(ctx, root, quietLogger(), rec.handle)
	time.Sleep(100 * time.Millisecond)
}

func TestWatcher_NewNoteHandled(t *testing.T) {
	root := t.TempDir()
	rec := &recorder{}
	startWatch(t, root, rec)

	_ = os.WriteFile(filepath.Join(root, "new.html"), []byte("<p>new</p>"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.count("new.html") > 0
	}, "new note not handed to handler")
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	rec := &recorder{}
	startWatch(t, root, rec)

	_ = os.WriteFile(filepath.Join(root, "note.txt"), []byte("text"), 0o644)
	_ = os.WriteFile(filepath.Join(root, "marker.html"), []byte("<p/>"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.count("marker.html") > 0
	}, "marker note not handled")
	if rec.count("note.txt") != 0 {
		t.Error("non-html file handed to handler")
	}
}

func TestWatcher_BurstCoalesced(t *testing.T) {
	root := t.TempDir()
	rec := &recorder{}
	startWatch(t, root, rec)

	p := filepath.Join(root, "busy.html")
	for i := 0; i < 5; i++ {
		_ = os.WriteFile(p, []byte{byte('a' + i)}, 0o644)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.count("busy.html") > 0
	}, "busy note not handled")
	time.Sleep(2 * Debounce)
	if n := rec.count("busy.html"); n != 1 {
		t.Errorf("handled %d times, want 1", n)
	}
}

func TestWatcher_NewDirWatched(t *testing.T) {
	root := t.TempDir()
	rec := &recorder{}
	startWatch(t, root, rec)

	sub := filepath.Join(root, "Stack", "Notebook")
	_ = os.MkdirAll(sub, 0o755)
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(sub, "deep.html"), []byte("<p>deep</p>"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.count("Stack/Notebook/deep.html") > 0
	}, "note in new subdir not handled")
}

func TestWatcher_RemovedBeforeFlushSkipped(t *testing.T) {
	root := t.TempDir()
	rec := &recorder{}
	startWatch(t, root, rec)

	p := filepath.Join(root, "gone.html")
	_ = os.WriteFile(p, []byte("x"), 0o644)
	_ = os.Remove(p)
	_ = os.WriteFile(filepath.Join(root, "kept.html"), []byte("x"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.count("kept.html") > 0
	}, "kept note not handled")
	if rec.count("gone.html") != 0 {
		t.Error("removed note handed to handler")
	}
}

func TestWatcher_UpperCaseNoteConvertedOnce(t *testing.T) {
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := backup.NewService(store, convert.New(), markup.New(store.Root()), logger, backup.Options{Convert: true, Zim: true})

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go Watch(ctx, store.Root(), quietLogger(), func(rel string) {
		calls.Add(1)
		_, _ = svc.ConvertFile(ctx, rel)
	})
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(store.Root(), "Note.HTML"), []byte("<p>a [b] c</p>"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := store.Read("Note.txt")
		return err == nil
	}, "upper case note not converted")
	time.Sleep(5 * Debounce)

	if n := calls.Load(); n != 1 {
		t.Errorf("handled %d times, want 1", n)
	}
	if _, err := store.Read("Note.HTML"); !storage.IsNotExist(err) {
		t.Errorf("source should be removed, err = %v", err)
	}
}

func TestWatch_MissingRoot(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope"), quietLogger(), func(string) {})
	if err == nil {
		t.Error("expected error for missing root")
	}
}
