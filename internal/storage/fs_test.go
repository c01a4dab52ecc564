package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func tempTree(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempTree(t)
	content := []byte("====== Hello\nWorld\n")
	if err := s.Write("note.txt", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("note.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempTree(t)
	if err := s.Write("Stack/Notebook/c.txt", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("Stack/Notebook/c.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestDelete(t *testing.T) {
	s := tempTree(t)
	_ = s.Write("del.html", []byte("bye"))
	if err := s.Delete("del.html"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, err := s.Read("del.html")
	if !IsNotExist(err) {
		t.Errorf("err = %v, want not-exist", err)
	}
}

func TestMove(t *testing.T) {
	s := tempTree(t)
	_ = s.Write("old.txt", []byte("data"))
	if err := s.Move("old.txt", "sub/new.txt"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	got, err := s.Read("sub/new.txt")
	if err != nil {
		t.Fatalf("Read after move: %v", err)
	}
	if string(got) != "data" {
		t.Errorf("content = %q", got)
	}
	if _, err := s.Read("old.txt"); err == nil {
		t.Error("old path should not exist")
	}
}

func TestListByExtension(t *testing.T) {
	s := tempTree(t)
	_ = s.Write("a.html", []byte("a"))
	_ = s.Write("nb/b.html", []byte("b"))
	_ = s.Write("nb/b.txt", []byte("not html"))
	_ = s.Write("nb/C.HTML", []byte("c"))

	items, err := s.List("", ".html")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("len = %d, want 3", len(items))
	}
	for _, it := range items {
		if it.Checksum == "" {
			t.Errorf("%s: empty checksum", it.Path)
		}
	}

	all, err := s.List("nb", "")
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len(all) = %d, want 3", len(all))
	}
}

func TestImportSkipsIdentical(t *testing.T) {
	s := tempTree(t)
	src := filepath.Join(t.TempDir(), "note.html")
	if err := os.WriteFile(src, []byte("<p>x</p>"), 0o644); err != nil {
		t.Fatal(err)
	}

	copied, err := s.Import(src, "uncategorized/note.html")
	if err != nil || !copied {
		t.Fatalf("first import = %v, %v", copied, err)
	}
	copied, err = s.Import(src, "uncategorized/note.html")
	if err != nil || copied {
		t.Fatalf("second import = %v, %v, want skipped", copied, err)
	}

	if err := os.WriteFile(src, []byte("<p>changed</p>"), 0o644); err != nil {
		t.Fatal(err)
	}
	copied, err = s.Import(src, "uncategorized/note.html")
	if err != nil || !copied {
		t.Fatalf("changed import = %v, %v", copied, err)
	}
	got, _ := s.Read("uncategorized/note.html")
	if string(got) != "<p>changed</p>" {
		t.Errorf("content = %q", got)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempTree(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.txt",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteNoLeftovers(t *testing.T) {
	s := tempTree(t)
	_ = s.Write("atomic.txt", []byte("original content"))

	updated := []byte("updated content")
	if err := s.Write("atomic.txt", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.txt")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.Root(), ".everzim-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_CreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "backup", "out")
	if _, err := NewFS(root); err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		t.Errorf("root not created: %v", err)
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "everzim-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	if _, err := NewFS(f.Name()); err == nil {
		t.Error("expected error when root is a file")
	}
}
