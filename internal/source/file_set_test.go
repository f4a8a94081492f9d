package source

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileSetVersioning(t *testing.T) {
	fs := NewFileSet()

	id1 := fs.Add("moves.toml", []byte("a = 1"), 0)
	if id1 != 1 {
		t.Fatalf("expected first FileID to be 1 (0 is reserved), got %d", id1)
	}
	id2 := fs.Add("moves.toml", []byte("a = 2"), 0)
	if id2 != 2 {
		t.Fatalf("expected second FileID to be 2, got %d", id2)
	}
	latest, ok := fs.GetLatest("moves.toml")
	if !ok || latest != id2 {
		t.Fatalf("GetLatest = %d,%v; want %d,true", latest, ok, id2)
	}
	if got := string(fs.Get(id1).Content); got != "a = 1" {
		t.Fatalf("old version content = %q", got)
	}
	if fs.Len() != 2 {
		t.Fatalf("Len = %d, want 2", fs.Len())
	}
}

func TestFileSetBuiltinSlot(t *testing.T) {
	fs := NewFileSet()
	f := fs.Get(NoFileID)
	if f == nil || f.Flags&FileVirtual == 0 {
		t.Fatalf("builtin slot missing or not virtual: %+v", f)
	}
	if fs.Get(FileID(42)) != nil {
		t.Fatalf("expected nil for unknown id")
	}
}

func TestFileSetLoadNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crlf.yaml")
	content := []byte("\xEF\xBB\xBFname: x\r\nops: []\r\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	fs := NewFileSetWithBase(dir)
	id, err := fs.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	f := fs.Get(id)
	if string(f.Content) != "name: x\nops: []\n" {
		t.Fatalf("unexpected normalized content %q", f.Content)
	}
	if f.Flags&FileHadBOM == 0 || f.Flags&FileNormalizedCRLF == 0 {
		t.Fatalf("expected BOM and CRLF flags, got %08b", f.Flags)
	}
	if got := f.GetLine(2); got != "ops: []" {
		t.Fatalf("GetLine(2) = %q", got)
	}
	if got := fs.DisplayPath(id); got != "crlf.yaml" {
		t.Fatalf("DisplayPath = %q, want crlf.yaml", got)
	}
}

func TestFileSetLoadMissing(t *testing.T) {
	fs := NewFileSet()
	if _, err := fs.Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestGetLineBounds(t *testing.T) {
	f := &File{Content: []byte("one\ntwo"), LineIdx: buildLineIndex([]byte("one\ntwo"))}
	cases := map[uint32]string{0: "", 1: "one", 2: "two", 3: ""}
	for line, want := range cases {
		if got := f.GetLine(line); got != want {
			t.Errorf("GetLine(%d) = %q, want %q", line, got, want)
		}
	}
}

func TestSpanOrdering(t *testing.T) {
	a := Span{File: 1, Op: 3}
	b := Span{File: 1, Op: 5, Line: 7, Col: 3}
	if !a.Before(b) || b.Before(a) {
		t.Fatalf("ordering broken: %v vs %v", a, b)
	}
	if a.HasPosition() || !b.HasPosition() {
		t.Fatalf("HasPosition mismatch")
	}
	if got := b.String(); got != "1:op5@7:3" {
		t.Fatalf("String = %q", got)
	}
}
