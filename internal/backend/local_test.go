package backend

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"remotefs/internal/core/types"
)

// writeTree lays out a small local directory to walk.
func writeTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"a.txt":         "aaaa",
		"b.txt":         "bb",
		"sub/c.txt":     "c",
		"sub/deep/d.go": "dddd",
	}
	for rel, content := range files {
		full := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir failed: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	return dir
}

func TestLocalFind(t *testing.T) {
	dir := writeTree(t)
	b := &LocalBackend{}
	ctx := context.Background()

	infos, err := b.Find(ctx, dir, FindOptions{})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(infos) != 4 {
		t.Fatalf("Expected 4 files, got %d", len(infos))
	}
	for _, fi := range infos {
		if fi.Type != types.TypeFile {
			t.Fatalf("Unexpected directory in default find: %s", fi.Name)
		}
	}

	infos, err = b.Find(ctx, dir, FindOptions{WithDirs: true})
	if err != nil {
		t.Fatalf("Find with dirs failed: %v", err)
	}
	if len(infos) != 6 {
		t.Fatalf("Expected 4 files + 2 dirs, got %d", len(infos))
	}

	infos, err = b.Find(ctx, dir, FindOptions{MaxDepth: 1})
	if err != nil {
		t.Fatalf("Find with depth failed: %v", err)
	}
	want := []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt")}
	if !reflect.DeepEqual(Names(infos), want) {
		t.Fatalf("Depth-limited find wrong: %v", Names(infos))
	}
}

func TestLocalInfoAndExists(t *testing.T) {
	dir := writeTree(t)
	b := &LocalBackend{}
	ctx := context.Background()

	fi, err := b.Info(ctx, filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if fi.Size != 4 || fi.Type != types.TypeFile {
		t.Fatalf("Unexpected info: %+v", fi)
	}

	fi, err = b.Info(ctx, filepath.Join(dir, "sub"))
	if err != nil {
		t.Fatalf("Info on dir failed: %v", err)
	}
	if fi.Type != types.TypeDirectory {
		t.Fatalf("Expected directory type, got %s", fi.Type)
	}

	ok, err := b.Exists(ctx, filepath.Join(dir, "a.txt"))
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	ok, err = b.Exists(ctx, filepath.Join(dir, "nope.txt"))
	if err != nil || ok {
		t.Fatalf("Exists(nope) = %v, %v", ok, err)
	}
}

func TestLocalList(t *testing.T) {
	dir := writeTree(t)
	b := &LocalBackend{}

	infos, err := b.List(context.Background(), dir)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.txt"),
		filepath.Join(dir, "sub"),
	}
	if !reflect.DeepEqual(Names(infos), want) {
		t.Fatalf("List wrong: %v", Names(infos))
	}
}

func TestLocalOpen(t *testing.T) {
	dir := writeTree(t)
	b := &LocalBackend{}

	r, err := b.Open(context.Background(), filepath.Join(dir, "b.txt"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	buf := make([]byte, 8)
	n, _ := r.Read(buf)
	if string(buf[:n]) != "bb" {
		t.Fatalf("Wrong content: %q", buf[:n])
	}
}
