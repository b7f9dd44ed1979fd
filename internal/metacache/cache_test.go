package metacache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"

	"remotefs/internal/backend"
	"remotefs/internal/core/types"
)

// mockBackend serves an in-memory file map and counts backend calls.
type mockBackend struct {
	mu          sync.Mutex
	files       map[string]string
	findCount   int
	existsCount int
	infoCount   int
	failFind    bool
}

func newMockBackend(files map[string]string) *mockBackend {
	return &mockBackend{files: files}
}

func (m *mockBackend) finds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findCount
}

func (m *mockBackend) Exists(ctx context.Context, p string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existsCount++
	if _, ok := m.files[p]; ok {
		return true, nil
	}
	for f := range m.files {
		if strings.HasPrefix(f, strings.TrimSuffix(p, "/")+"/") {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockBackend) Find(ctx context.Context, root string, opts backend.FindOptions) ([]types.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCount++
	if m.failFind {
		return nil, fmt.Errorf("backend scan failed")
	}

	var results []types.FileInfo
	dirs := make(map[string]bool)
	for f, content := range m.files {
		if !backend.UnderPath(root, f) {
			continue
		}
		results = append(results, types.FileInfo{
			Name: f,
			Size: types.Bytes(len(content)),
			Mode: types.DefaultFileMode,
			Type: types.TypeFile,
		})
		if opts.WithDirs {
			for dir := path.Dir(f); backend.UnderPath(root, dir) && dir != root; dir = path.Dir(dir) {
				dirs[dir] = true
			}
		}
	}
	for dir := range dirs {
		results = append(results, types.FileInfo{Name: dir, Mode: 0o755, Type: types.TypeDirectory})
	}
	return results, nil
}

func (m *mockBackend) Info(ctx context.Context, p string) (types.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoCount++
	content, ok := m.files[p]
	if !ok {
		return types.FileInfo{}, fmt.Errorf("file not found: %s", p)
	}
	return types.FileInfo{
		Name: p,
		Size: types.Bytes(len(content)),
		Mode: types.DefaultFileMode,
		Type: types.TypeFile,
	}, nil
}

func (m *mockBackend) List(ctx context.Context, p string) ([]types.FileInfo, error) {
	return m.Find(ctx, p, backend.FindOptions{})
}

func (m *mockBackend) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[p]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", p)
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

func testFiles() map[string]string {
	return map[string]string{
		"/remote/test1.txt":     "Content of test1",
		"/remote/test2.txt":     "Content of test2",
		"/remote/dir/test3.txt": "Content of test3",
		"/remote/dir/test4.txt": "Content of test4",
	}
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	return New(WithStorageDir(t.TempDir()))
}

func TestGetOrCreateEntrySingleScan(t *testing.T) {
	mb := newMockBackend(testFiles())
	cache := newTestCache(t)
	ctx := context.Background()

	_, root, listing1, err := cache.GetOrCreateEntry(ctx, "mock://remote",
		WithBackend(mb), WithRoot("/remote"))
	if err != nil {
		t.Fatalf("GetOrCreateEntry failed: %v", err)
	}
	if root != "/remote" {
		t.Fatalf("Expected root /remote, got %s", root)
	}

	// Three more calls must not scan again
	for i := 0; i < 3; i++ {
		_, _, listing, err := cache.GetOrCreateEntry(ctx, "mock://remote")
		if err != nil {
			t.Fatalf("Repeat GetOrCreateEntry failed: %v", err)
		}
		if len(listing) != len(listing1) {
			t.Fatalf("Listing changed across calls: %d vs %d", len(listing), len(listing1))
		}
	}

	if mb.finds() != 1 {
		t.Fatalf("Expected exactly 1 backend scan, got %d", mb.finds())
	}

	// 4 files plus the /dir directory
	if len(listing1) != 5 {
		t.Fatalf("Expected 5 listed entries, got %d: %v", len(listing1), listing1)
	}
}

func TestGetOrCreateEntryMissingRoot(t *testing.T) {
	mb := newMockBackend(map[string]string{})
	cache := newTestCache(t)

	_, _, listing, err := cache.GetOrCreateEntry(context.Background(), "mock://empty",
		WithBackend(mb), WithRoot("/empty"))
	if err != nil {
		t.Fatalf("Missing root should not be fatal: %v", err)
	}
	if len(listing) != 0 {
		t.Fatalf("Expected empty listing, got %v", listing)
	}
	if mb.finds() != 0 {
		t.Fatalf("Missing root should not be scanned, got %d scans", mb.finds())
	}
}

func TestGetOrCreateEntryScanFailure(t *testing.T) {
	mb := newMockBackend(testFiles())
	mb.failFind = true
	cache := newTestCache(t)
	ctx := context.Background()

	_, _, listing, err := cache.GetOrCreateEntry(ctx, "mock://remote",
		WithBackend(mb), WithRoot("/remote"))
	if err != nil {
		t.Fatalf("Scan failure should degrade, not fail: %v", err)
	}
	if len(listing) != 0 {
		t.Fatalf("Expected empty listing after failed scan, got %v", listing)
	}

	// The entry is cached, so the failing scan must not be retried
	if _, _, _, err := cache.GetOrCreateEntry(ctx, "mock://remote"); err != nil {
		t.Fatalf("Repeat call failed: %v", err)
	}
	if mb.finds() != 1 {
		t.Fatalf("Failed scan retried: %d scans", mb.finds())
	}
}

func TestGetOrCreateEntryResolutionError(t *testing.T) {
	cache := newTestCache(t)

	_, _, _, err := cache.GetOrCreateEntry(context.Background(), "bogus://nowhere")
	if err == nil {
		t.Fatalf("Expected resolution error for unknown scheme")
	}
	var resErr *backend.ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("Expected ResolutionError, got %T: %v", err, err)
	}
}

func TestFileStats(t *testing.T) {
	mb := newMockBackend(testFiles())
	cache := newTestCache(t)
	ctx := context.Background()

	if _, _, _, err := cache.GetOrCreateEntry(ctx, "mock://remote",
		WithBackend(mb), WithRoot("/remote")); err != nil {
		t.Fatalf("GetOrCreateEntry failed: %v", err)
	}

	if _, ok := cache.FileStats("mock://remote", "/test1.txt"); ok {
		t.Fatalf("Stats should start empty")
	}

	cache.SetFileStats("mock://remote", "/test1.txt", 16, 0o644)

	st, ok := cache.FileStats("mock://remote", "/test1.txt")
	if !ok {
		t.Fatalf("Stats not recorded")
	}
	if st.Size != 16 || st.Mode != 0o644 {
		t.Fatalf("Unexpected stats: %+v", st)
	}

	// Unknown location is a logged no-op, never an error or a new entry
	cache.SetFileStats("mock://unknown", "/x", 1, 0o644)
	if _, ok := cache.FileStats("mock://unknown", "/x"); ok {
		t.Fatalf("Stats for unknown location should be dropped")
	}
}

func TestStatsSnapshot(t *testing.T) {
	mb := newMockBackend(testFiles())
	cache := newTestCache(t)
	ctx := context.Background()

	if _, _, _, err := cache.GetOrCreateEntry(ctx, "mock://remote",
		WithBackend(mb), WithRoot("/remote")); err != nil {
		t.Fatalf("GetOrCreateEntry failed: %v", err)
	}
	cache.SetFileStats("mock://remote", "/test1.txt", 16, 0o644)
	cache.SetFileStats("mock://remote", "/test2.txt", 16, 0o644)

	stats := cache.Stats()
	entry, ok := stats["mock://remote"]
	if !ok {
		t.Fatalf("Snapshot missing location")
	}
	if entry.FileCount != 5 {
		t.Fatalf("Expected 5 listed entries, got %d", entry.FileCount)
	}
	if entry.CachedStatsCount != 2 {
		t.Fatalf("Expected 2 cached stats, got %d", entry.CachedStatsCount)
	}
}

func TestClear(t *testing.T) {
	mb := newMockBackend(testFiles())
	cache := newTestCache(t)
	ctx := context.Background()

	if _, _, _, err := cache.GetOrCreateEntry(ctx, "mock://remote",
		WithBackend(mb), WithRoot("/remote")); err != nil {
		t.Fatalf("GetOrCreateEntry failed: %v", err)
	}

	cache.Clear()

	if _, _, ok := cache.Listing("mock://remote"); ok {
		t.Fatalf("Listing should be gone after Clear")
	}
	if len(cache.Stats()) != 0 {
		t.Fatalf("Stats should be empty after Clear")
	}

	// A fresh construction scans again
	if _, _, _, err := cache.GetOrCreateEntry(ctx, "mock://remote",
		WithBackend(mb), WithRoot("/remote")); err != nil {
		t.Fatalf("GetOrCreateEntry after Clear failed: %v", err)
	}
	if mb.finds() != 2 {
		t.Fatalf("Expected a fresh scan after Clear, got %d scans", mb.finds())
	}
}

func TestConcurrentEntryCreation(t *testing.T) {
	mb := newMockBackend(testFiles())
	cache := newTestCache(t)
	ctx := context.Background()

	const workers = 10
	listings := make([][]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, listing, err := cache.GetOrCreateEntry(ctx, "mock://remote",
				WithBackend(mb), WithRoot("/remote"))
			listings[i] = listing
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("Worker %d failed: %v", i, errs[i])
		}
		if !sort.StringsAreSorted(listings[i]) {
			t.Fatalf("Worker %d got unsorted listing", i)
		}
		if len(listings[i]) != len(listings[0]) {
			t.Fatalf("Worker %d got inconsistent listing", i)
		}
	}

	if mb.finds() != 1 {
		t.Fatalf("Concurrent creation caused %d scans, want 1", mb.finds())
	}
}

func TestContentViewIdempotent(t *testing.T) {
	mb := newMockBackend(testFiles())
	cache := newTestCache(t)
	ctx := context.Background()

	if _, _, _, err := cache.GetOrCreateEntry(ctx, "mock://remote",
		WithBackend(mb), WithRoot("/remote")); err != nil {
		t.Fatalf("GetOrCreateEntry failed: %v", err)
	}

	const workers = 8
	views := make([]any, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			view, err := cache.ContentView(ctx, "mock://remote")
			if err != nil {
				t.Errorf("ContentView failed: %v", err)
				return
			}
			views[i] = view
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if views[i] != views[0] {
			t.Fatalf("Concurrent ContentView produced distinct instances")
		}
	}
}

func TestLocationRoot(t *testing.T) {
	cases := map[string]string{
		"mock://remote":      "/remote",
		"s3://bucket/prefix": "/bucket/prefix",
		"hf://owner/model/":  "/owner/model",
		"/already/absolute":  "/already/absolute",
		"bare/path":          "/bare/path",
	}
	for location, want := range cases {
		if got := LocationRoot(location); got != want {
			t.Fatalf("LocationRoot(%q) = %q, want %q", location, got, want)
		}
	}
}
