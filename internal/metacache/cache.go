// Package metacache holds the process-wide metadata cache for remote
// filesystem locations. One entry per location records the backend
// handle, the resolved root, a one-time recursive listing, and lazily
// accumulated per-file stats, shared by every cached view bound to that
// location.
package metacache

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"remotefs/internal/backend"
	"remotefs/internal/contentcache"
	"remotefs/internal/core/logger"
	"remotefs/internal/core/types"
)

// Resolver maps a location identifier to a backend and root path.
type Resolver func(location string) (backend.Backend, string, error)

// entry is the cached state for one location. The listing map is never
// written after creation; stats only ever grows.
type entry struct {
	backend backend.Backend
	root    string
	listing map[string]types.EntryType // relative path -> entry type
	stats   map[string]types.FileStat  // relative path -> size/mode
	content *contentcache.Cache        // created at most once, lazily
}

// EntryStats is a diagnostic snapshot for one location.
type EntryStats struct {
	FileCount        int `json:"file_count"`
	CachedStatsCount int `json:"cached_stats_count"`
}

type Option func(*Cache)

// WithStorageDir sets the directory content views persist downloads to.
func WithStorageDir(dir string) Option {
	return func(c *Cache) {
		c.storageDir = dir
	}
}

func WithResolver(r Resolver) Option {
	return func(c *Cache) {
		c.resolver = r
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Cache) {
		c.log = log
	}
}

// Cache is a thread-safe metadata cache keyed by location identifier.
// One mutex guards the whole table: entry creation, stats access, and
// content view construction all serialize through it, which is what
// guarantees the at-most-one-scan and at-most-one-content-view
// invariants under concurrent first callers.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	storageDir string
	resolver   Resolver
	log        *logger.Logger
}

// New creates an isolated metadata cache. Most callers want Default();
// tests construct their own to stay independent.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[string]*entry),
		storageDir: filepath.Join(os.TempDir(), "remotefs-content-cache"),
		resolver:   backend.Resolve,
		log:        logger.New(logger.WithName("metacache")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	defaultCache *Cache
	defaultOnce  sync.Once
)

// Default returns the process-wide cache instance.
func Default() *Cache {
	defaultOnce.Do(func() {
		defaultCache = New()
	})
	return defaultCache
}

// EntryOption overrides resolution when creating an entry.
type EntryOption func(*entryOverrides)

type entryOverrides struct {
	backend backend.Backend
	root    string
}

// WithBackend supplies the backend handle directly, skipping resolution.
func WithBackend(b backend.Backend) EntryOption {
	return func(o *entryOverrides) {
		o.backend = b
	}
}

// WithRoot supplies the root path directly, skipping resolution.
func WithRoot(root string) EntryOption {
	return func(o *entryOverrides) {
		o.root = root
	}
}

// GetOrCreateEntry returns the cached (backend, root, listing) for a
// location, creating the entry on first call. Creation resolves the
// backend and root (unless overridden), checks the root exists, and
// performs exactly one recursive scan. A missing root or a failed scan
// degrades to an empty listing so later calls never retry the scan;
// only resolution failures are fatal.
func (c *Cache) GetOrCreateEntry(ctx context.Context, location string, opts ...EntryOption) (backend.Backend, string, []string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := c.getOrCreateLocked(ctx, location, opts...)
	if err != nil {
		return nil, "", nil, err
	}
	return e.backend, e.root, sortedPaths(e.listing), nil
}

// getOrCreateLocked is the single synchronization point for entry
// creation. The caller must hold c.mu; the scan deliberately runs under
// the lock so racing first-callers block instead of re-scanning.
func (c *Cache) getOrCreateLocked(ctx context.Context, location string, opts ...EntryOption) (*entry, error) {
	if e, ok := c.entries[location]; ok {
		return e, nil
	}

	c.log.Info("initializing metadata cache entry", "location", location)

	var o entryOverrides
	for _, opt := range opts {
		opt(&o)
	}

	b, root := o.backend, o.root
	if b == nil || root == "" {
		rb, rroot, err := c.resolver(location)
		if err != nil {
			return nil, err
		}
		if b == nil {
			b = rb
		}
		if root == "" {
			root = rroot
		}
	}
	if b == nil {
		return nil, &backend.ResolutionError{Location: location, Reason: "no backend resolved"}
	}
	if root == "" {
		return nil, &backend.ResolutionError{Location: location, Reason: "no root path resolved"}
	}

	listing := make(map[string]types.EntryType)

	exists, err := b.Exists(ctx, root)
	switch {
	case err != nil:
		// Treated like a failed scan: cache an empty listing rather
		// than retrying on every subsequent call
		c.log.Error("failed to check remote root", "location", location, "error", err)
	case !exists:
		c.log.Info("remote path does not exist", "location", location)
	default:
		infos, err := b.Find(ctx, root, backend.FindOptions{WithDirs: true})
		if err != nil {
			c.log.Error("failed to scan remote location", "location", location, "error", err)
		} else {
			for _, fi := range infos {
				rel := backend.RelPath(root, fi.Name)
				if rel == "/" {
					continue
				}
				listing[rel] = fi.Type
			}
			c.log.Info("cached remote listing", "location", location, "files", len(listing))
		}
	}

	e := &entry{
		backend: b,
		root:    root,
		listing: listing,
		stats:   make(map[string]types.FileStat),
	}
	c.entries[location] = e

	return e, nil
}

// Listing returns the root and listing map for a location, if an entry
// exists. The returned map is the entry's own write-once listing; it
// must not be mutated.
func (c *Cache) Listing(location string) (string, map[string]types.EntryType, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[location]
	if !ok {
		return "", nil, false
	}
	return e.root, e.listing, true
}

// FileStats returns the cached stats for a relative path, if recorded.
// Never triggers backend I/O.
func (c *Cache) FileStats(location, relPath string) (types.FileStat, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[location]
	if !ok {
		return types.FileStat{}, false
	}
	st, ok := e.stats[relPath]
	return st, ok
}

// SetFileStats records stats for a relative path. Calling it for a
// location with no entry is a caller error and degrades to a logged
// no-op.
func (c *Cache) SetFileStats(location, relPath string, size types.Bytes, mode fs.FileMode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[location]
	if !ok {
		c.log.Warn("stats for uninitialized location dropped", "location", location, "path", relPath)
		return
	}
	e.stats[relPath] = types.FileStat{Size: size, Mode: mode}
}

// ContentView returns the shared byte-content cache for a location,
// creating both the entry and the view on first use. Construction is
// idempotent: the first caller under the table lock wins.
func (c *Cache) ContentView(ctx context.Context, location string) (*contentcache.Cache, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, err := c.getOrCreateLocked(ctx, location)
	if err != nil {
		return nil, err
	}

	if e.content != nil {
		return e.content, nil
	}

	// Original names keep concurrent downloads of one path convergent;
	// staleness checks stay off so cache hits never touch the backend.
	view, err := contentcache.New(e.backend, c.storageDir,
		contentcache.WithPreserveNames(true),
		contentcache.WithCheckFiles(false),
		contentcache.WithLogger(c.log.WithGroup("content")),
	)
	if err != nil {
		return nil, err
	}
	e.content = view

	c.log.Info("created shared content cache", "location", location, "storage", c.storageDir)
	return view, nil
}

// Clear drops every entry, releasing backend and content view
// references. Bytes already persisted by content views stay on disk.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.log.Info("cleared metadata cache")
}

// Stats returns a diagnostic snapshot of every entry.
func (c *Cache) Stats() map[string]EntryStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := make(map[string]EntryStats, len(c.entries))
	for location, e := range c.entries {
		stats[location] = EntryStats{
			FileCount:        len(e.listing),
			CachedStatsCount: len(e.stats),
		}
	}
	return stats
}

func sortedPaths(listing map[string]types.EntryType) []string {
	paths := make([]string, 0, len(listing))
	for rel := range listing {
		paths = append(paths, rel)
	}
	sort.Strings(paths)
	return paths
}

// LocationRoot derives the root path embedded in a location identifier:
// "mock://remote" -> "/remote". Bare paths pass through with a leading
// slash.
func LocationRoot(location string) string {
	if _, rest, ok := strings.Cut(location, "://"); ok {
		return "/" + strings.TrimSuffix(rest, "/")
	}
	if strings.HasPrefix(location, "/") {
		return location
	}
	return "/" + location
}
