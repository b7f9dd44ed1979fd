// Package cachedfs wraps a storage backend with the shared metadata
// cache. Any number of FS instances bound to the same location reuse one
// listing scan, one growing stats table, and one content cache.
package cachedfs

import (
	"context"
	"io"
	"io/fs"
	"sort"

	"remotefs/internal/backend"
	"remotefs/internal/contentcache"
	"remotefs/internal/core/logger"
	"remotefs/internal/core/types"
	"remotefs/internal/metacache"
)

type Option func(*FS)

// WithCache binds the view to a specific metadata cache instead of the
// process-wide default.
func WithCache(cache *metacache.Cache) Option {
	return func(f *FS) {
		f.cache = cache
	}
}

// WithRoot overrides the root path derived from the location.
func WithRoot(root string) Option {
	return func(f *FS) {
		f.root = root
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(f *FS) {
		f.log = log
	}
}

// FS is a per-construction view over one remote location. It holds no
// mutable state of its own; everything shared lives in the metadata
// cache entry.
type FS struct {
	location string
	root     string
	raw      backend.Backend
	content  *contentcache.Cache
	cache    *metacache.Cache
	log      *logger.Logger
}

// FS forwards the full backend surface.
var _ backend.Backend = (*FS)(nil)

// New binds a backend to a location. Construction populates (or reuses)
// the metadata cache entry, including the one-time listing scan, and
// attaches the location's shared content cache.
func New(ctx context.Context, b backend.Backend, location string, opts ...Option) (*FS, error) {
	f := &FS{
		location: location,
		root:     metacache.LocationRoot(location),
		raw:      b,
		log:      logger.New(logger.WithName("cachedfs")),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.cache == nil {
		f.cache = metacache.Default()
	}

	if _, _, _, err := f.cache.GetOrCreateEntry(ctx, location,
		metacache.WithBackend(b), metacache.WithRoot(f.root)); err != nil {
		return nil, err
	}

	content, err := f.cache.ContentView(ctx, location)
	if err != nil {
		return nil, err
	}
	f.content = content

	f.log.Debug("constructed cached view", "location", location)
	return f, nil
}

// Location returns the location identifier this view is bound to.
func (f *FS) Location() string {
	return f.location
}

// cachedMatches filters the cached listing by prefix against p,
// applying the depth and directory options. Second result is false when
// no cache entry exists.
func (f *FS) cachedMatches(p string, opts backend.FindOptions) ([]string, bool) {
	root, listing, ok := f.cache.Listing(f.location)
	if !ok {
		return nil, false
	}

	var matches []string
	for rel, typ := range listing {
		if typ == types.TypeDirectory && !opts.WithDirs {
			continue
		}
		abs := backend.AbsPath(root, rel)
		if !backend.UnderPath(p, abs) || abs == p {
			continue
		}
		if opts.MaxDepth > 0 && backend.Depth(p, abs) > opts.MaxDepth {
			continue
		}
		matches = append(matches, abs)
	}
	sort.Strings(matches)

	return matches, true
}

// FindNames lists every path below p, serving from the cached listing
// when the location's entry exists. The fallback delegates to the
// backend and does not write its result back into the cache.
func (f *FS) FindNames(ctx context.Context, p string, opts backend.FindOptions) ([]string, error) {
	if matches, ok := f.cachedMatches(p, opts); ok {
		f.log.Debug("served find from cache", "path", p, "results", len(matches))
		return matches, nil
	}

	infos, err := f.raw.Find(ctx, p, opts)
	if err != nil {
		return nil, err
	}
	return backend.Names(infos), nil
}

// Find lists everything below p with detail records. On the cached path
// each record is resolved through Info; entries whose detail cannot be
// resolved are skipped rather than failing the whole listing.
func (f *FS) Find(ctx context.Context, p string, opts backend.FindOptions) ([]types.FileInfo, error) {
	matches, ok := f.cachedMatches(p, opts)
	if !ok {
		return f.raw.Find(ctx, p, opts)
	}

	results := make([]types.FileInfo, 0, len(matches))
	for _, abs := range matches {
		fi, err := f.Info(ctx, abs)
		if err != nil {
			f.log.Debug("skipping unresolvable entry", "path", abs, "error", err)
			continue
		}
		results = append(results, fi)
	}
	return results, nil
}

// List returns the direct children of p with detail, always delegating
// to the backend. Stats of listed files are recorded into the shared
// cache as a best-effort side effect.
func (f *FS) List(ctx context.Context, p string) ([]types.FileInfo, error) {
	results, err := f.content.List(ctx, p)
	if err != nil {
		return nil, err
	}

	for _, fi := range results {
		if fi.Type != types.TypeFile {
			continue
		}
		rel := backend.RelPath(f.root, fi.Name)
		f.cache.SetFileStats(f.location, rel, fi.Size, statMode(fi))
	}

	return results, nil
}

// ListNames returns the direct children of p without detail and without
// the stats side effect.
func (f *FS) ListNames(ctx context.Context, p string) ([]string, error) {
	results, err := f.content.List(ctx, p)
	if err != nil {
		return nil, err
	}
	return backend.Names(results), nil
}

// Info stats a path. Cached stats override size and mode on top of a
// fresh backend record; on a cache miss the backend result is recorded
// for future calls. Backend stat errors propagate unchanged.
func (f *FS) Info(ctx context.Context, p string) (types.FileInfo, error) {
	rel := backend.RelPath(f.root, p)

	if st, ok := f.cache.FileStats(f.location, rel); ok {
		// Other attributes (times, type) are not cached, so a backend
		// fetch still happens; only size and mode come from the cache.
		if fi, err := f.content.Info(ctx, p); err == nil {
			fi.Size = st.Size
			fi.Mode = st.Mode
			return fi, nil
		}
		f.log.Debug("cached stats merge failed, falling back", "path", p)
	}

	fi, err := f.content.Info(ctx, p)
	if err != nil {
		return types.FileInfo{}, err
	}

	f.cache.SetFileStats(f.location, rel, fi.Size, statMode(fi))

	return fi, nil
}

// Open reads a file through the location's shared content cache, so
// repeated opens across instances reuse downloaded bytes.
func (f *FS) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	return f.content.Open(ctx, p)
}

// Exists passes through to the backend.
func (f *FS) Exists(ctx context.Context, p string) (bool, error) {
	return f.content.Exists(ctx, p)
}

func statMode(fi types.FileInfo) fs.FileMode {
	if fi.Mode != 0 {
		return fi.Mode
	}
	return types.DefaultFileMode
}
