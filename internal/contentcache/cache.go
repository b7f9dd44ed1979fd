// Package contentcache provides a whole-file read-through cache layered
// over a storage backend. Downloaded bytes persist under a fixed local
// directory and are reused by every handle sharing that directory.
package contentcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"remotefs/internal/backend"
	"remotefs/internal/core/logger"
	"remotefs/internal/core/types"
)

type Option func(*Cache)

// WithPreserveNames stores cached files under their original relative
// paths instead of content-hash names. Original names keep concurrent
// writers of the same path convergent: both produce the same final file.
func WithPreserveNames(preserve bool) Option {
	return func(c *Cache) {
		c.preserveNames = preserve
	}
}

// WithCheckFiles re-validates cached file size against the backend on
// every open. Off by default: a hit is served without remote calls.
func WithCheckFiles(check bool) Option {
	return func(c *Cache) {
		c.checkFiles = check
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Cache) {
		c.log = log
	}
}

// Cache is a read-through byte cache over a Backend. It implements the
// Backend interface: Open serves from local disk, everything else passes
// through unchanged.
type Cache struct {
	backend       backend.Backend
	storageDir    string
	preserveNames bool
	checkFiles    bool
	log           *logger.Logger

	mu       sync.Mutex
	inflight map[string]*sync.Mutex // per-path download guards
}

// Compile-time check of the pass-through contract.
var _ backend.Backend = (*Cache)(nil)

// New creates a content cache storing files under storageDir.
func New(b backend.Backend, storageDir string, opts ...Option) (*Cache, error) {
	if storageDir == "" {
		return nil, fmt.Errorf("storage directory cannot be empty")
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	c := &Cache{
		backend:    b,
		storageDir: storageDir,
		log:        logger.New(logger.WithName("contentcache")),
		inflight:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// localPath maps a backend path to its on-disk cache location.
func (c *Cache) localPath(p string) string {
	if c.preserveNames {
		rel := strings.TrimPrefix(path.Clean("/"+p), "/")
		return filepath.Join(c.storageDir, filepath.FromSlash(rel))
	}
	sum := sha256.Sum256([]byte(p))
	return filepath.Join(c.storageDir, hex.EncodeToString(sum[:]))
}

// Open returns a reader for the file at path, downloading it into the
// cache on first use.
func (c *Cache) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	local := c.localPath(p)

	if st, err := os.Stat(local); err == nil && !st.IsDir() {
		if !c.checkFiles {
			return os.Open(local)
		}
		// Staleness check requested: compare size to the backend
		if fi, ierr := c.backend.Info(ctx, p); ierr == nil && fi.Size == types.Bytes(st.Size()) {
			return os.Open(local)
		}
	}

	if err := c.fetch(ctx, p, local); err != nil {
		return nil, err
	}
	return os.Open(local)
}

// fetch downloads a file into the cache. Concurrent fetches of the same
// path serialize; the loser finds the file already present.
func (c *Cache) fetch(ctx context.Context, p, local string) error {
	lock := c.pathLock(local)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(local); err == nil {
		return nil
	}

	src, err := c.backend.Open(ctx, p)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	// Write to a temp file and rename so partial downloads never
	// surface as cache hits
	tmp, err := os.CreateTemp(filepath.Dir(local), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("download %s: %w", p, err)
	}

	if err := os.Rename(tmpName, local); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit cached file: %w", err)
	}

	c.log.Debug("cached file content", "path", p, "size", types.Bytes(n).String())
	return nil
}

func (c *Cache) pathLock(local string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.inflight[local]
	if !ok {
		lock = &sync.Mutex{}
		c.inflight[local] = lock
	}
	return lock
}

// Cached reports whether path is already present on local disk.
func (c *Cache) Cached(p string) bool {
	st, err := os.Stat(c.localPath(p))
	return err == nil && !st.IsDir()
}

// StorageDir returns the on-disk storage area.
func (c *Cache) StorageDir() string {
	return c.storageDir
}

// Pass-through surface

func (c *Cache) Exists(ctx context.Context, p string) (bool, error) {
	return c.backend.Exists(ctx, p)
}

func (c *Cache) Find(ctx context.Context, root string, opts backend.FindOptions) ([]types.FileInfo, error) {
	return c.backend.Find(ctx, root, opts)
}

func (c *Cache) Info(ctx context.Context, p string) (types.FileInfo, error) {
	return c.backend.Info(ctx, p)
}

func (c *Cache) List(ctx context.Context, p string) ([]types.FileInfo, error) {
	return c.backend.List(ctx, p)
}
