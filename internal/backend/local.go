package backend

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"remotefs/internal/core/types"
)

// LocalBackend serves paths on the local filesystem. It backs the
// "local" and "file" schemes and doubles as the reference implementation
// for the Backend contract.
type LocalBackend struct{}

// NewLocalBackend creates a local filesystem backend.
func NewLocalBackend(types.BackendConfig) (Backend, error) {
	return &LocalBackend{}, nil
}

func (l *LocalBackend) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (l *LocalBackend) Find(ctx context.Context, root string, opts FindOptions) ([]types.FileInfo, error) {
	var results []types.FileInfo

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if p == root {
			return nil
		}
		if opts.MaxDepth > 0 && Depth(root, p) > opts.MaxDepth {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() && !opts.WithDirs {
			return nil
		}
		fi, err := statEntry(p, d)
		if err != nil {
			return err
		}
		results = append(results, fi)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}

func (l *LocalBackend) Info(ctx context.Context, path string) (types.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return types.FileInfo{}, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return types.FileInfo{}, err
	}
	return osFileInfo(path, st), nil
}

func (l *LocalBackend) List(ctx context.Context, path string) ([]types.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	results := make([]types.FileInfo, 0, len(entries))
	for _, d := range entries {
		fi, err := statEntry(filepath.Join(path, d.Name()), d)
		if err != nil {
			return nil, err
		}
		results = append(results, fi)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	return results, nil
}

func (l *LocalBackend) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.Open(path)
}

func statEntry(path string, d fs.DirEntry) (types.FileInfo, error) {
	st, err := d.Info()
	if err != nil {
		return types.FileInfo{}, err
	}
	return osFileInfo(path, st), nil
}

func osFileInfo(path string, st fs.FileInfo) types.FileInfo {
	typ := types.TypeFile
	if st.IsDir() {
		typ = types.TypeDirectory
	}
	return types.FileInfo{
		Name:    path,
		Size:    types.Bytes(st.Size()),
		Mode:    st.Mode().Perm(),
		ModTime: st.ModTime(),
		Type:    typ,
	}
}

func init() {
	RegisterFactory("local", NewLocalBackend)
}
