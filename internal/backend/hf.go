package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"remotefs/internal/core/types"
	"remotefs/internal/transport"
)

const (
	hfBaseURL   = "https://huggingface.co"
	hfAPIModels = "api/models"
	hfResolve   = "resolve"

	hfDefaultRevision = "main"
)

// HFBackend serves hf://owner/model locations backed by the Hugging Face
// Hub. Paths are "/owner/model/file/within/repo".
type HFBackend struct {
	cfg      types.BackendConfig
	token    string
	revision string
	transfer *transport.HTTPTransfer
}

// NewHFBackend creates a Hugging Face backend. A token enables access to
// gated repositories.
func NewHFBackend(cfg types.BackendConfig) (Backend, error) {
	revision := cfg.Revision
	if revision == "" {
		revision = hfDefaultRevision
	}

	httpOpts := []transport.HTTPTransferOption{}
	if cfg.Transfer != nil && cfg.Transfer.RateLimit > 0 {
		limiter := types.NewRateLimiter(cfg.Transfer.RateLimit, cfg.Transfer.RateBurst)
		httpOpts = append(httpOpts, transport.HTTPWithRateLimiter(limiter))
	}

	return &HFBackend{
		cfg:      cfg,
		token:    cfg.Token,
		revision: revision,
		transfer: transport.NewHTTPTransfer(httpOpts...),
	}, nil
}

// splitRepo splits "/owner/model/file/in/repo" into the repo id and the
// in-repo file path.
func splitRepo(p string) (string, string, error) {
	parts := strings.SplitN(strings.TrimPrefix(path.Clean("/"+p), "/"), "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("hf path missing owner/model: %q", p)
	}
	repo := parts[0] + "/" + parts[1]
	if len(parts) == 3 {
		return repo, parts[2], nil
	}
	return repo, "", nil
}

func (b *HFBackend) authOpts() []transport.HTTPRequestOption {
	if b.token == "" {
		return nil
	}
	return []transport.HTTPRequestOption{
		transport.HTTPRequestHeaders(map[string]string{
			"Authorization": "Bearer " + b.token,
		}),
	}
}

// listRepoFiles retrieves all file paths within a repository from the
// model API.
func (b *HFBackend) listRepoFiles(ctx context.Context, repo string) ([]string, error) {
	u, err := url.JoinPath(hfBaseURL, hfAPIModels, repo)
	if err != nil {
		return nil, fmt.Errorf("join path: %w", err)
	}

	var files []string

	callback := func(resp *http.Response) error {
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status: %s", resp.Status)
		}

		var result struct {
			Siblings []struct {
				Rfilename string `json:"rfilename"`
			} `json:"siblings"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}

		files = make([]string, 0, len(result.Siblings))
		for _, sibling := range result.Siblings {
			files = append(files, sibling.Rfilename)
		}
		return nil
	}

	err = b.transfer.Get(ctx, u, callback, b.authOpts()...)
	return files, err
}

func (b *HFBackend) Exists(ctx context.Context, p string) (bool, error) {
	repo, filePath, err := splitRepo(p)
	if err != nil {
		return false, err
	}

	files, err := b.listRepoFiles(ctx, repo)
	if err != nil {
		return false, nil // repo not reachable: treat as absent
	}
	if filePath == "" {
		return true, nil
	}
	for _, f := range files {
		if f == filePath || strings.HasPrefix(f, filePath+"/") {
			return true, nil
		}
	}
	return false, nil
}

func (b *HFBackend) Find(ctx context.Context, root string, opts FindOptions) ([]types.FileInfo, error) {
	repo, sub, err := splitRepo(root)
	if err != nil {
		return nil, err
	}

	files, err := b.listRepoFiles(ctx, repo)
	if err != nil {
		return nil, err
	}

	var results []types.FileInfo
	dirs := make(map[string]bool)

	for _, f := range files {
		if sub != "" && f != sub && !strings.HasPrefix(f, sub+"/") {
			continue
		}
		abs := "/" + repo + "/" + f
		if opts.MaxDepth > 0 && Depth(root, abs) > opts.MaxDepth {
			continue
		}
		// The model API reports names only; sizes come from Info
		results = append(results, types.FileInfo{
			Name: abs,
			Mode: types.DefaultFileMode,
			Type: types.TypeFile,
		})
		if opts.WithDirs {
			for dir := path.Dir(abs); UnderPath(root, dir) && dir != root; dir = path.Dir(dir) {
				dirs[dir] = true
			}
		}
	}

	for dir := range dirs {
		if opts.MaxDepth > 0 && Depth(root, dir) > opts.MaxDepth {
			continue
		}
		results = append(results, types.FileInfo{
			Name: dir,
			Mode: 0o755,
			Type: types.TypeDirectory,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	return results, nil
}

func (b *HFBackend) Info(ctx context.Context, p string) (types.FileInfo, error) {
	repo, filePath, err := splitRepo(p)
	if err != nil {
		return types.FileInfo{}, err
	}
	if filePath == "" {
		return types.FileInfo{Name: p, Mode: 0o755, Type: types.TypeDirectory}, nil
	}

	u, err := url.JoinPath(hfBaseURL, repo, hfResolve, b.revision, filePath)
	if err != nil {
		return types.FileInfo{}, fmt.Errorf("join path: %w", err)
	}

	var info types.FileInfo

	callback := func(resp *http.Response) error {
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status: %s", resp.Status)
		}

		modTime := time.Now()
		if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
			if parsed, perr := http.ParseTime(lastMod); perr == nil {
				modTime = parsed
			}
		}

		info = types.FileInfo{
			Name:    p,
			Size:    types.Bytes(resp.ContentLength),
			Mode:    types.DefaultFileMode,
			ModTime: modTime,
			Type:    types.TypeFile,
		}
		return nil
	}

	if err := b.transfer.Head(ctx, u, callback, b.authOpts()...); err != nil {
		return types.FileInfo{}, err
	}
	return info, nil
}

func (b *HFBackend) List(ctx context.Context, p string) ([]types.FileInfo, error) {
	// The hub API has no direct-children listing; derive it from the
	// recursive file list.
	all, err := b.Find(ctx, p, FindOptions{MaxDepth: 1, WithDirs: true})
	if err != nil {
		return nil, err
	}
	return all, nil
}

func (b *HFBackend) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	repo, filePath, err := splitRepo(p)
	if err != nil {
		return nil, err
	}
	if filePath == "" {
		return nil, fmt.Errorf("cannot open repository root: %s", p)
	}

	u, err := url.JoinPath(hfBaseURL, repo, hfResolve, b.revision, filePath)
	if err != nil {
		return nil, fmt.Errorf("join path: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	for _, opt := range b.authOpts() {
		opt(req)
	}

	resp, err := transport.DefaultHTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	return b.transfer.Body(ctx, resp), nil
}

func init() {
	RegisterFactory("hf", NewHFBackend)
}
