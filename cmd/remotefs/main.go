package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"remotefs/internal/backend"
	"remotefs/internal/cachedfs"
	"remotefs/internal/config"
	"remotefs/internal/core/logger"
	"remotefs/internal/core/progress"
	"remotefs/internal/core/types"
	"remotefs/internal/metacache"

	"github.com/alecthomas/kong"
)

type globalFlags struct {
	ConfigFile string `short:"c" long:"config" default:"${config_file}" help:"Path to config file"`
	Debug      bool   `short:"d" long:"debug" help:"Enable debug logging"`
}

// setup loads config, wires logging, initializes backends, and builds
// the metadata cache every command shares.
func (g *globalFlags) setup() (*metacache.Cache, *logger.Logger, error) {
	if g.Debug {
		logger.SetDefaultLevel(logger.LevelDebug)
	}
	log := logger.New(logger.WithName("remotefs"))

	cfg, err := config.Load(config.ResolvePath(g.ConfigFile))
	if err != nil {
		return nil, nil, err
	}
	if err := backend.Initialize(cfg.Backends); err != nil {
		return nil, nil, err
	}

	cache := metacache.New(
		metacache.WithStorageDir(cfg.Storage.Dir),
		metacache.WithLogger(log.WithGroup("metacache")),
	)
	return cache, log, nil
}

// view resolves a location and constructs a cached view over it.
func (g *globalFlags) view(ctx context.Context, location string) (*cachedfs.FS, *metacache.Cache, error) {
	cache, log, err := g.setup()
	if err != nil {
		return nil, nil, err
	}
	b, root, err := backend.Resolve(location)
	if err != nil {
		return nil, nil, err
	}
	fs, err := cachedfs.New(ctx, b, location,
		cachedfs.WithCache(cache),
		cachedfs.WithRoot(root),
		cachedfs.WithLogger(log.WithGroup("view")),
	)
	if err != nil {
		return nil, nil, err
	}
	return fs, cache, nil
}

type FindCmd struct {
	globalFlags
	Location string `arg:"" help:"Location to search (e.g. s3://bucket/prefix)"`
	MaxDepth int    `long:"max-depth" help:"Limit traversal depth (0 = unlimited)"`
	Dirs     bool   `long:"dirs" help:"Include directories in results"`
	Detail   bool   `short:"l" long:"detail" help:"Print size and mode per entry"`
}

func (c *FindCmd) Run() error {
	ctx := context.Background()
	fs, _, err := c.view(ctx, c.Location)
	if err != nil {
		return err
	}

	root := metacache.LocationRoot(c.Location)
	opts := backend.FindOptions{MaxDepth: c.MaxDepth, WithDirs: c.Dirs}

	if c.Detail {
		infos, err := fs.Find(ctx, root, opts)
		if err != nil {
			return err
		}
		for _, fi := range infos {
			fmt.Printf("%s\t%s\t%s\n", fi.Mode, fi.Size, fi.Name)
		}
		return nil
	}

	names, err := fs.FindNames(ctx, root, opts)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

type LsCmd struct {
	globalFlags
	Location string `arg:"" help:"Location to list"`
	Detail   bool   `short:"l" long:"detail" help:"Print size and mode per entry"`
}

func (c *LsCmd) Run() error {
	ctx := context.Background()
	fs, _, err := c.view(ctx, c.Location)
	if err != nil {
		return err
	}

	root := metacache.LocationRoot(c.Location)

	if !c.Detail {
		names, err := fs.ListNames(ctx, root)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	}

	infos, err := fs.List(ctx, root)
	if err != nil {
		return err
	}
	for _, fi := range infos {
		fmt.Printf("%s\t%s\t%s\n", fi.Mode, fi.Size, fi.Name)
	}
	return nil
}

type InfoCmd struct {
	globalFlags
	Location string `arg:"" help:"File location to stat"`
}

func (c *InfoCmd) Run() error {
	ctx := context.Background()
	fs, _, err := c.view(ctx, c.Location)
	if err != nil {
		return err
	}

	fi, err := fs.Info(ctx, metacache.LocationRoot(c.Location))
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(fi, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

type CatCmd struct {
	globalFlags
	Location string `arg:"" help:"File location to print"`
}

func (c *CatCmd) Run() error {
	ctx := context.Background()
	fs, _, err := c.view(ctx, c.Location)
	if err != nil {
		return err
	}

	r, err := fs.Open(ctx, metacache.LocationRoot(c.Location))
	if err != nil {
		return err
	}
	defer r.Close()

	_, err = io.Copy(os.Stdout, r)
	return err
}

type FetchCmd struct {
	globalFlags
	Location string `arg:"" help:"File location to download"`
	Dest     string `arg:"" help:"Local destination path"`
}

func (c *FetchCmd) Run() error {
	ctx := context.Background()
	fs, _, err := c.view(ctx, c.Location)
	if err != nil {
		return err
	}

	path := metacache.LocationRoot(c.Location)
	fi, err := fs.Info(ctx, path)
	if err != nil {
		return err
	}

	r, err := fs.Open(ctx, path)
	if err != nil {
		return err
	}
	defer r.Close()

	dst, err := os.Create(c.Dest)
	if err != nil {
		return err
	}
	defer dst.Close()

	bar := progress.NewDownload(path, fi.Size.Int64())
	_, err = io.Copy(dst, bar.Reader(r))
	bar.Done()
	if err != nil {
		return err
	}

	fmt.Printf("fetched %s (%s) to %s\n", path, fi.Size, c.Dest)
	return nil
}

type DuCmd struct {
	globalFlags
	Location string `arg:"" help:"Location to total up"`
}

func (c *DuCmd) Run() error {
	ctx := context.Background()
	fs, _, err := c.view(ctx, c.Location)
	if err != nil {
		return err
	}

	infos, err := fs.Find(ctx, metacache.LocationRoot(c.Location), backend.FindOptions{})
	if err != nil {
		return err
	}

	var total types.Bytes
	for _, fi := range infos {
		total += fi.Size
	}
	fmt.Printf("%s\t%s\t(%d files)\n", total, c.Location, len(infos))
	return nil
}

type StatsCmd struct {
	globalFlags
	Locations []string `arg:"" help:"Locations to inspect"`
}

func (c *StatsCmd) Run() error {
	ctx := context.Background()
	cache, _, err := c.setup()
	if err != nil {
		return err
	}

	for _, location := range c.Locations {
		b, root, err := backend.Resolve(location)
		if err != nil {
			return err
		}
		if _, err := cachedfs.New(ctx, b, location,
			cachedfs.WithCache(cache),
			cachedfs.WithRoot(root),
		); err != nil {
			return err
		}
	}

	out, err := json.MarshalIndent(cache.Stats(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

type CLI struct {
	Version kong.VersionFlag `short:"v" long:"version" help:"Print version and exit"`
	Find    FindCmd          `cmd:"" help:"Recursively list a remote location"`
	Ls      LsCmd            `cmd:"" help:"List the direct children of a location"`
	Info    InfoCmd          `cmd:"" help:"Stat a remote file"`
	Cat     CatCmd           `cmd:"" help:"Print a remote file through the content cache"`
	Fetch   FetchCmd         `cmd:"" help:"Download a remote file to a local path"`
	Du      DuCmd            `cmd:"" help:"Sum file sizes below a location"`
	Stats   StatsCmd         `cmd:"" help:"Show metadata cache statistics for locations"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(
		&cli,
		kong.Vars{
			"version":     "0.1.0",
			"config_file": "remotefs.yaml",
		},
		kong.Name("remotefs"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	kctx.FatalIfErrorf(kctx.Run(&cli))
}
