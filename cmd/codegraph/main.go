// Command codegraph drives the indexing engine of §4.6 from the shell:
// a one-shot index, a continuous watch-and-reindex loop, and a status
// report against an existing store. Grounded on the teacher's cmd/lci
// App: global flags plus a Before hook that builds the shared runtime
// once, a Commands slice, and a deferred cleanup list run on exit.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/fenwick-labs/codegraph/internal/config"
	"github.com/fenwick-labs/codegraph/internal/debug"
	"github.com/fenwick-labs/codegraph/internal/version"
	"github.com/fenwick-labs/codegraph/pkg/changedetect"
	"github.com/fenwick-labs/codegraph/pkg/embedprovider"
	"github.com/fenwick-labs/codegraph/pkg/embedprovider/cached"
	"github.com/fenwick-labs/codegraph/pkg/embedprovider/deterministic"
	"github.com/fenwick-labs/codegraph/pkg/indexer"
	"github.com/fenwick-labs/codegraph/pkg/parserapi/gotreesitter"
	"github.com/fenwick-labs/codegraph/pkg/pathutil"
	"github.com/fenwick-labs/codegraph/pkg/resolver"
	"github.com/fenwick-labs/codegraph/pkg/storage/sqlitestore"
	"github.com/fenwick-labs/codegraph/pkg/watcher"
	"github.com/fenwick-labs/codegraph/pkg/writer"
)

var cleanupFuncs []func()

// appRuntime bundles every collaborator one reindex needs, built once in
// the Before hook and shared by whichever command runs.
type appRuntime struct {
	cfg     *config.Config
	store   *sqlitestore.Store
	indexer *indexer.Indexer
}

func storagePath(cfg *config.Config) string {
	return filepath.Join(cfg.Project.Root, ".codegraph", "index.db")
}

func buildRuntime(c *cli.Context) (*appRuntime, error) {
	root := c.String("root")
	if root == "" {
		var err error
		root, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
	}

	cfg, err := config.Load(root, c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if c.Bool("force") {
		cfg.Force = true
	}
	if len(c.StringSlice("include")) > 0 {
		cfg.Include = c.StringSlice("include")
	}
	if len(c.StringSlice("exclude")) > 0 {
		cfg.Exclude = append(cfg.Exclude, c.StringSlice("exclude")...)
	}

	store, err := sqlitestore.Open(storagePath(cfg))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	cleanupFuncs = append(cleanupFuncs, func() { _ = store.Close() })

	detector := changedetect.New(cfg.Project.Root, cfg.Exclude)

	parser, err := gotreesitter.New(cfg.Project.ID)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("construct parser: %w", err)
	}

	var embed embedprovider.Provider = deterministic.New(cfg.Embedding.Dimension)
	embed = cached.New(embed, cached.DefaultCacheSize)

	wp := writer.New(store, cfg.Writer.MaxInFlightBatches)
	cleanupFuncs = append(cleanupFuncs, wp.Close)

	var searcher resolver.SymbolSearcher
	if cfg.Semantic.Enabled {
		searcher = store
	}

	ix := indexer.New(cfg, detector, parser, embed, store, wp, searcher)

	return &appRuntime{cfg: cfg, store: store, indexer: ix}, nil
}

func runCleanup() {
	for i := len(cleanupFuncs) - 1; i >= 0; i-- {
		cleanupFuncs[i]()
	}
	cleanupFuncs = nil
}

func main() {
	app := &cli.App{
		Name:    "codegraph",
		Usage:   "incremental code-intelligence indexer",
		Version: version.FullInfo(),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "root", Aliases: []string{"r"}, Usage: "project root (defaults to cwd)"},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to .codegraph.kdl (defaults to <root>/.codegraph.kdl)"},
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "wipe and fully reindex the project before running"},
			&cli.StringSliceFlag{Name: "include", Usage: "glob(s) to restrict indexing to"},
			&cli.StringSliceFlag{Name: "exclude", Aliases: []string{"e"}, Usage: "glob(s) to exclude from indexing"},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging to a temp file"},
		},
		Commands: []*cli.Command{
			indexCommand,
			watchCommand,
			statusCommand,
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				debug.EnableDebug = "true"
				if path, err := debug.InitDebugLogFile(); err == nil {
					fmt.Fprintf(os.Stderr, "debug log: %s\n", path)
					cleanupFuncs = append(cleanupFuncs, func() { _ = debug.CloseDebugLog() })
				}
			}
			return nil
		},
	}

	err := app.Run(os.Args)
	runCleanup()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var indexCommand = &cli.Command{
	Name:  "index",
	Usage: "run one incremental (or, with --force, full) reindex and exit",
	Action: func(c *cli.Context) error {
		rt, err := buildRuntime(c)
		if err != nil {
			return err
		}

		summary, err := rt.indexer.Run(c.Context)
		if err != nil {
			return fmt.Errorf("index: %w", err)
		}

		if summary.Skipped {
			fmt.Println("skipped: no prior index and --force not set")
			return nil
		}

		fmt.Printf("added=%d modified=%d deleted=%d unchanged=%d nodes=%d edges=%d resolved=%.2f%% parse_errors=%d write_failures=%d\n",
			summary.Added, summary.Modified, summary.Deleted, summary.Unchanged,
			summary.Nodes, summary.Edges, summary.ResolvedRatio*100,
			summary.ParseErrors, summary.WriteFailures)
		if summary.VerifyMismatch {
			fmt.Println("warning: post-write row counts did not match the in-memory graph")
		}
		return nil
	},
}

var watchCommand = &cli.Command{
	Name:  "watch",
	Usage: "index once, then reindex on every debounced filesystem change until interrupted",
	Action: func(c *cli.Context) error {
		rt, err := buildRuntime(c)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(c.Context)
		defer cancel()

		if _, err := rt.indexer.Run(ctx); err != nil {
			return fmt.Errorf("initial index: %w", err)
		}
		fmt.Println("initial index complete, watching for changes")

		debounce := time.Duration(rt.cfg.Watch.DebounceMs) * time.Millisecond
		w, err := watcher.New(rt.cfg.Project.Root, rt.cfg.Exclude, debounce, func(paths []string) {
			debug.LogWatcher("reindexing after %d changed path(s)", len(paths))
			if _, err := rt.indexer.Run(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "reindex failed: %v\n", err)
			}
		})
		if err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		if err := w.Start(); err != nil {
			return fmt.Errorf("start watcher: %w", err)
		}
		defer w.Stop()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		fmt.Println("shutting down")
		return nil
	},
}

var statusCommand = &cli.Command{
	Name:  "status",
	Usage: "print the last indexed project metadata and table row counts",
	Action: func(c *cli.Context) error {
		root := c.String("root")
		if root == "" {
			var err error
			root, err = os.Getwd()
			if err != nil {
				return err
			}
		}
		cfg, err := config.Load(root, c.String("config"))
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		store, err := sqlitestore.Open(storagePath(cfg))
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer store.Close()

		meta, ok, err := store.LoadProjectMetadata(c.Context, cfg.Project.ID)
		if err != nil {
			return fmt.Errorf("load project metadata: %w", err)
		}
		if !ok {
			fmt.Println("no index found for this project")
			return nil
		}

		counts, err := store.CountByProject(c.Context, cfg.Project.ID)
		if err != nil {
			return fmt.Errorf("count rows: %w", err)
		}

		display := meta.RootPath
		if cwd, err := os.Getwd(); err == nil {
			display = pathutil.ToRelative(meta.RootPath, cwd)
		}
		fmt.Printf("project:   %s\n", display)
		fmt.Printf("language:  %s\n", meta.PrimaryLanguage)
		fmt.Printf("files:     %d\n", meta.FileCount)
		fmt.Printf("last run:  %s\n", meta.LastIndexedAt)
		fmt.Printf("nodes:     %d (graph: %d)\n", counts.Nodes, meta.NodeCount)
		fmt.Printf("edges:     %d (graph: %d)\n", counts.Edges, meta.EdgeCount)
		fmt.Printf("embeddings: %d (dim %d)\n", counts.SymbolEmbeddings, meta.EmbeddingDimension)
		return nil
	},
}
