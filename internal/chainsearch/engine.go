package chainsearch

import (
	"context"
	"os"
	"path/filepath"

	"github.com/codexlens/codexlens/internal/cerrors"
	"github.com/codexlens/codexlens/internal/cluster"
	"github.com/codexlens/codexlens/internal/config"
	"github.com/codexlens/codexlens/internal/dirindex"
	"github.com/codexlens/codexlens/internal/globalindex"
	"github.com/codexlens/codexlens/internal/pathmap"
	"github.com/codexlens/codexlens/internal/registry"
	"github.com/codexlens/codexlens/internal/vectorstore"
)

// Engine is the chain search engine (spec.md §4.9): it resolves a starting
// directory to its collected subtree of per-directory indexes, then runs
// either the single-pass standard search or the staged cascade pipeline
// over that set.
type Engine struct {
	Cfg      config.Config
	Registry *registry.Store
	Mapper   *pathmap.Mapper
	Global   *globalindex.Store
	Vectors  *vectorstore.Store
}

// NewEngine constructs a chain search engine over a built project's stores.
func NewEngine(cfg config.Config, reg *registry.Store, mapper *pathmap.Mapper, global *globalindex.Store, vectors *vectorstore.Store) *Engine {
	return &Engine{Cfg: cfg, Registry: reg, Mapper: mapper, Global: global, Vectors: vectors}
}

// collectedDir is one directory folded into a search: its source path and
// the path of its index database. It holds no open store; each stage opens
// the databases it reads.
type collectedDir struct {
	sourceDir string
	indexPath string
}

// resolveStart maps a source path to its nearest registered index
// directory (spec.md §4.9: "resolve start_path via find_nearest_index if
// it is not itself an indexed directory").
func (e *Engine) resolveStart(sourcePath string) (collectedDir, error) {
	sourcePath = filepath.Clean(sourcePath)
	dbPath := e.Mapper.SourceToIndexDB(sourcePath)
	if fileExists(dbPath) {
		return collectedDir{sourceDir: sourcePath, indexPath: dbPath}, nil
	}

	mapping, found, err := e.Registry.FindNearestIndex(sourcePath)
	if err != nil {
		return collectedDir{}, err
	}
	if !found {
		return collectedDir{}, cerrors.SearchError("no index found for "+sourcePath, nil)
	}
	return collectedDir{sourceDir: mapping.SourcePath, indexPath: mapping.IndexPath}, nil
}

// collectIndexes walks the subdirs links recorded at build time (spec.md
// §4.7 step 4) starting from start, descending up to depth levels
// (-1 = unlimited, 0 = start only).
func (e *Engine) collectIndexes(ctx context.Context, start collectedDir, depth int) ([]collectedDir, error) {
	store, err := dirindex.Open(start.indexPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	out := []collectedDir{start}
	if depth == 0 {
		return out, nil
	}

	subdirs, err := store.Subdirs(ctx)
	if err != nil {
		return nil, err
	}
	nextDepth := depth - 1
	if depth < 0 {
		nextDepth = -1
	}
	for _, sub := range subdirs {
		childSource := filepath.Join(start.sourceDir, sub.Name)
		child := collectedDir{sourceDir: childSource, indexPath: sub.IndexPath}
		if !fileExists(sub.IndexPath) {
			continue
		}
		children, err := e.collectIndexes(ctx, child, nextDepth)
		if err != nil {
			return nil, err
		}
		out = append(out, children...)
	}
	return out, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// clusterStrategyFor resolves a cluster.Strategy by the configured/
// requested name, falling back to auto on an unrecognized value (spec.md
// §4.10).
func clusterStrategyFor(name config.ClusteringStrategy) cluster.Strategy {
	return cluster.New(string(name), true)
}
