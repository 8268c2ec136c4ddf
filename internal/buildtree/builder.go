// Package buildtree implements C7, the bottom-up parallel index tree
// builder (spec.md §4.7): it walks a source tree depth-grouped, builds one
// dirindex.Store per indexable directory through a depth-bounded worker
// pool, links parent/child subdir entries, recomputes 1-2 hop graph
// neighbors, and rolls merkle roots up to the project root.
package buildtree

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codexlens/codexlens/internal/cerrors"
	"github.com/codexlens/codexlens/internal/config"
	"github.com/codexlens/codexlens/internal/dirindex"
	"github.com/codexlens/codexlens/internal/globalindex"
	"github.com/codexlens/codexlens/internal/parser"
	"github.com/codexlens/codexlens/internal/pathmap"
	"github.com/codexlens/codexlens/internal/registry"
)

// DirError is one directory's build failure; a failing worker never aborts
// the rest of the build (spec.md §4.7: "does not abort the build").
type DirError struct {
	Path string
	Err  error
}

func (e DirError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

// Result summarizes one Build run.
type Result struct {
	DirsBuilt    int
	FilesIndexed int
	Errors       []DirError
}

// Builder orchestrates C7 over an already-opened C2 registry and C5 global
// index, using mapper to locate each directory's `_index.db`.
type Builder struct {
	Cfg         config.Config
	Mapper      *pathmap.Mapper
	Registry    *registry.Store
	Global      *globalindex.Store
	Parsers     *parser.Registry
	Incremental bool

	// OnDirBuilt, if set, is called after each directory finishes building
	// (success or failure), with the running count and the total number of
	// indexable directories discovered for this build. Used by the CLI to
	// drive a progress bar; nil is a no-op.
	OnDirBuilt func(done, total int)
}

// NewBuilder constructs a Builder from its collaborators.
func NewBuilder(cfg config.Config, mapper *pathmap.Mapper, reg *registry.Store, global *globalindex.Store, parsers *parser.Registry) *Builder {
	return &Builder{Cfg: cfg, Mapper: mapper, Registry: reg, Global: global, Parsers: parsers, Incremental: true}
}

type builtDir struct {
	node  *dirNode
	store *dirindex.Store
	rels  []parser.Relationship
	syms  []parser.Symbol
	sha   string // aggregate content hash of this directory's own files
}

// Build walks sourceRoot and builds (or incrementally updates) its full
// index tree, following spec.md §4.7 steps 1-7.
func (b *Builder) Build(ctx context.Context, sourceRoot string) (*Result, error) {
	sourceRoot = filepath.Clean(sourceRoot)
	indexRoot := b.Mapper.SourceToIndexDir(sourceRoot)
	project, err := b.Registry.RegisterProject(sourceRoot, indexRoot)
	if err != nil {
		return nil, err
	}

	nodes, maxDepth, err := discoverTree(sourceRoot, b.Cfg)
	if err != nil {
		return nil, cerrors.StorageError("walk source tree", err)
	}
	grouped := groupIndexableByDepth(nodes)

	totalDirs := 0
	for _, level := range grouped {
		totalDirs += len(level)
	}

	built := make(map[string]*builtDir)
	var mu sync.Mutex
	var allErrors []DirError
	filesIndexed := 0
	dirsDone := 0

	workers := b.Cfg.Workers()

	for depth := maxDepth; depth >= 0; depth-- {
		level := grouped[depth]
		if len(level) == 0 {
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)

		for _, node := range level {
			node := node
			g.Go(func() error {
				bd, n, buildErr := b.buildOneDir(gctx, project.ID, node)
				mu.Lock()
				defer mu.Unlock()
				dirsDone++
				if b.OnDirBuilt != nil {
					b.OnDirBuilt(dirsDone, totalDirs)
				}
				if buildErr != nil {
					allErrors = append(allErrors, DirError{Path: node.sourcePath, Err: buildErr})
					return nil // per-directory error, never aborts the build
				}
				built[node.sourcePath] = bd
				filesIndexed += n
				return nil
			})
		}
		// errgroup.Wait never actually returns an error here since worker
		// goroutines always swallow their own error into allErrors and
		// return nil, so this check does not fire in practice.
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	b.linkSubdirs(ctx, nodes, built, &allErrors)
	b.computeGraphNeighbors(ctx, built, &allErrors)
	if b.Incremental {
		b.cleanupDeleted(ctx, built, &allErrors)
	}
	b.rollMerkleRoots(ctx, nodes, built, &allErrors)

	for _, bd := range built {
		bd.store.Close()
	}

	if err := b.Registry.UpdateProjectStats(sourceRoot, filesIndexed, len(built)); err != nil {
		allErrors = append(allErrors, DirError{Path: sourceRoot, Err: err})
	}

	return &Result{DirsBuilt: len(built), FilesIndexed: filesIndexed, Errors: allErrors}, nil
}

// buildOneDir builds a single directory's `_index.db`, parsing every
// supported file it directly contains (non-recursive, spec.md §4.7 step 3).
func (b *Builder) buildOneDir(ctx context.Context, projectID int64, node *dirNode) (*builtDir, int, error) {
	indexDir := b.Mapper.SourceToIndexDir(node.sourcePath)
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return nil, 0, fmt.Errorf("create index dir: %w", err)
	}
	dbPath := filepath.Join(indexDir, pathmap.IndexDBName)

	store, err := dirindex.Open(dbPath)
	if err != nil {
		return nil, 0, err
	}

	if err := b.Registry.RegisterDir(projectID, node.sourcePath, dbPath, node.depth, len(node.files)); err != nil {
		store.Close()
		return nil, 0, err
	}

	bd := &builtDir{node: node, store: store}
	filesIndexed := 0
	var dirShas []string

	for _, f := range node.files {
		content, err := os.ReadFile(f.path)
		if err != nil {
			continue
		}
		sha := sha256Hex(content)
		dirShas = append(dirShas, sha)

		if b.Incremental {
			skip, err := store.NeedsReindex(f.path, sha)
			if err == nil && !skip {
				continue
			}
		}

		parsed, err := b.Parsers.Parse(content, f.path, f.language)
		if err != nil {
			continue
		}

		info, statErr := os.Stat(f.path)
		var size int64
		var modTime time.Time
		if statErr == nil {
			size = info.Size()
			modTime = info.ModTime()
		}

		fileRecord := dirindex.FileRecord{
			Path:       f.path,
			Language:   f.language,
			Size:       size,
			ModTime:    modTime,
			ContentSHA: sha,
			MerkleLeaf: sha,
		}
		symbolRecords := make([]dirindex.SymbolRecord, len(parsed.Symbols))
		for i, s := range parsed.Symbols {
			symbolRecords[i] = dirindex.SymbolRecord{FilePath: f.path, Name: s.Name, Kind: string(s.Kind), StartLine: s.StartLine, EndLine: s.EndLine}
		}
		relRecords := make([]dirindex.RelationshipRecord, len(parsed.Relationships))
		for i, r := range parsed.Relationships {
			relRecords[i] = dirindex.RelationshipRecord{
				SourceSymbol: r.SourceSymbol, TargetSymbol: r.TargetSymbol, Type: string(r.Type),
				SourceFile: r.SourceFile, TargetFile: r.TargetFile, SourceLine: r.SourceLine,
			}
		}

		if err := store.AddFile(ctx, fileRecord, string(content), symbolRecords, relRecords); err != nil {
			continue
		}
		if err := b.Global.UpdateFileRelationships(ctx, f.path, toGlobalSymbols(f.path, parsed.Symbols), toGlobalRels(parsed.Relationships)); err != nil {
			continue
		}

		bd.rels = append(bd.rels, parsed.Relationships...)
		bd.syms = append(bd.syms, parsed.Symbols...)
		filesIndexed++
	}

	sort.Strings(dirShas)
	bd.sha = sha256Hex([]byte(joinStrings(dirShas)))
	return bd, filesIndexed, nil
}

func toGlobalSymbols(filePath string, syms []parser.Symbol) []globalindex.Symbol {
	out := make([]globalindex.Symbol, len(syms))
	for i, s := range syms {
		out[i] = globalindex.Symbol{Name: s.Name, Kind: string(s.Kind), FilePath: filePath, StartLine: s.StartLine, EndLine: s.EndLine}
	}
	return out
}

func toGlobalRels(rels []parser.Relationship) []globalindex.Relationship {
	out := make([]globalindex.Relationship, len(rels))
	for i, r := range rels {
		out[i] = globalindex.Relationship{
			SourceSymbol: r.SourceSymbol, TargetSymbol: r.TargetSymbol, Type: string(r.Type),
			SourceFile: r.SourceFile, TargetFile: r.TargetFile, SourceLine: r.SourceLine,
		}
	}
	return out
}

// linkSubdirs is step 4: a second pass, after every depth level has built,
// registering each indexable child directory under its parent's subdirs
// table.
func (b *Builder) linkSubdirs(ctx context.Context, nodes map[string]*dirNode, built map[string]*builtDir, errs *[]DirError) {
	for path, bd := range built {
		for _, childPath := range bd.node.children {
			child, ok := nodes[childPath]
			if !ok || !child.indexable {
				continue
			}
			childIndexDB := filepath.Join(b.Mapper.SourceToIndexDir(childPath), pathmap.IndexDBName)
			sub := dirindex.SubdirRecord{Name: filepath.Base(childPath), IndexPath: childIndexDB}
			if err := bd.store.RegisterSubdir(ctx, sub); err != nil {
				*errs = append(*errs, DirError{Path: path, Err: err})
			}
		}
	}
}

// computeGraphNeighbors is step 6: enumerate each directory's own
// relationships, build an undirected adjacency graph over symbol names, and
// emit bounded 1-2 hop neighbor pairs per locally-defined symbol.
func (b *Builder) computeGraphNeighbors(ctx context.Context, built map[string]*builtDir, errs *[]DirError) {
	for path, bd := range built {
		if len(bd.rels) == 0 {
			continue
		}
		adj := make(map[string]map[string]bool)
		addEdge := func(a, c string) {
			if a == "" || c == "" || a == c {
				return
			}
			if adj[a] == nil {
				adj[a] = make(map[string]bool)
			}
			if adj[c] == nil {
				adj[c] = make(map[string]bool)
			}
			adj[a][c] = true
			adj[c][a] = true
		}
		for _, r := range bd.rels {
			addEdge(r.SourceSymbol, r.TargetSymbol)
		}

		defined := make(map[string]bool, len(bd.syms))
		for _, s := range bd.syms {
			defined[s.Name] = true
		}

		for sym := range defined {
			neighbors := bfsNeighbors(adj, sym, 2)
			if len(neighbors) == 0 {
				continue
			}
			if err := bd.store.SetGraphNeighbors(ctx, sym, neighbors); err != nil {
				*errs = append(*errs, DirError{Path: path, Err: err})
			}
		}
	}
}

// bfsNeighbors returns every node reachable from start within maxHops,
// weighted 1/hops (spec.md §4.7 step 6: bound to 2 hops, undirected).
func bfsNeighbors(adj map[string]map[string]bool, start string, maxHops int) []dirindex.GraphNeighbor {
	visited := map[string]int{start: 0}
	queue := []string{start}
	var out []dirindex.GraphNeighbor

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		hop := visited[cur]
		if hop >= maxHops {
			continue
		}
		for next := range adj[cur] {
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = hop + 1
			queue = append(queue, next)
			out = append(out, dirindex.GraphNeighbor{Symbol: start, NeighborSym: next, Hops: hop + 1, Weight: 1.0 / float64(hop+1)})
		}
	}
	return out
}

// cleanupDeleted is step 5: reconcile each built directory's stored file
// set against what the walk actually found on disk.
func (b *Builder) cleanupDeleted(ctx context.Context, built map[string]*builtDir, errs *[]DirError) {
	for path, bd := range built {
		live := make([]string, len(bd.node.files))
		for i, f := range bd.node.files {
			live[i] = f.path
		}
		if _, err := bd.store.CleanupDeletedFiles(ctx, live); err != nil {
			*errs = append(*errs, DirError{Path: path, Err: err})
		}
	}
}

// rollMerkleRoots is step 7: combine each directory's own file-content hash
// with its already-computed children's merkle roots, bottom-up.
func (b *Builder) rollMerkleRoots(ctx context.Context, nodes map[string]*dirNode, built map[string]*builtDir, errs *[]DirError) map[string]string {
	roots := make(map[string]string)

	depths := make([]int, 0)
	seen := make(map[int]bool)
	for _, bd := range built {
		if !seen[bd.node.depth] {
			seen[bd.node.depth] = true
			depths = append(depths, bd.node.depth)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(depths)))

	for _, depth := range depths {
		for path, bd := range built {
			if bd.node.depth != depth {
				continue
			}
			parts := []string{bd.sha}
			var childRoots []string
			for _, childPath := range bd.node.children {
				if r, ok := roots[childPath]; ok {
					childRoots = append(childRoots, r)
				}
			}
			sort.Strings(childRoots)
			parts = append(parts, childRoots...)
			root := sha256Hex([]byte(joinStrings(parts)))
			roots[path] = root
			if err := bd.store.UpdateMerkleRoot(ctx, root); err != nil {
				*errs = append(*errs, DirError{Path: path, Err: err})
			}
		}
	}
	return roots
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func joinStrings(parts []string) string {
	out := ""
	for _, p := range parts {
		out += p + "|"
	}
	return out
}
