package chainsearch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/codexlens/codexlens/internal/cluster"
	"github.com/codexlens/codexlens/internal/config"
	"github.com/codexlens/codexlens/internal/dirindex"
)

// CascadeSearch runs the four-stage cascade (spec.md §4.9): a binary
// coarse pass, graph expansion, clustering/dedup, and an optional rerank.
func (e *Engine) CascadeSearch(ctx context.Context, sourcePath, query string, opts QueryOptions) (*ChainSearchResult, error) {
	opts = opts.withDefaults(e.Cfg)
	stats := newStats()

	start, err := e.resolveStart(sourcePath)
	if err != nil {
		return nil, err
	}
	dirs, err := e.collectIndexes(ctx, start, opts.Depth)
	if err != nil {
		return nil, err
	}
	stats.StageCounts["dirs_collected"] = len(dirs)

	t0 := time.Now()
	stage1, fallback := e.stage1Coarse(ctx, dirs, query, opts.Limit)
	stats.StageTimings["stage1_coarse"] = time.Since(t0)
	stats.StageCounts["stage1_hits"] = len(stage1)
	stats.Fallback = fallback

	t0 = time.Now()
	related := e.stage2GraphExpand(ctx, dirs, stage1, opts)
	stats.StageTimings["stage2_graph_expand"] = time.Since(t0)
	stats.StageCounts["stage2_related"] = len(related)

	t0 = time.Now()
	clustered := e.stage3Cluster(stage1, opts)
	stats.StageTimings["stage3_cluster"] = time.Since(t0)
	stats.StageCounts["stage3_representatives"] = len(clustered)

	t0 = time.Now()
	reranked := e.stage4Rerank(clustered, opts)
	stats.StageTimings["stage4_rerank"] = time.Since(t0)

	deduped := dedupeByPath(reranked)
	paged := applyPaging(deduped, opts.Offset, opts.Limit)
	statsJSON, _ := json.Marshal(stats.StageCounts)
	stats.Errors = append(stats.Errors, "STAGE_STATS:"+string(statsJSON))

	return &ChainSearchResult{
		Query:          query,
		Results:        paged,
		RelatedResults: related,
		Symbols:        symbolNames(append(append([]SearchResult(nil), paged...), related...)),
		Stats:          stats,
	}, nil
}

// stage1Coarse runs the binary sketch prefilter against the centralized
// vector store. If it yields nothing (no embeddings built yet, or the
// vector store is absent), it falls back to a dense HNSW search and
// finally to a plain exact-FTS seed, each documented via the returned
// fallback tag (spec.md §4.9 stage 1 fallback chain).
func (e *Engine) stage1Coarse(ctx context.Context, dirs []collectedDir, query string, limit int) ([]SearchResult, string) {
	k := limit * 4
	if k < 20 {
		k = 20
	}

	if e.Vectors != nil {
		scored, err := e.Vectors.CoarseCandidatesScored(ctx, query, e.Vectors.SketchBits()/4, k)
		if err == nil && len(scored) > 0 {
			totalBits := e.Vectors.SketchBits()
			out := make([]SearchResult, 0, len(scored))
			for _, c := range scored {
				path, startLine, _, err := e.Vectors.ChunkMetadata(ctx, c.ChunkID)
				if err != nil {
					continue
				}
				score := 1 - float64(c.Distance)/float64(totalBits)
				out = append(out, SearchResult{Path: path, StartLine: startLine, Score: score, Source: "binary_coarse"})
			}
			if len(out) > 0 {
				return out, "binary_coarse"
			}
		}

		matches, err := e.Vectors.SearchSimilar(ctx, query, k)
		if err == nil && len(matches) > 0 {
			out := make([]SearchResult, 0, len(matches))
			for _, m := range matches {
				score := float64(m.Score)
				if score < 0 {
					score = 0
				}
				out = append(out, SearchResult{Path: m.FilePath, Score: score, Source: "dense_fallback"})
			}
			return out, "dense_fallback"
		}
	}

	// Last resort: seed from exact FTS across the collected directories.
	var seeded []SearchResult
	for _, d := range dirs {
		store, err := dirindex.Open(d.indexPath)
		if err != nil {
			continue
		}
		matches, err := store.SearchExact(ctx, query, limit)
		store.Close()
		if err != nil {
			continue
		}
		for _, m := range matches {
			seeded = append(seeded, SearchResult{Path: m.FilePath, Snippet: m.Snippet, Score: m.Score, Source: "fts_seed"})
		}
	}
	return seeded, "fts_seed"
}

// stage2GraphExpand resolves each stage-1 hit to its enclosing symbol and
// expands 1-2 hops outward, either from the precomputed per-directory
// graph_neighbors table or the centralized global relationship graph
// (spec.md §4.9 stage 2). The "realtime" mode that expands via a live
// language server is out of scope (spec.md: "language-server integration
// for 'realtime' graph expansion... only its interface is specified"), so
// it is accepted as a valid Stage2Mode value but resolves to no expansion.
func (e *Engine) stage2GraphExpand(ctx context.Context, dirs []collectedDir, hits []SearchResult, opts QueryOptions) []SearchResult {
	if opts.Stage2Mode == config.Stage2Realtime {
		return nil
	}

	dirByPath := func(path string) (collectedDir, bool) {
		for _, d := range dirs {
			if pathHasPrefix(path, d.sourceDir) {
				return d, true
			}
		}
		return collectedDir{}, false
	}

	var related []SearchResult
	seen := make(map[string]bool)

	for _, h := range hits {
		d, ok := dirByPath(h.Path)
		if !ok {
			continue
		}

		var symbolName string
		store, err := dirindex.Open(d.indexPath)
		if err == nil {
			if sym, found, err := store.SymbolAt(ctx, h.Path, h.StartLine); err == nil && found {
				symbolName = sym.Name
			}
		}

		switch opts.Stage2Mode {
		case config.Stage2GlobalGraph:
			if symbolName != "" && e.Global != nil {
				syms, err := e.Global.RelatedSymbols(ctx, symbolName, opts.MaxGraphHops, opts.Limit)
				if err == nil {
					for _, s := range syms {
						key := s.FilePath + ":" + s.Name
						if seen[key] {
							continue
						}
						seen[key] = true
						related = append(related, SearchResult{
							Path: s.FilePath, SymbolName: s.Name, StartLine: s.StartLine,
							Score: h.Score * 0.8, Source: "graph",
						})
					}
				}
			}
		default: // config.Stage2Precomputed and unrecognized values
			if symbolName != "" && err == nil {
				neighbors, nerr := store.GraphNeighbors(ctx, symbolName, opts.MaxGraphHops)
				if nerr == nil {
					for _, n := range neighbors {
						key := h.Path + ":" + n.NeighborSym
						if seen[key] {
							continue
						}
						seen[key] = true
						related = append(related, SearchResult{
							Path: h.Path, SymbolName: n.NeighborSym,
							Score: h.Score * n.Weight, Source: "graph",
						})
					}
				}
			}
		}
		if err == nil {
			store.Close()
		}
	}
	return related
}

// stage3Cluster hands stage-1 hits to the configured clustering strategy,
// collapsing near-duplicate results to one representative per cluster
// (spec.md §4.9 stage 3, backed by internal/cluster's C10 strategies).
func (e *Engine) stage3Cluster(hits []SearchResult, opts QueryOptions) []SearchResult {
	strategy := clusterStrategyFor(opts.ClusterStrategy)
	candidates := make([]cluster.Candidate, len(hits))
	for i, h := range hits {
		candidates[i] = cluster.Candidate{Path: h.Path, SymbolName: h.SymbolName, StartLine: h.StartLine, Score: h.Score}
	}
	reps := strategy.FitPredict(candidates)

	out := make([]SearchResult, len(reps))
	for i, r := range reps {
		out[i] = SearchResult{Path: r.Path, SymbolName: r.SymbolName, StartLine: r.StartLine, Score: r.Score, Source: "cluster"}
	}
	return out
}

// stage4Rerank optionally reorders clustered results. A true cross-encoder
// rerank calls a remote model, which spec.md names as an out-of-scope
// external collaborator ("remote embedding API clients... only their
// interfaces are specified"); when enabled here it instead applies a
// cheap local heuristic — a 5% score boost for every result whose
// directory also holds at least one other result, followed by a re-sort —
// rather than claiming real cross-encoder semantics.
func (e *Engine) stage4Rerank(results []SearchResult, opts QueryOptions) []SearchResult {
	if !opts.RerankEnabled || len(results) == 0 {
		return results
	}
	dirBoost := make(map[string]int)
	for _, r := range results {
		dirBoost[dirOf(r.Path)]++
	}
	out := append([]SearchResult(nil), results...)
	for i := range out {
		if dirBoost[dirOf(out[i].Path)] > 1 {
			out[i].Score *= 1.05
		}
	}
	sortByScoreDesc(out)
	return out
}

func dirOf(path string) string {
	idx := lastSlash(path)
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

func lastSlash(path string) int {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return i
		}
	}
	return -1
}
