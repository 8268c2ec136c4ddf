package chainsearch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codexlens/codexlens/internal/config"
	"github.com/codexlens/codexlens/internal/dirindex"
)

// Search runs the standard (non-cascade) search: exact and/or fuzzy over
// every collected directory index via a worker pool, optionally fused with
// a centralized vector search (spec.md §4.9 "standard search"). Per
// spec.md §5, the exact/fuzzy fan-out uses the configured thread pool;
// the vector and hybrid fusion paths run single-threaded across indexes
// to avoid concurrent access to the one shared ANN graph.
func (e *Engine) Search(ctx context.Context, sourcePath, query string, opts QueryOptions) (*ChainSearchResult, error) {
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

	var exactHits, fuzzyHits []SearchResult
	if !opts.PureVector {
		t0 := time.Now()
		exactHits, fuzzyHits = e.fanOutTextSearch(ctx, dirs, query, opts, &stats)
		stats.StageTimings["text_search"] = time.Since(t0)
	}

	var vectorHits []SearchResult
	if opts.EnableVector || opts.PureVector || opts.HybridMode {
		t0 := time.Now()
		vectorHits, err = e.runVectorSearch(ctx, dirs, query, opts.Limit*4)
		if err != nil {
			stats.Errors = append(stats.Errors, "vector search: "+err.Error())
		}
		stats.StageTimings["vector_search"] = time.Since(t0)
		stats.StageCounts["vector_hits"] = len(vectorHits)
	}

	var fused []SearchResult
	switch {
	case opts.PureVector:
		fused = vectorHits
	case opts.HybridMode:
		fused = fuseRRF(opts.RRFConstant, opts.HybridWeights, exactHits, fuzzyHits, vectorHits)
	default:
		fused = dedupeByPath(append(append([]SearchResult(nil), exactHits...), fuzzyHits...))
	}

	paged := applyPaging(fused, opts.Offset, opts.Limit)
	return &ChainSearchResult{
		Query:   query,
		Results: paged,
		Symbols: symbolNames(paged),
		Stats:   stats,
	}, nil
}

// fanOutTextSearch runs exact (+ optional fuzzy) search across every
// collected directory concurrently, bounded by the configured worker pool.
func (e *Engine) fanOutTextSearch(ctx context.Context, dirs []collectedDir, query string, opts QueryOptions, stats *Stats) ([]SearchResult, []SearchResult) {
	var mu sync.Mutex
	var exact, fuzzy []SearchResult

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Cfg.Workers())
	for _, d := range dirs {
		d := d
		g.Go(func() error {
			store, err := dirindex.Open(d.indexPath)
			if err != nil {
				mu.Lock()
				stats.Errors = append(stats.Errors, d.indexPath+": "+err.Error())
				mu.Unlock()
				return nil
			}
			defer store.Close()

			exactMatches, err := store.SearchExact(gctx, query, opts.Limit)
			if err != nil {
				mu.Lock()
				stats.Errors = append(stats.Errors, "exact "+d.indexPath+": "+err.Error())
				mu.Unlock()
			}

			var fuzzyMatches []dirindex.FuzzyMatch
			if opts.EnableFuzzy || opts.HybridMode {
				fuzzyMatches, err = store.SearchFuzzy(gctx, query, opts.Limit)
				if err != nil {
					mu.Lock()
					stats.Errors = append(stats.Errors, "fuzzy "+d.indexPath+": "+err.Error())
					mu.Unlock()
				}
			}

			mu.Lock()
			for _, m := range exactMatches {
				exact = append(exact, SearchResult{Path: m.FilePath, Score: m.Score, Snippet: m.Snippet, Source: "exact"})
			}
			for _, m := range fuzzyMatches {
				fuzzy = append(fuzzy, SearchResult{Path: m.FilePath, Score: m.Score, Source: "fuzzy"})
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	stats.StageCounts["exact_hits"] = len(exact)
	stats.StageCounts["fuzzy_hits"] = len(fuzzy)
	return exact, fuzzy
}

// runVectorSearch queries the single centralized vector store, then keeps
// only hits whose file path falls under one of the collected directories
// (the vector store spans the whole project, not one directory).
func (e *Engine) runVectorSearch(ctx context.Context, dirs []collectedDir, query string, k int) ([]SearchResult, error) {
	if e.Vectors == nil {
		return nil, nil
	}
	matches, err := e.Vectors.SearchSimilar(ctx, query, k)
	if err != nil {
		return nil, err
	}

	allowed := make([]string, 0, len(dirs))
	for _, d := range dirs {
		allowed = append(allowed, d.sourceDir)
	}

	out := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		if !underAnyDir(m.FilePath, allowed) {
			continue
		}
		out = append(out, SearchResult{Path: m.FilePath, Score: float64(m.Score), Source: "vector"})
	}
	return out, nil
}

func underAnyDir(path string, dirs []string) bool {
	for _, dir := range dirs {
		if pathHasPrefix(path, dir) {
			return true
		}
	}
	return false
}

func symbolNames(results []SearchResult) []string {
	var names []string
	seen := make(map[string]bool)
	for _, r := range results {
		if r.SymbolName != "" && !seen[r.SymbolName] {
			seen[r.SymbolName] = true
			names = append(names, r.SymbolName)
		}
	}
	return names
}

// fuseRRF combines ranked result lists via weighted reciprocal-rank fusion
// (spec.md §6 hybrid_weights: "vector/exact/fuzzy signals fused by RRF with
// per-signal weights").
func fuseRRF(k int, weights config.HybridWeights, exact, fuzzy, vector []SearchResult) []SearchResult {
	if k <= 0 {
		k = 60
	}
	scores := make(map[string]float64)
	snippet := make(map[string]string)
	source := make(map[string]string)

	add := func(results []SearchResult, weight float64, src string) {
		for rank, r := range results {
			scores[r.Path] += weight / float64(k+rank+1)
			if snippet[r.Path] == "" && r.Snippet != "" {
				snippet[r.Path] = r.Snippet
			}
			if source[r.Path] == "" {
				source[r.Path] = src
			} else if source[r.Path] != src {
				source[r.Path] = "hybrid"
			}
		}
	}
	add(exact, weights.Exact, "exact")
	add(fuzzy, weights.Fuzzy, "fuzzy")
	add(vector, weights.Vector, "vector")

	out := make([]SearchResult, 0, len(scores))
	for path, score := range scores {
		out = append(out, SearchResult{Path: path, Score: score, Snippet: snippet[path], Source: source[path]})
	}
	sortByScoreDesc(out)
	return out
}
