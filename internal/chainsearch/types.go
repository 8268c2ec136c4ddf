// Package chainsearch implements C9, the chain search engine (spec.md
// §4.9): standard single-pass search across a collected set of per-
// directory indexes, and the four-stage cascade pipeline (binary coarse
// retrieval, graph expansion, clustering, optional rerank).
package chainsearch

import (
	"time"

	"github.com/codexlens/codexlens/internal/config"
)

// SearchResult is one hit, uniform across exact/fuzzy/vector/graph sources.
type SearchResult struct {
	Path       string
	SymbolName string
	StartLine  int
	Score      float64
	Snippet    string
	Source     string // "exact", "fuzzy", "vector", "hybrid", "graph", "binary_coarse", "dense_fallback", "fts_seed", "cluster"
}

// ChainSearchResult is the unified response shape every entry point returns
// (spec.md §4.9: "ChainSearchResult { query, results, related_results,
// symbols, stats }").
type ChainSearchResult struct {
	Query          string
	Results        []SearchResult
	RelatedResults []SearchResult
	Symbols        []string
	Stats          Stats
}

// Stats carries per-stage timings and counts, plus the STAGE_STATS tag
// spec.md §4.9 requires ("record per-stage counts and timings into
// stats.errors as a structured tag STAGE_STATS:<json>").
type Stats struct {
	StageTimings map[string]time.Duration
	StageCounts  map[string]int
	Fallback     string
	Errors       []string
}

func newStats() Stats {
	return Stats{StageTimings: make(map[string]time.Duration), StageCounts: make(map[string]int)}
}

// QueryOptions is the finite enumeration of recognized query options
// (spec.md §6).
type QueryOptions struct {
	Depth             int // -1 = unlimited, 0 = current dir only
	Limit             int
	Offset            int
	FilesOnly         bool
	CodeOnly          bool
	ExcludeExtensions []string
	HybridMode        bool
	EnableFuzzy       bool
	EnableVector      bool
	PureVector        bool
	EnableCascade     bool
	HybridWeights     config.HybridWeights
	RRFConstant       int
	GroupResults      bool
	GroupingThreshold float64
	Stage2Mode        config.Stage2Mode
	ClusterStrategy   config.ClusteringStrategy
	RerankEnabled     bool
	MaxGraphHops      int
}

func (o QueryOptions) withDefaults(cfg config.Config) QueryOptions {
	if o.Limit == 0 {
		o.Limit = 20
	}
	if o.HybridWeights == (config.HybridWeights{}) {
		o.HybridWeights = cfg.HybridWeights
	}
	if o.RRFConstant == 0 {
		o.RRFConstant = cfg.RRFConstant
	}
	if o.Stage2Mode == "" {
		o.Stage2Mode = cfg.Stage2Mode
	}
	if o.ClusterStrategy == "" {
		o.ClusterStrategy = cfg.ClusteringStrategy
	}
	if o.MaxGraphHops == 0 {
		o.MaxGraphHops = cfg.MaxGraphHops
	}
	return o
}

func dedupeByPath(results []SearchResult) []SearchResult {
	best := make(map[string]SearchResult, len(results))
	order := make([]string, 0, len(results))
	for _, r := range results {
		existing, ok := best[r.Path]
		if !ok {
			order = append(order, r.Path)
			best[r.Path] = r
			continue
		}
		if r.Score > existing.Score {
			best[r.Path] = r
		}
	}
	out := make([]SearchResult, 0, len(order))
	for _, p := range order {
		out = append(out, best[p])
	}
	return out
}

type dedupeKey struct {
	path   string
	symbol string
	line   int
}

func dedupeByPathSymbolLine(existing []SearchResult, extra []SearchResult) []SearchResult {
	seen := make(map[dedupeKey]bool, len(existing))
	for _, r := range existing {
		seen[dedupeKey{r.Path, r.SymbolName, r.StartLine}] = true
	}
	out := append([]SearchResult(nil), existing...)
	for _, r := range extra {
		key := dedupeKey{r.Path, r.SymbolName, r.StartLine}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

func applyPaging(results []SearchResult, offset, limit int) []SearchResult {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return nil
	}
	end := len(results)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return results[offset:end]
}
