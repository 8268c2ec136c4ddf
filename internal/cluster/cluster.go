// Package cluster implements C10, the stage-3 clustering and
// representative-selection strategies of the chain search engine
// (spec.md §4.10). Each strategy is deterministic given identical inputs
// and returns at most one representative per cluster.
package cluster

import (
	"math"
	"path/filepath"
	"sort"
)

// Candidate is one search result entering stage 3, the minimal shape every
// strategy needs: where it is, how it scored, and (for density-based
// strategies) its embedding.
type Candidate struct {
	Path       string
	SymbolName string
	StartLine  int
	Score      float64
	Embedding  []float32
}

// Strategy selects representatives from a candidate set (spec.md §4.10:
// "fit_predict(embeddings, results) -> representatives[]").
type Strategy interface {
	Name() string
	FitPredict(candidates []Candidate) []Candidate
}

// Name constants matching config.ClusteringStrategy values.
const (
	Noop      = "noop"
	Score     = "score"
	Path      = "path"
	DirRR     = "dir_rr"
	Frequency = "frequency"
	DBSCAN    = "dbscan"
	HDBSCAN   = "hdbscan"
	Auto      = "auto"
)

// New resolves a strategy by name. If name is unknown and fallback is
// true, it resolves to Auto (spec.md §4.10: "Unknown strategy names
// resolve to auto when the fallback flag is set").
func New(name string, fallback bool) Strategy {
	switch name {
	case Noop, "":
		return noopStrategy{}
	case Score:
		return scoreStrategy{}
	case Path:
		return pathStrategy{}
	case DirRR:
		return dirRRStrategy{}
	case Frequency:
		return frequencyStrategy{}
	case DBSCAN:
		return dbscanStrategy{eps: 0.25, minPoints: 2}
	case HDBSCAN:
		return hdbscanStrategy{minClusterSize: 2}
	case Auto:
		return autoStrategy{}
	default:
		if fallback {
			return autoStrategy{}
		}
		return noopStrategy{}
	}
}

// noopStrategy / scoreStrategy both return every candidate sorted by score,
// highest first, with ties kept in input order; neither drops candidates,
// so no top-N cut-off is applied here.
type noopStrategy struct{}

func (noopStrategy) Name() string { return Noop }
func (noopStrategy) FitPredict(candidates []Candidate) []Candidate {
	return sortedByScore(candidates)
}

type scoreStrategy struct{}

func (scoreStrategy) Name() string { return Score }
func (scoreStrategy) FitPredict(candidates []Candidate) []Candidate {
	return sortedByScore(candidates)
}

// pathStrategy dedupes by file path, keeping the best-scored hit per file.
type pathStrategy struct{}

func (pathStrategy) Name() string { return Path }
func (pathStrategy) FitPredict(candidates []Candidate) []Candidate {
	best := make(map[string]Candidate)
	for _, c := range candidates {
		if existing, ok := best[c.Path]; !ok || c.Score > existing.Score {
			best[c.Path] = c
		}
	}
	out := make([]Candidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	return sortedByScore(out)
}

// dirRRStrategy round-robins across directories, best-scored first within
// each directory, so results don't all cluster in one busy package.
type dirRRStrategy struct{}

func (dirRRStrategy) Name() string { return DirRR }
func (dirRRStrategy) FitPredict(candidates []Candidate) []Candidate {
	byDir := make(map[string][]Candidate)
	var dirs []string
	for _, c := range candidates {
		dir := filepath.Dir(c.Path)
		if _, ok := byDir[dir]; !ok {
			dirs = append(dirs, dir)
		}
		byDir[dir] = append(byDir[dir], c)
	}
	sort.Strings(dirs)
	for _, dir := range dirs {
		byDir[dir] = sortedByScore(byDir[dir])
	}

	var out []Candidate
	for {
		progressed := false
		for _, dir := range dirs {
			if len(byDir[dir]) == 0 {
				continue
			}
			out = append(out, byDir[dir][0])
			byDir[dir] = byDir[dir][1:]
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return out
}

// frequencyStrategy clusters by rounding embeddings to a coarse grid and
// keeping the best-scored candidate per grid cell, a cheap density
// approximation that avoids an O(N^2) pairwise pass.
type frequencyStrategy struct{}

func (frequencyStrategy) Name() string { return Frequency }
func (frequencyStrategy) FitPredict(candidates []Candidate) []Candidate {
	const bucketWidth = 0.1
	best := make(map[string]Candidate)
	for _, c := range candidates {
		key := gridKey(c.Embedding, bucketWidth)
		if existing, ok := best[key]; !ok || c.Score > existing.Score {
			best[key] = c
		}
	}
	out := make([]Candidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	return sortedByScore(out)
}

func gridKey(vec []float32, width float64) string {
	key := make([]byte, 0, len(vec)*4)
	for _, v := range vec {
		bucket := int(math.Floor(float64(v) / width))
		key = append(key, byte(bucket), byte(bucket>>8), byte(bucket>>16), byte(bucket>>24))
	}
	return string(key)
}

func sortedByScore(candidates []Candidate) []Candidate {
	out := append([]Candidate(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
