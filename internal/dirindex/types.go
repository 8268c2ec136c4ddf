// Package dirindex implements C4, the per-directory SQLite index store
// (spec.md §4.4): one SQLite database per source directory holding the
// directory's files, symbols, relationships, subdirectory links, semantic
// metadata/keywords, and the precomputed graph_neighbors table consumed by
// the chain search engine's stage-2 graph expansion.
package dirindex

import "time"

// FileRecord mirrors spec.md §3's File entity.
type FileRecord struct {
	Path       string
	Language   string
	Size       int64
	ModTime    time.Time
	ContentSHA string
	MerkleLeaf string
}

// SymbolRecord mirrors spec.md §3's Symbol entity, persisted per file.
type SymbolRecord struct {
	ID        int64
	FilePath  string
	Name      string
	Kind      string
	StartLine int
	EndLine   int
}

// RelationshipRecord mirrors spec.md §3's Relationship entity.
type RelationshipRecord struct {
	SourceSymbol string
	TargetSymbol string
	Type         string
	SourceFile   string
	TargetFile   string
	SourceLine   int
}

// SubdirRecord links a directory index to an immediate child directory's
// own index database (spec.md §4.4 "subdirs").
type SubdirRecord struct {
	Name      string
	IndexPath string
}

// GraphNeighbor is one precomputed 1-2 hop neighbor edge (spec.md §4.9
// stage-2 "precomputed" mode consumes this table directly).
type GraphNeighbor struct {
	Symbol      string
	NeighborSym string
	Hops        int
	Weight      float64
}

// SemanticMetadata is the free-form keyword/summary annotation attached to
// a file (spec.md §C: contextual keyword pass supplementing the distilled
// spec with the original implementation's LLM-assisted keyword extraction).
type SemanticMetadata struct {
	FilePath string
	Summary  string
	Keywords []string
}

// ExactMatch is one files_fts_exact hit.
type ExactMatch struct {
	FilePath string
	Score    float64
	Snippet  string
}

// FuzzyMatch is one files_fts_fuzzy hit.
type FuzzyMatch struct {
	FilePath string
	Score    float64
}

// SymbolMatch is one search_symbols hit.
type SymbolMatch struct {
	Symbol SymbolRecord
}
