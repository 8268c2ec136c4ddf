// Package parser implements C3, the language-agnostic parser contract
// (spec.md §4.3): given (text, path, language), produce symbols and
// relationships via an AST strategy (preferred), an optional
// pattern-based strategy, or a structured line-oriented fallback.
package parser

// SymbolKind enumerates spec.md §3's Symbol.kind values.
type SymbolKind string

const (
	SymbolFunction SymbolKind = "function"
	SymbolMethod   SymbolKind = "method"
	SymbolClass    SymbolKind = "class"
	SymbolVariable SymbolKind = "variable"
)

// Symbol is spec.md §3's Symbol entity, scoped to a single file.
type Symbol struct {
	Name      string
	Kind      SymbolKind
	StartLine int
	EndLine   int
}

// RelationshipType enumerates spec.md §3's Relationship.type values.
type RelationshipType string

const (
	RelImports  RelationshipType = "IMPORTS"
	RelInherits RelationshipType = "INHERITS"
	RelCall     RelationshipType = "CALL"
)

// Relationship is spec.md §3's Relationship entity.
type Relationship struct {
	SourceSymbol string
	TargetSymbol string
	Type         RelationshipType
	SourceFile   string
	TargetFile   string
	SourceLine   int
}

// ModuleScope is the synthetic root scope name every file-level import and
// call attributes to (spec.md §4.3 Invariants).
const ModuleScope = "<module>"

// ParsedFile is the result of parsing a single file (spec.md §4.3).
type ParsedFile struct {
	Path          string
	Language      string
	Symbols       []Symbol
	Relationships []Relationship
}

// Strategy is the uniform parse trait every parser backend implements
// (spec.md §9: "Dynamic dispatch over parser backends" — a tagged variant
// with a uniform parse trait, composed by callers with a
// try-in-order / empty-result-is-valid policy).
type Strategy interface {
	// Name identifies the strategy for logging/stats (ast, pattern, structured).
	Name() string
	// Supports reports whether this strategy has an implementation for language.
	Supports(language string) bool
	// Parse extracts symbols and relationships. Failure of one strategy must
	// never propagate to the caller; returning (nil, err) only signals "try
	// the next strategy", never an empty ParsedFile being the same as
	// failure — an empty result is a valid, successful parse.
	Parse(text []byte, path, language string) (*ParsedFile, error)
}

// isSelfLike reports whether base is one of the receiver-like identifiers
// whose calls are dropped per spec.md §4.3 Invariants ("self", "cls", "super").
func isSelfLike(base string) bool {
	switch base {
	case "self", "cls", "super":
		return true
	default:
		return false
	}
}
