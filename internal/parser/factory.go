package parser

import "github.com/codexlens/codexlens/internal/cerrors"

// Registry composes Strategy implementations in priority order: the AST
// strategy is tried first for any language it supports, an optional
// pattern strategy may augment relationships, and the structured
// line-oriented fallback always succeeds last (spec.md §9: "try in order,
// empty result is valid" — a strategy returning zero symbols/relationships
// is a successful parse, not a failure to be retried).
type Registry struct {
	ast        []Strategy
	pattern    []Strategy
	structured Strategy
}

// NewRegistry builds the default registry: AST strategies for Python and
// JavaScript/TypeScript, and the structured fallback for everything else.
func NewRegistry() *Registry {
	return &Registry{
		ast:        []Strategy{astPython{}, astJavaScript{}},
		structured: structuredFallback{},
	}
}

// WithPattern registers an additional declarative pattern strategy whose
// relationships are merged into whatever the AST/structured strategy found.
func (r *Registry) WithPattern(s Strategy) *Registry {
	r.pattern = append(r.pattern, s)
	return r
}

// Parse runs the best-supporting AST strategy for language, merges in any
// matching pattern strategy's relationships, and falls back to the
// structured strategy if no AST strategy supports the language or the AST
// strategy itself errors.
func (r *Registry) Parse(text []byte, path, language string) (*ParsedFile, error) {
	result, err := r.parseWithBest(text, path, language)
	if err != nil {
		return nil, err
	}

	for _, p := range r.pattern {
		if !p.Supports(language) {
			continue
		}
		extra, perr := p.Parse(text, path, language)
		if perr != nil {
			// Pattern strategies are additive only; a broken rule set must
			// never take down an otherwise-successful AST/structured parse.
			continue
		}
		result.Relationships = append(result.Relationships, extra.Relationships...)
	}

	return result, nil
}

func (r *Registry) parseWithBest(text []byte, path, language string) (*ParsedFile, error) {
	for _, s := range r.ast {
		if !s.Supports(language) {
			continue
		}
		parsed, err := s.Parse(text, path, language)
		if err == nil {
			return parsed, nil
		}
		// AST parse failed (e.g. malformed source); fall through to the
		// structured strategy rather than propagating the error.
	}

	parsed, err := r.structured.Parse(text, path, language)
	if err != nil {
		return nil, cerrors.ParseError("structured fallback parse of "+path, err)
	}
	return parsed, nil
}
