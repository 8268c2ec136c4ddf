package parser

import (
	"fmt"
	"regexp"
)

// PatternRule is one declarative relationship rule: any line matching Match
// emits a relationship of Type from the current module scope to the first
// capture group (spec.md §9 design note: a pattern-based strategy that
// "replaces relationship extraction only" — it never produces symbols, and
// callers fall back to the AST strategy silently on any error).
type PatternRule struct {
	Match *regexp.Regexp
	Type  RelationshipType
}

// patternStrategy is optional and must be constructed explicitly with a rule
// set; factory.go never registers it by default because it has no symbol
// extraction of its own.
type patternStrategy struct {
	language string
	rules    []PatternRule
}

// NewPatternStrategy builds a declarative relationship-only strategy for a
// single language. An empty rule set is rejected so callers don't silently
// register a no-op strategy.
func NewPatternStrategy(language string, rules []PatternRule) (Strategy, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("parser: pattern strategy for %q needs at least one rule", language)
	}
	return &patternStrategy{language: language, rules: rules}, nil
}

func (p *patternStrategy) Name() string { return "pattern" }

func (p *patternStrategy) Supports(language string) bool { return language == p.language }

// Parse never returns symbols: a pattern strategy augments relationship
// extraction only, by design (spec.md §9); callers that need symbols must
// pair it with an AST or structured strategy.
func (p *patternStrategy) Parse(text []byte, path, language string) (*ParsedFile, error) {
	result := &ParsedFile{Path: path, Language: language}

	lineStart := 0
	line := 1
	for i, b := range text {
		if b != '\n' && i != len(text)-1 {
			continue
		}
		end := i
		if b == '\n' {
			end = i
		} else {
			end = i + 1
		}
		segment := text[lineStart:end]
		for _, rule := range p.rules {
			if m := rule.Match.FindSubmatch(segment); m != nil && len(m) > 1 {
				result.Relationships = append(result.Relationships, Relationship{
					SourceSymbol: ModuleScope,
					TargetSymbol: string(m[1]),
					Type:         rule.Type,
					SourceFile:   path,
					SourceLine:   line,
				})
			}
		}
		lineStart = i + 1
		line++
	}

	return result, nil
}
