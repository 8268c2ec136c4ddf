package parser

import (
	"bufio"
	"bytes"
	"regexp"
)

// structuredFallback extracts a coarse symbol/relationship set with plain
// line scanning and regexes, used when no AST strategy supports the file's
// language (spec.md §4.3: "a structured line-oriented fallback" — the last
// strategy in the composition chain, always succeeds).
type structuredFallback struct{}

func (structuredFallback) Name() string { return "structured" }

func (structuredFallback) Supports(string) bool { return true }

var (
	reDefLike   = regexp.MustCompile(`^\s*(?:def|function|func)\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	reClassLike = regexp.MustCompile(`^\s*(?:class|type)\s+([A-Za-z_][A-Za-z0-9_]*)\b`)
	reImportGo  = regexp.MustCompile(`^\s*import\s+"([^"]+)"`)
	reImportPy  = regexp.MustCompile(`^\s*(?:import|from)\s+([A-Za-z_][A-Za-z0-9_.]*)`)
)

func (structuredFallback) Parse(text []byte, path, language string) (*ParsedFile, error) {
	result := &ParsedFile{Path: path, Language: language}

	scanner := bufio.NewScanner(bytes.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if m := reDefLike.FindStringSubmatch(line); m != nil {
			result.Symbols = append(result.Symbols, Symbol{
				Name:      m[1],
				Kind:      SymbolFunction,
				StartLine: lineNo,
				EndLine:   lineNo,
			})
			continue
		}
		if m := reClassLike.FindStringSubmatch(line); m != nil {
			result.Symbols = append(result.Symbols, Symbol{
				Name:      m[1],
				Kind:      SymbolClass,
				StartLine: lineNo,
				EndLine:   lineNo,
			})
			continue
		}
		if m := reImportGo.FindStringSubmatch(line); m != nil {
			result.Relationships = append(result.Relationships, Relationship{
				SourceSymbol: ModuleScope,
				TargetSymbol: m[1],
				Type:         RelImports,
				SourceFile:   path,
				SourceLine:   lineNo,
			})
			continue
		}
		if m := reImportPy.FindStringSubmatch(line); m != nil {
			result.Relationships = append(result.Relationships, Relationship{
				SourceSymbol: ModuleScope,
				TargetSymbol: m[1],
				Type:         RelImports,
				SourceFile:   path,
				SourceLine:   lineNo,
			})
		}
	}

	return result, nil
}
