package buildtree

import "strings"

// languageByExt maps a supported source extension to the language tag C3's
// parser registry dispatches on (spec.md §4.3/§4.7).
var languageByExt = map[string]string{
	".py":   "python",
	".pyi":  "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".go":   "go",
	".java": "java",
	".rb":   "ruby",
	".rs":   "rust",
	".c":    "c",
	".h":    "c",
	".cc":   "cpp",
	".cpp":  "cpp",
	".hpp":  "cpp",
}

// LanguageForFile returns the language tag for name's extension and whether
// it is a supported, indexable source file (spec.md §4.7 step 2: "a
// directory is indexable iff it contains at least one supported source
// file"). Unsupported extensions still fall through to the structured
// fallback strategy if ever parsed directly, but the builder itself only
// walks files this function recognizes. Exported so C8's incremental
// indexer can classify a changed file the same way C7's walk would have.
func LanguageForFile(name string) (string, bool) {
	ext := strings.ToLower(extOf(name))
	lang, ok := languageByExt[ext]
	return lang, ok
}

func languageForFile(name string) (string, bool) { return LanguageForFile(name) }

func extOf(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i:]
		}
		if name[i] == '/' || name[i] == '\\' {
			break
		}
	}
	return ""
}
