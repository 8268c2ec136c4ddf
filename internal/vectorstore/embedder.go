package vectorstore

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"unicode"
)

// Embedder is the minimal interface C6 needs from any embedding backend;
// the only implementation carried by this module is the deterministic
// StaticEmbedder, chosen because it needs no network call or model
// download (spec.md §4.6 Non-goals exclude a model download manager, but
// the vector store must still have something to embed with).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	ModelName() string
}

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var (
	embedTokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)
	embedStopWords  = map[string]bool{
		"func": true, "function": true, "def": true, "class": true,
		"return": true, "import": true, "const": true, "var": true,
		"let": true, "int": true, "string": true, "bool": true,
		"void": true, "true": true, "false": true, "nil": true,
		"null": true, "this": true, "self": true, "new": true,
	}
)

// StaticEmbedder is a hash-based deterministic embedder: identical text
// always yields the identical vector, with no external dependency
// (grounded on the teacher's internal/embed/static.go).
type StaticEmbedder struct {
	dimensions int
}

// NewStaticEmbedder builds a static embedder projecting into dims
// dimensions (spec.md §4.6 VECTOR_DIMENSION).
func NewStaticEmbedder(dims int) *StaticEmbedder {
	return &StaticEmbedder{dimensions: dims}
}

func (e *StaticEmbedder) Dimensions() int  { return e.dimensions }
func (e *StaticEmbedder) ModelName() string { return "static" }

func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, e.dimensions), nil
	}
	return normalizeVector(e.generateVector(trimmed)), nil
}

func (e *StaticEmbedder) generateVector(text string) []float32 {
	vector := make([]float32, e.dimensions)

	tokens := tokenizeForEmbedding(text)
	for _, token := range tokens {
		if embedStopWords[token] {
			continue
		}
		vector[hashToIndex(token, e.dimensions)] += tokenWeight
	}

	normalized := normalizeForNgrams(text)
	for _, ngram := range extractNgrams(normalized, ngramSize) {
		vector[hashToIndex(ngram, e.dimensions)] += ngramWeight
	}

	return vector
}

func tokenizeForEmbedding(text string) []string {
	var tokens []string
	for _, word := range embedTokenRegex.FindAllString(text, -1) {
		for _, t := range splitCamelAndSnake(word) {
			if lower := strings.ToLower(t); lower != "" {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

func splitCamelAndSnake(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamelCase(part)...)
			}
		}
		return result
	}
	return splitCamelCase(token)
}

func splitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}
	var result []string
	var current strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

func normalizeForNgrams(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func extractNgrams(text string, n int) []string {
	if len(text) < n {
		return []string{}
	}
	ngrams := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		ngrams = append(ngrams, text[i:i+n])
	}
	return ngrams
}

func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = val * inv
	}
	return out
}
