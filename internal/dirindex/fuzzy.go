package dirindex

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"

	"github.com/codexlens/codexlens/internal/cerrors"
)

const (
	trigramTokenizerName = "codexlens_trigram"
	trigramAnalyzerName  = "codexlens_trigram_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(trigramTokenizerName, trigramTokenizerConstructor)
}

// fuzzyDoc is the bleve document shape for one indexed file's content.
type fuzzyDoc struct {
	Content string `json:"content"`
}

// fuzzyIndex wraps a bleve index configured with a character-trigram
// analyzer, giving files_fts_fuzzy typo- and substring-tolerant recall that
// the word-boundary files_fts_exact FTS5 table can't provide (spec.md §4.4).
type fuzzyIndex struct {
	mu   sync.RWMutex
	bidx bleve.Index
}

func newFuzzyIndex(dirPath string) (*fuzzyIndex, error) {
	m, err := trigramMapping()
	if err != nil {
		return nil, cerrors.StorageError("build fuzzy index mapping", err)
	}

	var idx bleve.Index
	if dirPath == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		fuzzyPath := filepath.Join(filepath.Dir(dirPath), ".fuzzy.bleve")
		idx, err = bleve.Open(fuzzyPath)
		if err == bleve.ErrorIndexPathDoesNotExist {
			if mkErr := os.MkdirAll(filepath.Dir(fuzzyPath), 0o755); mkErr != nil {
				return nil, cerrors.StorageError("create fuzzy index dir", mkErr)
			}
			idx, err = bleve.New(fuzzyPath, m)
		}
	}
	if err != nil {
		return nil, cerrors.StorageError("open fuzzy index", err)
	}

	return &fuzzyIndex{bidx: idx}, nil
}

func trigramMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(trigramAnalyzerName, map[string]any{
		"type":          custom.Name,
		"tokenizer":     trigramTokenizerName,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, err
	}
	im.DefaultAnalyzer = trigramAnalyzerName
	return im, nil
}

func (f *fuzzyIndex) index(path, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.bidx.Index(path, fuzzyDoc{Content: content}); err != nil {
		return cerrors.StorageError("fuzzy index write", err)
	}
	return nil
}

func (f *fuzzyIndex) delete(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.bidx.Delete(path); err != nil {
		return cerrors.StorageError("fuzzy index delete", err)
	}
	return nil
}

func (f *fuzzyIndex) search(ctx context.Context, query string, limit int) ([]FuzzyMatch, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	q := bleve.NewMatchQuery(query)
	q.SetField("content")
	req := bleve.NewSearchRequest(q)
	req.Size = limit

	result, err := f.bidx.SearchInContext(ctx, req)
	if err != nil {
		return nil, cerrors.SearchError("fuzzy search", err)
	}

	out := make([]FuzzyMatch, 0, len(result.Hits))
	for _, hit := range result.Hits {
		out = append(out, FuzzyMatch{FilePath: hit.ID, Score: hit.Score})
	}
	return out, nil
}

func (f *fuzzyIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.bidx.Close(); err != nil {
		return cerrors.StorageError("close fuzzy index", err)
	}
	return nil
}

func trigramTokenizerConstructor(_ map[string]any, _ *registry.Cache) (analysis.Tokenizer, error) {
	return &trigramTokenizer{}, nil
}

// trigramTokenizer splits input into overlapping 3-character tokens so the
// default bleve match query can find near and partial matches a word-level
// tokenizer would miss (e.g. "HttpHander" → "htt","ttp","tpH"... catches
// "HttpHandler" on an 80% character overlap).
type trigramTokenizer struct{}

func (t *trigramTokenizer) Tokenize(input []byte) analysis.TokenStream {
	runes := []rune(string(input))
	if len(runes) < 3 {
		if len(runes) == 0 {
			return analysis.TokenStream{}
		}
		return analysis.TokenStream{{
			Term:     input,
			Start:    0,
			End:      len(input),
			Position: 1,
			Type:     analysis.AlphaNumeric,
		}}
	}

	var stream analysis.TokenStream
	pos := 1
	for i := 0; i+3 <= len(runes); i++ {
		term := string(runes[i : i+3])
		stream = append(stream, &analysis.Token{
			Term:     []byte(term),
			Start:    i,
			End:      i + 3,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
	}
	return stream
}
