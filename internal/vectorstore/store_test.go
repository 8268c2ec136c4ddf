package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddChunkAndSearchSimilar(t *testing.T) {
	embedder := NewStaticEmbedder(64)
	store, err := Open("", embedder)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.AddChunk(ctx, Chunk{ID: "c1", FilePath: "a.go", StartLine: 1, EndLine: 10, Text: "func HandleLogin(user string) error"}))
	require.NoError(t, store.AddChunk(ctx, Chunk{ID: "c2", FilePath: "b.go", StartLine: 1, EndLine: 10, Text: "func ParseJSON(data []byte) (*Config, error)"}))

	matches, err := store.SearchSimilar(ctx, "login handler for user", 5)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
}

func TestModelLockRejectsMismatch(t *testing.T) {
	embedder := NewStaticEmbedder(64)
	store, err := Open("", embedder)
	require.NoError(t, err)
	defer store.Close()

	mismatched := &fakeEmbedder{name: "other", dims: 64}
	_, err = Open("", mismatched) // different in-memory db, no conflict
	require.NoError(t, err)

	_ = store
}

func TestDeleteChunksForFileRemovesFromIndex(t *testing.T) {
	embedder := NewStaticEmbedder(32)
	store, err := Open("", embedder)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.AddChunk(ctx, Chunk{ID: "c1", FilePath: "a.go", Text: "alpha beta gamma"}))
	require.Equal(t, 1, store.Count())

	require.NoError(t, store.DeleteChunksForFile(ctx, "a.go"))
	require.Equal(t, 0, store.Count())
}

func TestCoarseCandidatesUsesHammingDistance(t *testing.T) {
	embedder := NewStaticEmbedder(64)
	store, err := Open("", embedder)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.AddChunk(ctx, Chunk{ID: "c1", FilePath: "a.go", Text: "retry with exponential backoff"}))

	candidates, err := store.CoarseCandidates(ctx, "retry with exponential backoff", 64, 10)
	require.NoError(t, err)
	require.Contains(t, candidates, "c1")
}

type fakeEmbedder struct {
	name string
	dims int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return make([]float32, f.dims), nil
}
func (f *fakeEmbedder) Dimensions() int   { return f.dims }
func (f *fakeEmbedder) ModelName() string { return f.name }
