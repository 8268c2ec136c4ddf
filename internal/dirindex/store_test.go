package dirindex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAddFileAndSearchExact(t *testing.T) {
	store, err := Open("")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	file := FileRecord{Path: "pkg/widget.go", Language: "go", Size: 42, ModTime: time.Now(), ContentSHA: "abc"}
	symbols := []SymbolRecord{{FilePath: file.Path, Name: "NewWidget", Kind: "function", StartLine: 10, EndLine: 20}}

	require.NoError(t, store.AddFile(ctx, file, "func NewWidget() *Widget { return &Widget{} }", symbols, nil))

	matches, err := store.SearchExact(ctx, "NewWidget", 10)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	require.Equal(t, file.Path, matches[0].FilePath)

	syms, err := store.SearchSymbols(ctx, "New", "prefix", 10)
	require.NoError(t, err)
	require.Len(t, syms, 1)
}

func TestNeedsReindexDetectsContentChange(t *testing.T) {
	store, err := Open("")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	file := FileRecord{Path: "a.go", Language: "go", ModTime: time.Now(), ContentSHA: "sha1"}
	require.NoError(t, store.AddFile(ctx, file, "package a", nil, nil))

	needs, err := store.NeedsReindex("a.go", "sha1")
	require.NoError(t, err)
	require.False(t, needs)

	needs, err = store.NeedsReindex("a.go", "sha2")
	require.NoError(t, err)
	require.True(t, needs)

	needs, err = store.NeedsReindex("missing.go", "sha1")
	require.NoError(t, err)
	require.True(t, needs)
}

func TestCleanupDeletedFilesRemovesStaleRows(t *testing.T) {
	store, err := Open("")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.AddFile(ctx, FileRecord{Path: "keep.go", ModTime: time.Now()}, "package keep", nil, nil))
	require.NoError(t, store.AddFile(ctx, FileRecord{Path: "gone.go", ModTime: time.Now()}, "package gone", nil, nil))

	removed, err := store.CleanupDeletedFiles(ctx, []string{"keep.go"})
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	needs, err := store.NeedsReindex("gone.go", "anything")
	require.NoError(t, err)
	require.True(t, needs)
}

func TestGraphNeighborsRoundTrip(t *testing.T) {
	store, err := Open("")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SetGraphNeighbors(ctx, "pkg.Foo", []GraphNeighbor{
		{NeighborSym: "pkg.Bar", Hops: 1, Weight: 0.9},
		{NeighborSym: "pkg.Baz", Hops: 2, Weight: 0.4},
	}))

	neighbors, err := store.GraphNeighbors(ctx, "pkg.Foo", 1)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	require.Equal(t, "pkg.Bar", neighbors[0].NeighborSym)
}

func TestSemanticKeywordSearch(t *testing.T) {
	store, err := Open("")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.AddFile(ctx, FileRecord{Path: "auth.go", ModTime: time.Now()}, "package auth", nil, nil))
	require.NoError(t, store.SetSemanticMetadata(ctx, SemanticMetadata{
		FilePath: "auth.go",
		Summary:  "handles login tokens",
		Keywords: []string{"Login", "Token"},
	}))

	matches, err := store.SearchSemanticKeywords(ctx, []string{"token"}, 10)
	require.NoError(t, err)
	require.Contains(t, matches, "auth.go")
}
