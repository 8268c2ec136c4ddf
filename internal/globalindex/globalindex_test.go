package globalindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpdateAndSearchSymbols(t *testing.T) {
	store, err := Open("")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.UpdateFileRelationships(ctx, "pkg/a.go",
		[]Symbol{{Name: "DoThing", Kind: "function", StartLine: 1, EndLine: 5}},
		[]Relationship{{SourceSymbol: "<module>", TargetSymbol: "fmt", Type: "IMPORTS", SourceLine: 1}}))

	results, err := store.Search(ctx, "Do", "prefix", "", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "pkg/a.go", results[0].FilePath)

	results, err = store.Search(ctx, "Do", "prefix", "other/", 10)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestDeleteFileRelationshipsClearsSymbols(t *testing.T) {
	store, err := Open("")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.UpdateFileRelationships(ctx, "a.go", []Symbol{{Name: "X", Kind: "function"}}, nil))
	require.NoError(t, store.DeleteFileRelationships(ctx, "a.go"))

	results, err := store.Search(ctx, "X", "exact", "", 10)
	require.NoError(t, err)
	require.Empty(t, results)
}
