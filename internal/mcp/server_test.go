package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codexlens/codexlens/internal/buildtree"
	"github.com/codexlens/codexlens/internal/config"
	"github.com/codexlens/codexlens/internal/parser"
	"github.com/codexlens/codexlens/internal/vectorstore"
)

func setupServer(t *testing.T) (*Server, string) {
	t.Helper()
	srcRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "animals.py"), []byte(
		"class Animal:\n    def speak(self):\n        pass\n"), 0o644))

	srv, err := NewServer(srcRoot, config.Default())
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	builder := buildtree.NewBuilder(config.Default(), srv.engine.Mapper, srv.registry, srv.global, parser.NewRegistry())
	_, err = builder.Build(context.Background(), srcRoot)
	require.NoError(t, err)

	require.NoError(t, srv.vectors.AddChunk(context.Background(), vectorstore.Chunk{
		ID: "c1", FilePath: filepath.Join(srcRoot, "animals.py"), StartLine: 1, EndLine: 3,
		Text: "class Animal speak",
	}))

	return srv, srcRoot
}

func TestHandleSearchReturnsResults(t *testing.T) {
	srv, _ := setupServer(t)
	_, out, err := srv.handleSearch(context.Background(), nil, SearchInput{Query: "Animal"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)
}

func TestHandleSearchRejectsEmptyQuery(t *testing.T) {
	srv, _ := setupServer(t)
	_, _, err := srv.handleSearch(context.Background(), nil, SearchInput{})
	require.Error(t, err)
	toolErr, ok := err.(*ToolError)
	require.True(t, ok)
	require.Equal(t, ErrCodeInvalidParams, toolErr.Code)
}

func TestHandleCascadeSearchReturnsResults(t *testing.T) {
	srv, _ := setupServer(t)
	_, out, err := srv.handleCascadeSearch(context.Background(), nil, CascadeSearchInput{
		SearchInput: SearchInput{Query: "Animal", Limit: 10},
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)
}

func TestHandleIndexStatusReportsIndexedProject(t *testing.T) {
	srv, srcRoot := setupServer(t)
	_, out, err := srv.handleIndexStatus(context.Background(), nil, IndexStatusInput{Path: srcRoot})
	require.NoError(t, err)
	require.True(t, out.Indexed)
	require.Equal(t, "static", out.EmbeddingModel)
}

func TestHandleIndexStatusReportsUnindexedProject(t *testing.T) {
	srv, _ := setupServer(t)
	other := t.TempDir()
	_, out, err := srv.handleIndexStatus(context.Background(), nil, IndexStatusInput{Path: other})
	require.NoError(t, err)
	require.False(t, out.Indexed)
}
