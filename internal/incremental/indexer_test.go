package incremental

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codexlens/codexlens/internal/buildtree"
	"github.com/codexlens/codexlens/internal/config"
	"github.com/codexlens/codexlens/internal/dirindex"
	"github.com/codexlens/codexlens/internal/globalindex"
	"github.com/codexlens/codexlens/internal/parser"
	"github.com/codexlens/codexlens/internal/pathmap"
	"github.com/codexlens/codexlens/internal/registry"
)

func setupBuiltProject(t *testing.T) (srcRoot string, reg *registry.Store, global *globalindex.Store, mapper *pathmap.Mapper) {
	t.Helper()
	srcRoot = t.TempDir()
	indexRoot := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "a.py"), []byte("def a():\n    pass\n"), 0o644))

	var err error
	reg, err = registry.Open("")
	require.NoError(t, err)
	global, err = globalindex.Open("")
	require.NoError(t, err)

	mapper = pathmap.New(indexRoot)
	builder := buildtree.NewBuilder(config.Default(), mapper, reg, global, parser.NewRegistry())
	_, err = builder.Build(context.Background(), srcRoot)
	require.NoError(t, err)
	return srcRoot, reg, global, mapper
}

func TestApplyBatchIndexesModifiedFile(t *testing.T) {
	srcRoot, reg, global, mapper := setupBuiltProject(t)
	defer reg.Close()
	defer global.Close()

	path := filepath.Join(srcRoot, "a.py")
	require.NoError(t, os.WriteFile(path, []byte("def a():\n    pass\n\ndef b():\n    pass\n"), 0o644))

	idx := NewIndexer(reg, global, parser.NewRegistry(), buildtree.LanguageForFile)
	result := idx.ApplyBatch(context.Background(), []Event{{Path: path, Type: Modified}})

	require.Empty(t, result.Errors)
	require.Equal(t, 1, result.FilesIndexed)
	require.Equal(t, 2, result.SymbolsAdded)

	store, err := dirindex.Open(mapper.SourceToIndexDB(srcRoot))
	require.NoError(t, err)
	defer store.Close()
	matches, err := store.SearchSymbols(context.Background(), "b", "exact", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestApplyBatchRemovesDeletedFile(t *testing.T) {
	srcRoot, reg, global, mapper := setupBuiltProject(t)
	defer reg.Close()
	defer global.Close()

	path := filepath.Join(srcRoot, "a.py")
	idx := NewIndexer(reg, global, parser.NewRegistry(), buildtree.LanguageForFile)
	result := idx.ApplyBatch(context.Background(), []Event{{Path: path, Type: Deleted}})

	require.Empty(t, result.Errors)
	require.Equal(t, 1, result.FilesRemoved)

	store, err := dirindex.Open(mapper.SourceToIndexDB(srcRoot))
	require.NoError(t, err)
	defer store.Close()
	matches, err := store.SearchSymbols(context.Background(), "a", "exact", 10)
	require.NoError(t, err)
	require.Empty(t, matches)
}
