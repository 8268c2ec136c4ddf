package buildtree

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codexlens/codexlens/internal/config"
	"github.com/codexlens/codexlens/internal/globalindex"
	"github.com/codexlens/codexlens/internal/parser"
	"github.com/codexlens/codexlens/internal/pathmap"
	"github.com/codexlens/codexlens/internal/registry"
)

func TestBuildIndexesNestedDirectoriesAndLinksSubdirs(t *testing.T) {
	srcRoot := t.TempDir()
	indexRoot := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "app.py"), []byte(`
class Animal:
    def speak(self):
        pass

class Dog(Animal):
    def speak(self):
        return "woof"
`), 0o644))

	subDir := filepath.Join(srcRoot, "lib")
	require.NoError(t, os.Mkdir(subDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(subDir, "util.py"), []byte(`
def helper():
    return 42
`), 0o644))

	ignoredDir := filepath.Join(srcRoot, "node_modules")
	require.NoError(t, os.Mkdir(ignoredDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ignoredDir, "x.py"), []byte("def x(): pass"), 0o644))

	reg, err := registry.Open("")
	require.NoError(t, err)
	defer reg.Close()

	global, err := globalindex.Open("")
	require.NoError(t, err)
	defer global.Close()

	mapper := pathmap.New(indexRoot)
	builder := NewBuilder(config.Default(), mapper, reg, global, parser.NewRegistry())

	result, err := builder.Build(context.Background(), srcRoot)
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	require.Equal(t, 2, result.DirsBuilt)
	require.Equal(t, 2, result.FilesIndexed)

	rootDB := mapper.SourceToIndexDB(srcRoot)
	require.FileExists(t, rootDB)
	subDB := mapper.SourceToIndexDB(subDir)
	require.FileExists(t, subDB)

	require.NoFileExists(t, filepath.Join(mapper.SourceToIndexDir(ignoredDir), pathmap.IndexDBName))
}

func TestBuildIsIncrementalOnSecondRun(t *testing.T) {
	srcRoot := t.TempDir()
	indexRoot := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "main.go"), []byte(`package main

func main() {}
`), 0o644))

	reg, err := registry.Open("")
	require.NoError(t, err)
	defer reg.Close()
	global, err := globalindex.Open("")
	require.NoError(t, err)
	defer global.Close()

	mapper := pathmap.New(indexRoot)
	builder := NewBuilder(config.Default(), mapper, reg, global, parser.NewRegistry())

	ctx := context.Background()
	first, err := builder.Build(ctx, srcRoot)
	require.NoError(t, err)
	require.Equal(t, 1, first.FilesIndexed)

	second, err := builder.Build(ctx, srcRoot)
	require.NoError(t, err)
	require.Equal(t, 0, second.FilesIndexed)
}
