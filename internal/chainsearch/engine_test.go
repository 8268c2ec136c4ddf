package chainsearch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codexlens/codexlens/internal/buildtree"
	"github.com/codexlens/codexlens/internal/config"
	"github.com/codexlens/codexlens/internal/globalindex"
	"github.com/codexlens/codexlens/internal/parser"
	"github.com/codexlens/codexlens/internal/pathmap"
	"github.com/codexlens/codexlens/internal/registry"
	"github.com/codexlens/codexlens/internal/vectorstore"
)

func setupEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	srcRoot := t.TempDir()
	indexRoot := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "animals.py"), []byte(
		"class Animal:\n    def speak(self):\n        pass\n\n"+
			"class Dog(Animal):\n    def speak(self):\n        return 'woof'\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(srcRoot, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "lib", "util.py"), []byte(
		"def helper():\n    return Animal()\n"), 0o644))

	reg, err := registry.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })
	global, err := globalindex.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { global.Close() })

	mapper := pathmap.New(indexRoot)
	builder := buildtree.NewBuilder(config.Default(), mapper, reg, global, parser.NewRegistry())
	result, err := builder.Build(context.Background(), srcRoot)
	require.NoError(t, err)
	require.Empty(t, result.Errors)

	vectors, err := vectorstore.Open("", vectorstore.NewStaticEmbedder(64))
	require.NoError(t, err)
	t.Cleanup(func() { vectors.Close() })
	require.NoError(t, vectors.AddChunk(context.Background(), vectorstore.Chunk{
		ID: "c1", FilePath: filepath.Join(srcRoot, "animals.py"), StartLine: 1, EndLine: 3,
		Text: "class Animal speak",
	}))
	require.NoError(t, vectors.AddChunk(context.Background(), vectorstore.Chunk{
		ID: "c2", FilePath: filepath.Join(srcRoot, "lib", "util.py"), StartLine: 1, EndLine: 2,
		Text: "def helper return Animal",
	}))

	engine := NewEngine(config.Default(), reg, mapper, global, vectors)
	return engine, srcRoot
}

func TestSearchFindsExactMatchAcrossSubdirectories(t *testing.T) {
	engine, srcRoot := setupEngine(t)
	result, err := engine.Search(context.Background(), srcRoot, "helper", QueryOptions{Depth: -1})
	require.NoError(t, err)
	require.NotEmpty(t, result.Results)

	var found bool
	for _, r := range result.Results {
		if filepath.Base(r.Path) == "util.py" {
			found = true
		}
	}
	require.True(t, found)
}

func TestSearchRespectsDepthZero(t *testing.T) {
	engine, srcRoot := setupEngine(t)
	result, err := engine.Search(context.Background(), srcRoot, "helper", QueryOptions{Depth: 0})
	require.NoError(t, err)
	for _, r := range result.Results {
		require.Equal(t, filepath.Join(srcRoot, "animals.py"), r.Path)
	}
}

func TestCascadeSearchProducesStageStats(t *testing.T) {
	engine, srcRoot := setupEngine(t)
	result, err := engine.CascadeSearch(context.Background(), srcRoot, "Animal", QueryOptions{Depth: -1, Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, result.Stats.Fallback)

	var sawStageStats bool
	for _, e := range result.Stats.Errors {
		if strings.HasPrefix(e, "STAGE_STATS:") {
			sawStageStats = true
		}
	}
	require.True(t, sawStageStats)
}

func TestCascadeSearchStage2RealtimeModeYieldsNoExpansion(t *testing.T) {
	engine, srcRoot := setupEngine(t)
	result, err := engine.CascadeSearch(context.Background(), srcRoot, "Animal", QueryOptions{
		Depth: -1, Limit: 10, Stage2Mode: config.Stage2Realtime,
	})
	require.NoError(t, err)
	require.Empty(t, result.RelatedResults)
}
