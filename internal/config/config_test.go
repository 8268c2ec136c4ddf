package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIgnoresDotfilesAndKnownDirs(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.IsIgnoredDir(".git"))
	assert.True(t, cfg.IsIgnoredDir("node_modules"))
	assert.True(t, cfg.IsIgnoredDir(".hidden"))
	assert.False(t, cfg.IsIgnoredDir("src"))
}

func TestWorkersCapsAtSixteen(t *testing.T) {
	cfg := Default()
	cfg.BuildWorkers = 64
	assert.Equal(t, 64, cfg.Workers())

	cfg.BuildWorkers = 0
	assert.LessOrEqual(t, cfg.Workers(), 16)
	assert.GreaterOrEqual(t, cfg.Workers(), 1)
}

func TestLoadMergesJSONThenDotEnv(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "settings.json")
	envPath := filepath.Join(dir, ".env")

	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"vector_dimension": 512}`), 0o644))
	require.NoError(t, os.WriteFile(envPath, []byte("# comment\nexport CODEXLENS_CASCADE_COARSE_K=\"250\"\nCODEXLENS_UNKNOWN_KEY=1\n"), 0o644))

	cfg, err := Load(jsonPath, envPath)
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.VectorDimension)
	assert.Equal(t, 250, cfg.CascadeCoarseK)
}

func TestUnknownEnvKeysReported(t *testing.T) {
	unknown := UnknownEnvKeys(map[string]string{
		"CODEXLENS_RRF_CONSTANT": "80",
		"SOME_OTHER_TOOL_VAR":    "x",
	})
	assert.Equal(t, []string{"SOME_OTHER_TOOL_VAR"}, unknown)
}
