// Package config loads CodexLens' process-wide configuration: a JSON
// settings file merged with an optional YAML layer and a .env-style
// override file, the way the teacher repo layers YAML, env vars, and
// defaults (internal/config/config.go). Settings serialization itself is
// out of spec.md's core scope; this package owns only the in-memory shape
// and the merge precedence.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/codexlens/codexlens/internal/cerrors"
)

// ClusteringStrategy names a C10 stage-3 strategy.
type ClusteringStrategy string

const (
	ClusterNoop      ClusteringStrategy = "noop"
	ClusterScore     ClusteringStrategy = "score"
	ClusterPath      ClusteringStrategy = "path"
	ClusterDirRR     ClusteringStrategy = "dir_rr"
	ClusterFrequency ClusteringStrategy = "frequency"
	ClusterDBSCAN    ClusteringStrategy = "dbscan"
	ClusterHDBSCAN   ClusteringStrategy = "hdbscan"
	ClusterAuto      ClusteringStrategy = "auto"
)

// Stage2Mode names a C9 stage-2 graph expansion mode.
type Stage2Mode string

const (
	Stage2Precomputed  Stage2Mode = "precomputed"
	Stage2Realtime     Stage2Mode = "realtime"
	Stage2GlobalGraph  Stage2Mode = "static_global_graph"
)

// Config is the merged, validated CodexLens configuration.
type Config struct {
	// IgnoreDirs are directory names the builder never descends into
	// (spec.md §4.7 step 2).
	IgnoreDirs []string `yaml:"ignore_dirs" json:"ignore_dirs"`

	// BuildWorkers overrides min(CPU, 16) worker-pool sizing for C7. Zero
	// means auto-detect.
	BuildWorkers int `yaml:"build_workers" json:"build_workers"`

	// FTSFuzzyTrigramSize is the character n-gram width for files_fts_fuzzy.
	FTSFuzzyTrigramSize int `yaml:"fts_fuzzy_trigram_size" json:"fts_fuzzy_trigram_size"`

	// VectorDimension is the model-locked embedding width (spec.md §3 ModelLock).
	VectorDimension int `yaml:"vector_dimension" json:"vector_dimension"`
	// EmbeddingModel names the active embedder backing the ModelLock.
	EmbeddingModel string `yaml:"embedding_model" json:"embedding_model"`

	// Hybrid RRF weights (vector, exact, fuzzy); see spec.md §6 hybrid_weights.
	HybridWeights HybridWeights `yaml:"hybrid_weights" json:"hybrid_weights"`
	RRFConstant   int           `yaml:"rrf_constant" json:"rrf_constant"`

	// Cascade defaults.
	CascadeCoarseK     int                `yaml:"cascade_coarse_k" json:"cascade_coarse_k"`
	ClusteringStrategy ClusteringStrategy `yaml:"clustering_strategy" json:"clustering_strategy"`
	Stage2Mode         Stage2Mode         `yaml:"stage2_mode" json:"stage2_mode"`
	RerankEnabled      bool               `yaml:"rerank_enabled" json:"rerank_enabled"`

	// MaxGraphHops bounds graph_neighbors depth (spec.md §4.7 step 6, fixed at 2).
	MaxGraphHops int `yaml:"max_graph_hops" json:"max_graph_hops"`
}

// HybridWeights controls the fusion weight of each signal in standard
// hybrid search (spec.md §6 hybrid_weights).
type HybridWeights struct {
	Vector float64 `yaml:"vector" json:"vector"`
	Exact  float64 `yaml:"exact" json:"exact"`
	Fuzzy  float64 `yaml:"fuzzy" json:"fuzzy"`
}

// defaultIgnoreDirs matches spec.md §4.7's IGNORE_DIRS set.
var defaultIgnoreDirs = []string{
	".git", ".venv", "venv", "node_modules", "__pycache__",
	".codexlens", ".idea", ".vscode",
}

// Default returns the built-in configuration defaults.
func Default() Config {
	return Config{
		IgnoreDirs:          append([]string(nil), defaultIgnoreDirs...),
		BuildWorkers:        0,
		FTSFuzzyTrigramSize: 3,
		VectorDimension:     256,
		EmbeddingModel:      "static",
		HybridWeights:       HybridWeights{Vector: 0.5, Exact: 0.3, Fuzzy: 0.2},
		RRFConstant:         60,
		CascadeCoarseK:      100,
		ClusteringStrategy:  ClusterAuto,
		Stage2Mode:          Stage2Precomputed,
		RerankEnabled:       false,
		MaxGraphHops:        2,
	}
}

// Workers resolves the effective build worker-pool size: the configured
// override, or min(CPU, 16) as spec.md §4.7/§9 require.
func (c Config) Workers() int {
	if c.BuildWorkers > 0 {
		return c.BuildWorkers
	}
	n := runtime.NumCPU()
	if n > 16 {
		return 16
	}
	if n < 1 {
		return 1
	}
	return n
}

// IsIgnoredDir reports whether name is a skipped directory: a dotfile or a
// member of IgnoreDirs (spec.md §4.7 step 2).
func (c Config) IsIgnoredDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, dir := range c.IgnoreDirs {
		if dir == name {
			return true
		}
	}
	return false
}

// Load reads a JSON settings file (if path is non-empty and exists),
// optionally merges a sibling YAML file, then applies .env-style
// overrides, in that precedence order over Default().
func Load(jsonPath, envPath string) (Config, error) {
	cfg := Default()

	if jsonPath != "" {
		if data, err := os.ReadFile(jsonPath); err == nil {
			if err := json.Unmarshal(data, &cfg); err != nil {
				return cfg, cerrors.ConfigError("invalid JSON settings file: "+jsonPath, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, cerrors.ConfigError("cannot read settings file: "+jsonPath, err)
		}

		yamlPath := strings.TrimSuffix(jsonPath, filepath.Ext(jsonPath)) + ".yaml"
		if data, err := os.ReadFile(yamlPath); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, cerrors.ConfigError("invalid YAML settings file: "+yamlPath, err)
			}
		}
	}

	if envPath != "" {
		overrides, err := parseDotEnv(envPath)
		if err != nil {
			return cfg, err
		}
		applyEnvOverrides(&cfg, overrides)
	}

	return cfg, nil
}

// parseDotEnv parses a .env-style file: KEY=VALUE lines, "#" comments, an
// optional "export " prefix, and single/double quote stripping
// (spec.md §6 Settings).
func parseDotEnv(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, cerrors.ConfigError("cannot read .env override file: "+path, err)
	}

	result := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		line = strings.TrimSpace(line)

		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		value = unquote(value)
		if key != "" {
			result[key] = value
		}
	}
	return result, nil
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// knownEnvKeys is used to warn-and-ignore unknown keys (spec.md §6).
var knownEnvKeys = map[string]func(*Config, string){
	"CODEXLENS_VECTOR_DIMENSION": func(c *Config, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			c.VectorDimension = n
		}
	},
	"CODEXLENS_EMBEDDING_MODEL": func(c *Config, v string) { c.EmbeddingModel = v },
	"CODEXLENS_CASCADE_COARSE_K": func(c *Config, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			c.CascadeCoarseK = n
		}
	},
	"CODEXLENS_RRF_CONSTANT": func(c *Config, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			c.RRFConstant = n
		}
	},
	"CODEXLENS_BUILD_WORKERS": func(c *Config, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			c.BuildWorkers = n
		}
	},
	"CODEXLENS_RERANK_ENABLED": func(c *Config, v string) {
		c.RerankEnabled = v == "1" || strings.EqualFold(v, "true")
	},
}

func applyEnvOverrides(cfg *Config, overrides map[string]string) {
	for key, value := range overrides {
		if apply, ok := knownEnvKeys[key]; ok {
			apply(cfg, value)
		}
		// Unknown keys are warned-and-ignored by the caller's logger, not here;
		// this package stays side-effect free for testability.
	}
}

// UnknownEnvKeys reports which keys in overrides this package does not
// recognize, so callers can log a warning (spec.md §6: "Unknown keys are
// warned and ignored").
func UnknownEnvKeys(overrides map[string]string) []string {
	var unknown []string
	for key := range overrides {
		if _, ok := knownEnvKeys[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	return unknown
}
