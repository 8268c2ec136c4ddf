// Package cmd provides the CLI commands for codexlens. The CLI layer
// itself only wires flags to the library packages underneath it — per
// spec.md, the command parser is an external collaborator whose
// interface is specified here, not a place for search/index logic to
// live.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/codexlens/codexlens/internal/buildlock"
	"github.com/codexlens/codexlens/internal/config"
	"github.com/codexlens/codexlens/internal/globalindex"
	"github.com/codexlens/codexlens/internal/logging"
	"github.com/codexlens/codexlens/internal/pathmap"
	"github.com/codexlens/codexlens/internal/registry"
	"github.com/codexlens/codexlens/internal/telemetry"
	"github.com/codexlens/codexlens/internal/vectorstore"
)

const dataDirName = ".codexlens"

var (
	debugMode   bool
	metricsAddr string
)

// NewRootCmd creates the root command for the codexlens CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "codexlens",
		Short: "Local code indexing and search engine",
		Long: `codexlens builds a mirrored, hierarchical index tree over a source
tree and answers structured + semantic code search queries against it,
entirely locally.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := "info"
			if debugMode {
				level = "debug"
			}
			logging.Setup(logging.Config{Level: level})
			return nil
		},
	}

	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")

	root.AddCommand(newBuildCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newMCPCmd())

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// env bundles every store a command needs, opened against one project
// root's .codexlens data directory.
type env struct {
	root      string
	dataDir   string
	mapper    *pathmap.Mapper
	registry  *registry.Store
	global    *globalindex.Store
	vectors   *vectorstore.Store
	recorder  *telemetry.Recorder
	lock      *buildlock.Lock
	metricsCh chan error
}

func openEnv(root string) (*env, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	dataDir := filepath.Join(root, dataDirName)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	lock := buildlock.New(dataDir)
	acquired, err := lock.TryAcquire()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, fmt.Errorf("another codexlens process is already writing to %s (lock held at %s)", dataDir, lock.Path())
	}

	reg, err := registry.Open(filepath.Join(dataDir, "registry.db"))
	if err != nil {
		_ = lock.Release()
		return nil, err
	}
	global, err := globalindex.Open(filepath.Join(dataDir, "global.db"))
	if err != nil {
		reg.Close()
		_ = lock.Release()
		return nil, err
	}
	cfg := config.Default()
	embedder := vectorstore.NewStaticEmbedder(cfg.VectorDimension)
	vectors, err := vectorstore.Open(filepath.Join(dataDir, "vectors_meta.db"), embedder)
	if err != nil {
		reg.Close()
		global.Close()
		_ = lock.Release()
		return nil, err
	}

	e := &env{
		root:     root,
		dataDir:  dataDir,
		mapper:   pathmap.New(filepath.Join(dataDir, "index")),
		registry: reg,
		global:   global,
		vectors:  vectors,
		recorder: telemetry.New(),
		lock:     lock,
	}

	if metricsAddr != "" {
		ch := make(chan error, 1)
		e.metricsCh = ch
		go func() {
			slog.Info("metrics server starting", slog.String("addr", metricsAddr))
			ch <- e.recorder.Serve(context.Background(), metricsAddr)
		}()
	}

	return e, nil
}

func (e *env) close() {
	e.vectors.Close()
	e.global.Close()
	e.registry.Close()
	_ = e.lock.Release()
}
