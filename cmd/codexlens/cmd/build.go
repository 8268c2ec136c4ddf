package cmd

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/codexlens/codexlens/internal/buildtree"
	"github.com/codexlens/codexlens/internal/config"
	"github.com/codexlens/codexlens/internal/output"
	"github.com/codexlens/codexlens/internal/parser"
)

func newBuildCmd() *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "build [path]",
		Short: "Build or refresh the index tree for a source directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			return runBuild(cmd, root, workers)
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "Worker pool size (0 = auto-detect)")
	return cmd
}

func runBuild(cmd *cobra.Command, root string, workers int) error {
	e, err := openEnv(root)
	if err != nil {
		return err
	}
	defer e.close()

	out := output.New(cmd.OutOrStdout())
	cfg := config.Default()
	if workers > 0 {
		cfg.BuildWorkers = workers
	}

	builder := buildtree.NewBuilder(cfg, e.mapper, e.registry, e.global, parser.NewRegistry())

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(cmd.OutOrStdout()),
		progressbar.OptionSetDescription("indexing"),
		progressbar.OptionClearOnFinish(),
	)
	builder.OnDirBuilt = func(done, total int) {
		if total > 0 && bar.GetMax() != total {
			_ = bar.ChangeMax(total)
		}
		_ = bar.Set(done)
	}

	t0 := time.Now()
	result, err := builder.Build(cmd.Context(), e.root)
	elapsed := time.Since(t0)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	e.recorder.RecordBuild(result.FilesIndexed, result.DirsBuilt, len(result.Errors), elapsed)

	out.Success(fmt.Sprintf("indexed %d files across %d directories in %s", result.FilesIndexed, result.DirsBuilt, elapsed.Round(time.Millisecond)))
	for _, derr := range result.Errors {
		out.Warning(derr.Error())
	}
	return nil
}
