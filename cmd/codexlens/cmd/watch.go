package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codexlens/codexlens/internal/buildtree"
	"github.com/codexlens/codexlens/internal/config"
	"github.com/codexlens/codexlens/internal/incremental"
	"github.com/codexlens/codexlens/internal/output"
	"github.com/codexlens/codexlens/internal/parser"
	"github.com/codexlens/codexlens/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Watch a source tree and apply incremental index updates as files change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			return runWatch(cmd, root)
		},
	}
	return cmd
}

func runWatch(cmd *cobra.Command, root string) error {
	e, err := openEnv(root)
	if err != nil {
		return err
	}
	defer e.close()

	out := output.New(cmd.OutOrStdout())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fsw := watcher.NewFSWatcher(config.Default(), watcher.DefaultOptions())
	if err := fsw.Start(ctx, e.root); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer fsw.Stop()

	idx := incremental.NewIndexer(e.registry, e.global, parser.NewRegistry(), buildtree.LanguageForFile)

	out.Success(fmt.Sprintf("watching %s for changes (ctrl-c to stop)", e.root))

	for {
		select {
		case <-ctx.Done():
			out.Status("", "stopping watcher")
			return nil
		case fsErr, ok := <-fsw.Errors():
			if !ok {
				return nil
			}
			out.Warning(fsErr.Error())
		case ev, ok := <-fsw.Events():
			if !ok {
				return nil
			}
			applyWatchEvent(ctx, idx, out, ev)
		}
	}
}

func applyWatchEvent(ctx context.Context, idx *incremental.Indexer, out *output.Writer, ev watcher.FileEvent) {
	if ev.IsDir || ev.Operation == watcher.OpGitignoreChange {
		return
	}

	incEvent := incremental.Event{Path: ev.Path, Timestamp: ev.Timestamp}
	switch ev.Operation {
	case watcher.OpCreate:
		incEvent.Type = incremental.Created
	case watcher.OpModify:
		incEvent.Type = incremental.Modified
	case watcher.OpDelete:
		incEvent.Type = incremental.Deleted
	case watcher.OpRename:
		incEvent.Type = incremental.Moved
		incEvent.OldPath = ev.OldPath
	default:
		return
	}

	t0 := time.Now()
	result := idx.ApplyBatch(ctx, []incremental.Event{incEvent})
	if len(result.Errors) > 0 {
		for _, eerr := range result.Errors {
			out.Warning(eerr.Error())
		}
		return
	}
	if result.FilesIndexed > 0 || result.FilesRemoved > 0 {
		out.Statusf("", "%s (%s) in %s", ev.Path, ev.Operation, time.Since(t0).Round(time.Millisecond))
	}
}
