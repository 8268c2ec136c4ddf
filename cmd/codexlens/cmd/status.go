package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codexlens/codexlens/internal/output"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Show registry status for an indexed project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			return runStatus(cmd, root)
		},
	}
	return cmd
}

func runStatus(cmd *cobra.Command, root string) error {
	e, err := openEnv(root)
	if err != nil {
		return err
	}
	defer e.close()

	out := output.New(cmd.OutOrStdout())

	info, ok, err := e.registry.ProjectStats(e.root)
	if err != nil {
		return fmt.Errorf("load project status: %w", err)
	}
	if !ok {
		out.Status("", fmt.Sprintf("%s is not indexed yet; run `codexlens build` first", e.root))
		return nil
	}

	out.Statusf("", "project:      %s", info.SourceRoot)
	out.Statusf("", "index root:   %s", info.IndexRoot)
	out.Statusf("", "status:       %s", info.Status)
	out.Statusf("", "total files:  %d", info.TotalFiles)
	out.Statusf("", "total dirs:   %d", info.TotalDirs)
	if !info.LastIndexed.IsZero() {
		out.Statusf("", "last indexed: %s", info.LastIndexed.Format("2006-01-02 15:04:05"))
	}
	return nil
}
