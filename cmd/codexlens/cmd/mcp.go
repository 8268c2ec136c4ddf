package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codexlens/codexlens/internal/config"
	"github.com/codexlens/codexlens/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp [path]",
		Short: "Serve an MCP tool server over stdio for AI clients (Claude Code, Cursor, etc.)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			return runMCP(cmd, root)
		},
	}
	return cmd
}

func runMCP(cmd *cobra.Command, root string) error {
	srv, err := mcp.NewServer(root, config.Default())
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Serve(ctx)
}
