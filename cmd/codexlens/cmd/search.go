package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codexlens/codexlens/internal/chainsearch"
	"github.com/codexlens/codexlens/internal/config"
	"github.com/codexlens/codexlens/internal/output"
)

type searchOptions struct {
	limit      int
	depth      int
	hybrid     bool
	fuzzy      bool
	vectorOnly bool
	cascade    bool
	path       string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search an indexed codebase",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVar(&opts.path, "path", ".", "Directory to search from")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().IntVar(&opts.depth, "depth", -1, "Subdirectory depth to search (-1 = unlimited)")
	cmd.Flags().BoolVar(&opts.hybrid, "hybrid", false, "Fuse exact/fuzzy/vector results via RRF")
	cmd.Flags().BoolVar(&opts.fuzzy, "fuzzy", false, "Include fuzzy (trigram) matches")
	cmd.Flags().BoolVar(&opts.vectorOnly, "vector-only", false, "Search only the semantic vector index")
	cmd.Flags().BoolVar(&opts.cascade, "cascade", false, "Run the 4-stage cascade search pipeline")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	e, err := openEnv(opts.path)
	if err != nil {
		return err
	}
	defer e.close()

	engine := chainsearch.NewEngine(config.Default(), e.registry, e.mapper, e.global, e.vectors)
	qopts := chainsearch.QueryOptions{
		Limit:        opts.limit,
		Depth:        opts.depth,
		HybridMode:   opts.hybrid,
		EnableFuzzy:  opts.fuzzy,
		PureVector:   opts.vectorOnly,
		EnableVector: opts.vectorOnly || opts.hybrid,
	}

	var result *chainsearch.ChainSearchResult
	if opts.cascade {
		result, err = engine.CascadeSearch(cmd.Context(), opts.path, query, qopts)
	} else {
		result, err = engine.Search(cmd.Context(), opts.path, query, qopts)
	}
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	e.recorder.RecordSearch(result.Stats)

	out := output.New(cmd.OutOrStdout())
	if len(result.Results) == 0 {
		out.Status("", fmt.Sprintf("no results for %q", query))
		return nil
	}
	out.Statusf("", "%d results for %q:", len(result.Results), query)
	for i, r := range result.Results {
		loc := r.Path
		if r.StartLine > 0 {
			loc = fmt.Sprintf("%s:%d", r.Path, r.StartLine)
		}
		out.Statusf("", "%d. %s (score %.3f, %s)", i+1, loc, r.Score, r.Source)
		if r.Snippet != "" {
			out.Status("", "   "+r.Snippet)
		}
	}
	return nil
}
