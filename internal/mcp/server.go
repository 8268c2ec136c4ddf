package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	gosdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codexlens/codexlens/internal/buildlock"
	"github.com/codexlens/codexlens/internal/chainsearch"
	"github.com/codexlens/codexlens/internal/config"
	"github.com/codexlens/codexlens/internal/globalindex"
	"github.com/codexlens/codexlens/internal/pathmap"
	"github.com/codexlens/codexlens/internal/registry"
	"github.com/codexlens/codexlens/internal/telemetry"
	"github.com/codexlens/codexlens/internal/vectorstore"
	"github.com/codexlens/codexlens/pkg/version"
)

const dataDirName = ".codexlens"

// Server is the MCP server for codexlens. It bridges AI clients (Claude
// Code, Cursor, and similar tool-calling assistants) to C9's chain search
// engine, parallel to the cmd/codexlens CLI's own `search` command.
type Server struct {
	mcp      *gosdk.Server
	logger   *slog.Logger
	root     string
	lock     *buildlock.Lock
	registry *registry.Store
	global   *globalindex.Store
	vectors  *vectorstore.Store
	engine   *chainsearch.Engine
	recorder *telemetry.Recorder
}

// SearchInput is the shared input shape for the search and cascade_search
// tools.
type SearchInput struct {
	Query      string `json:"query" jsonschema:"the search query to execute"`
	Path       string `json:"path,omitempty" jsonschema:"directory to search from, relative to the project root; defaults to the root itself"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 20"`
	Depth      int    `json:"depth,omitempty" jsonschema:"subdirectory depth to search, -1 for unlimited (default)"`
	Hybrid     bool   `json:"hybrid,omitempty" jsonschema:"fuse exact/fuzzy/vector results via RRF"`
	Fuzzy      bool   `json:"fuzzy,omitempty" jsonschema:"include fuzzy (trigram) matches"`
	VectorOnly bool   `json:"vector_only,omitempty" jsonschema:"search only the semantic vector index"`
	CodeOnly   bool   `json:"code_only,omitempty" jsonschema:"accepted and passed to the engine, which does not filter results on it"`
}

// CascadeSearchInput adds the cascade-only knobs to SearchInput.
type CascadeSearchInput struct {
	SearchInput
	Rerank bool `json:"rerank,omitempty" jsonschema:"apply the stage-4 local rerank heuristic"`
}

// SearchOutput is the shared output shape for the search and
// cascade_search tools.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"ranked search results"`
}

// SearchResultOutput is one search hit.
type SearchResultOutput struct {
	Path       string  `json:"path" jsonschema:"file path relative to the project root"`
	SymbolName string  `json:"symbol_name,omitempty" jsonschema:"enclosing symbol name, if known"`
	StartLine  int     `json:"start_line,omitempty" jsonschema:"1-based start line of the match"`
	Score      float64 `json:"score" jsonschema:"relevance score"`
	Snippet    string  `json:"snippet,omitempty" jsonschema:"matched text snippet"`
	Source     string  `json:"source" jsonschema:"which stage/backend produced this hit"`
}

// IndexStatusInput selects the project to report on.
type IndexStatusInput struct {
	Path string `json:"path,omitempty" jsonschema:"project root to report status for; defaults to the server's root"`
}

// IndexStatusOutput reports whether a project is indexed and the embedder
// currently locked to its vector store.
type IndexStatusOutput struct {
	Indexed             bool   `json:"indexed"`
	SourceRoot          string `json:"source_root,omitempty"`
	Status              string `json:"status,omitempty"`
	TotalFiles          int    `json:"total_files"`
	TotalDirs           int    `json:"total_dirs"`
	LastIndexed         string `json:"last_indexed,omitempty"`
	VectorCount         int    `json:"vector_count"`
	EmbeddingModel      string `json:"embedding_model"`
	EmbeddingDimensions int    `json:"embedding_dimensions"`
}

// NewServer opens the project stores rooted at root and constructs an MCP
// server over C9's chain search engine. Callers own the returned Server's
// lifecycle and must call Close when done serving.
func NewServer(root string, cfg config.Config) (*Server, error) {
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
	embedder := vectorstore.NewStaticEmbedder(cfg.VectorDimension)
	vectors, err := vectorstore.Open(filepath.Join(dataDir, "vectors_meta.db"), embedder)
	if err != nil {
		reg.Close()
		global.Close()
		_ = lock.Release()
		return nil, err
	}

	mapper := pathmap.New(filepath.Join(dataDir, "index"))
	engine := chainsearch.NewEngine(cfg, reg, mapper, global, vectors)

	s := &Server{
		logger:   slog.Default(),
		root:     root,
		lock:     lock,
		registry: reg,
		global:   global,
		vectors:  vectors,
		engine:   engine,
		recorder: telemetry.New(),
	}

	s.mcp = gosdk.NewServer(&gosdk.Implementation{
		Name:    "codexlens",
		Version: version.Version,
	}, nil)
	s.registerTools()

	return s, nil
}

// Close releases the server's stores and cross-process lock.
func (s *Server) Close() error {
	s.vectors.Close()
	s.global.Close()
	s.registry.Close()
	return s.lock.Release()
}

// Serve runs the server over stdio until ctx is canceled (spec.md names
// the transport and session plumbing as external collaborators; codexlens
// only ever speaks stdio, the same transport cmd/codexlens itself runs
// under when invoked by an MCP-aware client).
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("root", s.root))
	err := s.mcp.Run(ctx, &gosdk.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}

func (s *Server) registerTools() {
	gosdk.AddTool(s.mcp, &gosdk.Tool{
		Name:        "search",
		Description: "Search an indexed codebase with codexlens' standard single-pass engine (exact/fuzzy/vector, optionally fused via RRF).",
	}, s.handleSearch)

	gosdk.AddTool(s.mcp, &gosdk.Tool{
		Name:        "cascade_search",
		Description: "Search an indexed codebase with codexlens' 4-stage cascade pipeline (binary coarse retrieval, graph expansion, clustering, optional rerank). Slower but surfaces related symbols alongside direct hits.",
	}, s.handleCascadeSearch)

	gosdk.AddTool(s.mcp, &gosdk.Tool{
		Name:        "index_status",
		Description: "Report whether a project has been indexed and which embedding model its vector store is locked to.",
	}, s.handleIndexStatus)

	s.logger.Debug("MCP tools registered", slog.Int("count", 3))
}

func (s *Server) handleSearch(ctx context.Context, _ *gosdk.CallToolRequest, input SearchInput) (*gosdk.CallToolResult, SearchOutput, error) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query is required")
	}
	path := input.Path
	if path == "" {
		path = s.root
	}
	opts := chainsearch.QueryOptions{
		Limit:        input.Limit,
		Depth:        input.Depth,
		HybridMode:   input.Hybrid,
		EnableFuzzy:  input.Fuzzy,
		PureVector:   input.VectorOnly,
		EnableVector: input.VectorOnly || input.Hybrid,
		CodeOnly:     input.CodeOnly,
	}
	if opts.Depth == 0 {
		opts.Depth = -1
	}

	start := time.Now()
	result, err := s.engine.Search(ctx, path, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	s.recorder.RecordSearch(result.Stats)
	s.logger.Info("search completed", slog.String("query", input.Query), slog.Duration("duration", time.Since(start)), slog.Int("result_count", len(result.Results)))

	return nil, toSearchOutput(result), nil
}

func (s *Server) handleCascadeSearch(ctx context.Context, _ *gosdk.CallToolRequest, input CascadeSearchInput) (*gosdk.CallToolResult, SearchOutput, error) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query is required")
	}
	path := input.Path
	if path == "" {
		path = s.root
	}
	opts := chainsearch.QueryOptions{
		Limit:         input.Limit,
		Depth:         input.Depth,
		RerankEnabled: input.Rerank,
		CodeOnly:      input.CodeOnly,
	}
	if opts.Depth == 0 {
		opts.Depth = -1
	}

	start := time.Now()
	result, err := s.engine.CascadeSearch(ctx, path, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}
	s.recorder.RecordSearch(result.Stats)
	s.logger.Info("cascade_search completed", slog.String("query", input.Query), slog.Duration("duration", time.Since(start)), slog.Int("result_count", len(result.Results)))

	return nil, toSearchOutput(result), nil
}

func (s *Server) handleIndexStatus(_ context.Context, _ *gosdk.CallToolRequest, input IndexStatusInput) (*gosdk.CallToolResult, *IndexStatusOutput, error) {
	root := input.Path
	if root == "" {
		root = s.root
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, MapError(err)
	}

	out := &IndexStatusOutput{
		VectorCount:         s.vectors.Count(),
		EmbeddingModel:      "static",
		EmbeddingDimensions: s.vectors.Dimensions(),
	}

	info, ok, err := s.registry.ProjectStats(root)
	if err != nil {
		return nil, nil, MapError(err)
	}
	out.Indexed = ok
	if ok {
		out.SourceRoot = info.SourceRoot
		out.Status = info.Status
		out.TotalFiles = info.TotalFiles
		out.TotalDirs = info.TotalDirs
		if !info.LastIndexed.IsZero() {
			out.LastIndexed = info.LastIndexed.Format(time.RFC3339)
		}
	}
	return nil, out, nil
}

func toSearchOutput(result *chainsearch.ChainSearchResult) SearchOutput {
	out := SearchOutput{Results: make([]SearchResultOutput, 0, len(result.Results))}
	for _, r := range result.Results {
		out.Results = append(out.Results, SearchResultOutput{
			Path: r.Path, SymbolName: r.SymbolName, StartLine: r.StartLine,
			Score: r.Score, Snippet: r.Snippet, Source: r.Source,
		})
	}
	return out
}
