// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the layer export tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/layerexport/internal/checksum"
	"github.com/starford/layerexport/internal/ledger"
	"github.com/starford/layerexport/internal/manifest"
	"github.com/starford/layerexport/internal/pipeline"
	"github.com/starford/layerexport/internal/storage"
	"github.com/starford/layerexport/internal/svgdoc"
)

const documentCacheSize = 32

// Server wraps the MCP server with the export tools.
type Server struct {
	mcp      *server.MCPServer
	pipeline *pipeline.Pipeline
	store    storage.Provider
	ledger   ledger.Ledger
	logger   *slog.Logger

	// Parsed sources keyed by content checksum. Cached documents are
	// never mutated; every stage works on a copy.
	docs *lru.Cache[string, *svgdoc.Document]
}

// New creates a new MCP server with all tools registered. l may be nil,
// in which case the history tool is not offered.
func New(p *pipeline.Pipeline, store storage.Provider, l ledger.Ledger, logger *slog.Logger) (*Server, error) {
	docs, err := lru.New[string, *svgdoc.Document](documentCacheSize)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: init cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{pipeline: p, store: store, ledger: l, logger: logger, docs: docs}

	s.mcp = server.NewMCPServer(
		"layerexport",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.mcp.AddTool(mcp.NewTool("list_layers",
		mcp.WithDescription("List the layers of an SVG document with their hierarchy and whether they would be exported."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Path to the SVG document")),
	), s.listLayers)

	s.mcp.AddTool(mcp.NewTool("plan_export",
		mcp.WithDescription("Compute the output path of every exported layer without writing anything. "+
			"Reports duplicate paths and existing files as errors."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Path to the SVG document")),
	), s.planExport)

	s.mcp.AddTool(mcp.NewTool("export_layers",
		mcp.WithDescription("Export every selected layer of an SVG document with the configured renderer."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Path to the SVG document")),
	), s.exportLayers)

	s.mcp.AddTool(mcp.NewTool("read_manifest",
		mcp.WithDescription("Read manifest.json from the output directory."),
	), s.readManifest)

	if l != nil {
		s.mcp.AddTool(mcp.NewTool("list_runs",
			mcp.WithDescription("List recent export runs, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 20)")),
		), s.listRuns)
	}

	return s, nil
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// load returns the parsed document at path, from cache when its content is
// unchanged.
func (s *Server) load(path string) (*svgdoc.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	sum := checksum.Sum(data)
	if doc, ok := s.docs.Get(sum); ok {
		return doc, nil
	}
	doc, err := svgdoc.Parse(data)
	if err != nil {
		return nil, err
	}
	s.docs.Add(sum, doc)
	return doc, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listLayers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.load(source)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	infos, err := s.pipeline.Describe(doc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(infos)
}

type plannedEntry struct {
	Order     int    `json:"order"`
	Hierarchy string `json:"hierarchy"`
	Path      string `json:"path"`
}

func (s *Server) planExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.load(source)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	prep, err := s.pipeline.Prepare(doc, s.store)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := make([]plannedEntry, 0, prep.Plan.Len())
	for _, e := range prep.Plan.Entries() {
		out = append(out, plannedEntry{Order: e.Order, Hierarchy: strings.Join(e.Hierarchy, "/"), Path: e.Rel})
	}
	return jsonResult(out)
}

type exportSummary struct {
	RunID    string `json:"run_id"`
	Exported int    `json:"exported"`
	Output   string `json:"output"`
	Manifest string `json:"manifest,omitempty"`
}

func (s *Server) exportLayers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	r, err := s.pipeline.Run(ctx, source, s.store)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(exportSummary{
		RunID:    r.RunID,
		Exported: r.Exported(),
		Output:   r.OutputRoot,
		Manifest: r.ManifestPath,
	})
}

func (s *Server) readManifest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := s.store.Read(manifest.FileName)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", manifest.FileName)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

type runSummary struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	Outputs    int    `json:"outputs"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
}

func (s *Server) listRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)
	runs, err := s.ledger.ListRuns(limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := make([]runSummary, 0, len(runs))
	for _, r := range runs {
		out = append(out, runSummary{
			ID:         r.ID,
			Source:     r.Source,
			Status:     r.Status,
			Error:      r.Error,
			Outputs:    r.Outputs,
			StartedAt:  r.StartedAt.Format(time.RFC3339),
			FinishedAt: r.FinishedAt.Format(time.RFC3339),
		})
	}
	return jsonResult(out)
}
