package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/layerexport/internal/layers"
	"github.com/starford/layerexport/internal/ledger"
	"github.com/starford/layerexport/internal/pipeline"
	"github.com/starford/layerexport/internal/plan"
	"github.com/starford/layerexport/internal/storage"
	"github.com/starford/layerexport/internal/testutil"
)

func testServer(t *testing.T) (*Server, storage.Provider, string) {
	t.Helper()

	_, store := testutil.TestStore(t)
	db, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.DiscardHandler)
	p := pipeline.New(pipeline.Options{
		Plan: plan.Options{
			Naming:       plan.Naming{Separator: "/", Strategy: plan.StrategyRight, TopHierarchyFirst: true},
			Extension:    "png",
			Template:     "[HIERARCHY][LAYER_NAME]",
			CounterStart: 1,
		},
		PreserveClones: true,
		SkipPrefix:     "_",
		Mode:           layers.OnlyLeaf,
		Manifest:       true,
		Workers:        2,
		ChunkSize:      1,
	}, &testutil.CopyRunner{}, logger, &ledger.Recorder{Ledger: db, Store: store, Logger: logger})

	srv, err := New(p, store, db, logger)
	if err != nil {
		t.Fatal(err)
	}
	src := testutil.WriteFile(t, t.TempDir(), "drawing.svg", testutil.LayeredSVG)
	return srv, store, src
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_layers":
		result, err = srv.listLayers(ctx, req)
	case "plan_export":
		result, err = srv.planExport(ctx, req)
	case "export_layers":
		result, err = srv.exportLayers(ctx, req)
	case "read_manifest":
		result, err = srv.readManifest(ctx, req)
	case "list_runs":
		result, err = srv.listRuns(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListLayers(t *testing.T) {
	srv, _, src := testServer(t)

	r := callTool(t, srv, "list_layers", map[string]interface{}{"source": src})
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(r))
	}
	var infos []layers.Info
	if err := json.Unmarshal([]byte(resultText(r)), &infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 5 {
		t.Errorf("expected 5 layers, got %d", len(infos))
	}
	if srv.docs.Len() != 1 {
		t.Errorf("expected the parsed source to be cached")
	}

	// Second call hits the cache.
	callTool(t, srv, "list_layers", map[string]interface{}{"source": src})
	if srv.docs.Len() != 1 {
		t.Errorf("cache grew on unchanged source")
	}
}

func TestPlanExportWritesNothing(t *testing.T) {
	srv, store, src := testServer(t)

	r := callTool(t, srv, "plan_export", map[string]interface{}{"source": src})
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(r))
	}
	var entries []plannedEntry
	if err := json.Unmarshal([]byte(resultText(r)), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 3 || entries[0].Path != "A/B/C.png" || entries[0].Hierarchy != "A/B/C" {
		t.Errorf("unexpected plan: %+v", entries)
	}
	if ok, _ := store.Exists("A"); ok {
		t.Error("plan_export must not create output directories")
	}
}

func TestExportThenReadManifestAndRuns(t *testing.T) {
	srv, store, src := testServer(t)

	r := callTool(t, srv, "export_layers", map[string]interface{}{"source": src})
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(r))
	}
	var summary exportSummary
	if err := json.Unmarshal([]byte(resultText(r)), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.Exported != 3 || summary.RunID == "" {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if ok, _ := store.Exists("E.png"); !ok {
		t.Error("E.png not written")
	}

	r = callTool(t, srv, "read_manifest", map[string]interface{}{})
	if !strings.Contains(resultText(r), `"name": "E"`) {
		t.Errorf("manifest = %q", resultText(r))
	}

	r = callTool(t, srv, "list_runs", map[string]interface{}{"limit": 5})
	var runs []runSummary
	if err := json.Unmarshal([]byte(resultText(r)), &runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != summary.RunID || runs[0].Outputs != 3 {
		t.Errorf("unexpected runs: %+v", runs)
	}
}

func TestExportConflictIsToolError(t *testing.T) {
	srv, store, src := testServer(t)
	_ = store.Write("E.png", []byte("old"))

	r := callTool(t, srv, "export_layers", map[string]interface{}{"source": src})
	if !r.IsError {
		t.Fatal("expected tool error for existing output")
	}
	if !strings.Contains(resultText(r), "E.png") {
		t.Errorf("error should name the path: %q", resultText(r))
	}
}

func TestReadManifestMissing(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "read_manifest", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error for missing manifest")
	}
}

func TestMissingSource(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "list_layers", map[string]interface{}{"source": "/nonexistent/drawing.svg"})
	if !r.IsError {
		t.Error("expected error for missing source")
	}
	r = callTool(t, srv, "plan_export", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error for missing argument")
	}
}
