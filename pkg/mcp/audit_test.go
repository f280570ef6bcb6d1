package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-insight/pkg/audit"
)

func newObservedAuditor() (*AuditLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewAuditLogger(zap.New(core)), logs
}

func callRequest(name string, args map[string]any) *mcplib.CallToolRequest {
	req := &mcplib.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func TestAuditLogger_SuccessfulCall(t *testing.T) {
	a, logs := newObservedAuditor()
	ctx := audit.WithClientIP(context.Background(), "10.1.1.1")
	req := callRequest("ask_dataset", map[string]any{"query": "GST on 12 Jan 2025"})

	a.beforeCallTool(ctx, 7, req)
	a.afterCallTool(ctx, 7, req, mcplib.NewToolResultText(`{"outcome":"answered","message":"Total GST amount: 540.00 (from 2 rows)."}`))

	if logs.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", logs.Len())
	}
	entry := logs.All()[0]
	if entry.Message != "MCP tool call" || entry.Level != zapcore.InfoLevel {
		t.Errorf("unexpected entry %q at %s", entry.Message, entry.Level)
	}
	fields := entry.ContextMap()
	if fields["tool"] != "ask_dataset" {
		t.Errorf("tool = %v", fields["tool"])
	}
	if fields["outcome"] != "answered" {
		t.Errorf("outcome = %v", fields["outcome"])
	}
	if fields["client_ip"] != "10.1.1.1" {
		t.Errorf("client_ip = %v", fields["client_ip"])
	}
	if _, ok := a.startTimes.Load(7); ok {
		t.Error("start time should be released after the call")
	}
}

func TestAuditLogger_ErrorResultIsWarning(t *testing.T) {
	a, logs := newObservedAuditor()
	req := callRequest("describe_dataset", nil)

	result := mcplib.NewToolResultText(`{"error":true,"code":"no_active_dataset","message":"No spreadsheet has been uploaded yet"}`)
	result.IsError = true
	a.afterCallTool(context.Background(), 1, req, result)

	entry := logs.All()[0]
	if entry.Level != zapcore.WarnLevel {
		t.Errorf("level = %s, want warn", entry.Level)
	}
	summary := entry.ContextMap()["result_summary"].(map[string]any)
	if summary["error_code"] != "no_active_dataset" {
		t.Errorf("error_code = %v", summary["error_code"])
	}
}

func TestAuditLogger_OnError(t *testing.T) {
	a, logs := newObservedAuditor()
	req := callRequest("ask_dataset", map[string]any{"query": "gst"})

	a.onError(context.Background(), 1, mcplib.MethodToolsList, req, errors.New("ignored"))
	if logs.Len() != 0 {
		t.Fatal("only tools/call errors are audited")
	}

	a.onError(context.Background(), 1, mcplib.MethodToolsCall, req, errors.New("dial postgres://ekaya:hunter2@db:5432 failed"))
	if logs.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", logs.Len())
	}
	fields := logs.All()[0].ContextMap()
	if fields["event_type"] != EventToolError {
		t.Errorf("event_type = %v", fields["event_type"])
	}
	if strings.Contains(fields["error"].(string), "hunter2") {
		t.Error("credentials leaked into the audit log")
	}
}

func TestSanitizeParams(t *testing.T) {
	if sanitizeParams(nil) != nil {
		t.Error("nil input should give nil")
	}

	got := sanitizeParams(map[string]any{
		"query":          "gst   on\n12 jan",
		"original_query": strings.Repeat("q", 300),
		"api_key":        "sk-live-123",
		"confirmed":      true,
		"nested":         map[string]any{"password": "pw"},
	})

	if got["query"] != "gst on 12 jan" {
		t.Errorf("query = %q", got["query"])
	}
	if len(got["original_query"].(string)) != 103 {
		t.Errorf("original_query should be truncated, got length %d", len(got["original_query"].(string)))
	}
	if hashed := got["api_key"].(string); !strings.HasPrefix(hashed, "sha256:") || len(hashed) != len("sha256:")+16 {
		t.Errorf("api_key = %q", hashed)
	}
	if got["api_key"] != hashSensitiveValue("sk-live-123") {
		t.Error("hash must be deterministic")
	}
	if got["confirmed"] != true {
		t.Errorf("confirmed = %v", got["confirmed"])
	}
	if nested := got["nested"].(map[string]any); !strings.HasPrefix(nested["password"].(string), "sha256:") {
		t.Errorf("nested password = %v", nested["password"])
	}
}

func TestSummarizeResult(t *testing.T) {
	if summarizeResult(nil) != nil {
		t.Error("nil result should give nil summary")
	}

	summary := summarizeResult(mcplib.NewToolResultText(`{"dataset_version_id":"x","row_count":3}`))
	if summary["row_count"] != 3 {
		t.Errorf("row_count = %v", summary["row_count"])
	}
	if _, ok := summary["outcome"]; ok {
		t.Error("no outcome in payload")
	}

	long := summarizeResult(mcplib.NewToolResultText(strings.Repeat("x", 500)))
	if preview := long["preview"].(string); len(preview) != maxPreviewLength+3 {
		t.Errorf("preview length = %d", len(preview))
	}
}
