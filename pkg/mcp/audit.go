package mcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insight/pkg/audit"
	"github.com/ekaya-inc/ekaya-insight/pkg/logging"
)

// Tool call event types.
const (
	EventToolCall  = "tool_call"
	EventToolError = "tool_error"
)

// maxPreviewLength bounds the result preview kept in an audit entry.
const maxPreviewLength = 200

var sensitiveParamKeywords = []string{"password", "secret", "token", "api_key", "apikey", "credential"}

// AuditLogger records every MCP tool call as a structured audit log entry.
type AuditLogger struct {
	logger *zap.Logger

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

// NewAuditLogger creates an AuditLogger that records MCP events.
func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	return &AuditLogger{logger: logger.Named("mcp-audit")}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (a *AuditLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(a.beforeCallTool)
	hooks.AddAfterCallTool(a.afterCallTool)
	hooks.AddOnError(a.onError)
	return hooks
}

func (a *AuditLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	a.startTimes.Store(id, time.Now())
}

func (a *AuditLogger) afterCallTool(ctx context.Context, id any, req *mcplib.CallToolRequest, res *mcplib.CallToolResult) {
	fields := a.baseFields(ctx, id, req)
	fields = append(fields, zap.String("event_type", EventToolCall))

	summary := summarizeResult(res)
	if outcome, ok := summary["outcome"]; ok {
		fields = append(fields, zap.Any("outcome", outcome))
	}
	fields = append(fields, zap.Any("result_summary", summary))

	if res != nil && res.IsError {
		a.logger.Warn("MCP tool returned error result", fields...)
		return
	}
	a.logger.Info("MCP tool call", fields...)
}

func (a *AuditLogger) onError(ctx context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}
	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}

	fields := a.baseFields(ctx, id, req)
	fields = append(fields,
		zap.String("event_type", EventToolError),
		zap.String("error", logging.SanitizeError(err)),
	)
	a.logger.Error("MCP tool call failed", fields...)
}

func (a *AuditLogger) baseFields(ctx context.Context, id any, req *mcplib.CallToolRequest) []zap.Field {
	started := time.Now()
	if v, ok := a.startTimes.LoadAndDelete(id); ok {
		started = v.(time.Time)
	}
	return []zap.Field{
		zap.String("tool", req.Params.Name),
		zap.Any("request_params", sanitizeParams(req.Params.Arguments)),
		zap.String("client_ip", audit.ClientIPFromContext(ctx)),
		zap.Duration("duration", time.Since(started)),
	}
}

// sanitizeParams hashes credential-like values and sanitizes question text
// before it is written to the audit log.
func sanitizeParams(args any) map[string]any {
	params, ok := args.(map[string]any)
	if !ok || len(params) == 0 {
		return nil
	}

	sanitized := make(map[string]any, len(params))
	for k, v := range params {
		sanitized[k] = sanitizeValue(k, v)
	}
	return sanitized
}

func sanitizeValue(key string, value any) any {
	if isSensitiveParam(key) {
		return hashSensitiveValue(value)
	}
	switch val := value.(type) {
	case string:
		if isQueryParam(key) {
			return logging.SanitizeQuery(val)
		}
		return logging.TruncateString(val, maxPreviewLength)
	case map[string]any:
		return sanitizeParams(val)
	default:
		return value
	}
}

func isSensitiveParam(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveParamKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func isQueryParam(key string) bool {
	lower := strings.ToLower(key)
	return lower == "query" || strings.HasSuffix(lower, "_query")
}

// hashSensitiveValue returns a SHA-256 prefix so entries can be correlated
// without storing the value.
func hashSensitiveValue(value any) string {
	str, ok := value.(string)
	if !ok {
		str = fmt.Sprintf("%v", value)
	}
	hash := sha256.Sum256([]byte(str))
	return "sha256:" + hex.EncodeToString(hash[:8])
}

// summarizeResult creates a compact summary of the tool result, lifting the
// answer outcome and row count out of JSON payloads when present.
func summarizeResult(result *mcplib.CallToolResult) map[string]any {
	if result == nil {
		return nil
	}

	summary := map[string]any{"is_error": result.IsError}
	if len(result.Content) == 0 {
		return summary
	}
	summary["content_count"] = len(result.Content)

	for _, c := range result.Content {
		tc, ok := c.(mcplib.TextContent)
		if !ok {
			continue
		}
		var partial struct {
			Outcome  string `json:"outcome"`
			Code     string `json:"code"`
			RowCount *int   `json:"row_count"`
		}
		if err := json.Unmarshal([]byte(tc.Text), &partial); err == nil {
			if partial.Outcome != "" {
				summary["outcome"] = partial.Outcome
			}
			if partial.Code != "" {
				summary["error_code"] = partial.Code
			}
			if partial.RowCount != nil {
				summary["row_count"] = *partial.RowCount
			}
		}
		summary["preview"] = logging.TruncateString(tc.Text, maxPreviewLength)
		break
	}
	return summary
}
