package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insight/pkg/cache"
	"github.com/ekaya-inc/ekaya-insight/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
	"github.com/ekaya-inc/ekaya-insight/pkg/repositories"
	"github.com/ekaya-inc/ekaya-insight/pkg/services"
)

type fixedAnswers struct{ answer *models.Answer }

func (f fixedAnswers) ResolveAndAnswer(context.Context, string, *models.ClarificationContext) (*models.Answer, error) {
	return f.answer, nil
}

func newDeps() *tools.DatasetToolDeps {
	datasets := services.NewDatasetService(repositories.NewMemoryRowStore(), nil, cache.New(8, time.Hour), 100, zap.NewNop())
	return &tools.DatasetToolDeps{
		Answers:  fixedAnswers{answer: &models.Answer{Outcome: models.OutcomeNoDataset, Message: services.NoDatasetMessage}},
		Datasets: datasets,
		Logger:   zap.NewNop(),
	}
}

func TestNewServer(t *testing.T) {
	logger := zap.NewNop()
	s := NewServer("test-server", "1.0.0", logger)

	if s == nil || s.mcp == nil {
		t.Fatal("expected non-nil server")
	}
	if s.MCP() != s.mcp {
		t.Error("expected MCP() to return the internal mcp server")
	}
	if s.logger != logger {
		t.Error("expected logger to be set")
	}
}

func TestServer_RegisterTool(t *testing.T) {
	s := NewServer("test-server", "1.0.0", zap.NewNop())

	called := false
	s.RegisterTool(mcp.NewTool("echo", mcp.WithDescription("echo")), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("ok"), nil
	})
	if called {
		t.Error("handler should not be called during registration")
	}

	s.MCP().HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo"}}`))
	if !called {
		t.Error("handler should be called by tools/call")
	}
}

func TestNewDatasetServer_ListsTools(t *testing.T) {
	s := NewDatasetServer("1.0.0", newDeps(), nil)

	raw, err := json.Marshal(s.MCP().HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)))
	if err != nil {
		t.Fatalf("failed to marshal result: %v", err)
	}
	var response struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	names := map[string]bool{}
	for _, tool := range response.Result.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"health", "ask_dataset", "describe_dataset", "sample_rows"} {
		if !names[want] {
			t.Errorf("tool %q not registered", want)
		}
	}
}

func TestServer_NewStreamableHTTPServer(t *testing.T) {
	if NewServer("test-server", "1.0.0", zap.NewNop()).NewStreamableHTTPServer() == nil {
		t.Fatal("expected non-nil HTTP server")
	}
}
