package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-insight/pkg/ingest"
)

func TestHealthTool_Execute(t *testing.T) {
	datasets := newTestDatasetService()
	mcpServer := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterHealthTool(mcpServer, "1.2.3", datasets)

	var before healthResult
	require.NoError(t, json.Unmarshal([]byte(callTool(t, mcpServer, "health", nil).Text), &before))
	assert.Equal(t, "ok", before.Status)
	assert.Equal(t, "1.2.3", before.Version)
	assert.Empty(t, before.ActiveDataset)

	v, err := datasets.Upload(context.Background(), strings.NewReader("Date,Amount\n10/01/2025,5\n"), ingest.Options{Filename: "a.csv"})
	require.NoError(t, err)

	var after healthResult
	require.NoError(t, json.Unmarshal([]byte(callTool(t, mcpServer, "health", nil).Text), &after))
	assert.Equal(t, v.ID.String(), after.ActiveDataset)
}

func TestHealthTool_NilDatasets(t *testing.T) {
	mcpServer := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterHealthTool(mcpServer, "dev", nil)

	resp := callTool(t, mcpServer, "health", nil)
	assert.False(t, resp.IsError)
	assert.Contains(t, resp.Text, `"status":"ok"`)
}
