package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ekaya-inc/ekaya-insight/pkg/services"
)

type healthResult struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	ActiveDataset string `json:"active_dataset_version_id,omitempty"`
}

// RegisterHealthTool adds a health check tool to the MCP server.
// The tool returns the server status, version and active dataset version.
// datasets may be nil.
func RegisterHealthTool(s *server.MCPServer, version string, datasets services.DatasetService) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status and version"),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := healthResult{Status: "ok", Version: version}
		if datasets != nil {
			if snap := datasets.Active(); snap != nil {
				result.ActiveDataset = snap.Version.ID.String()
			}
		}
		return jsonResult(result)
	})
}
