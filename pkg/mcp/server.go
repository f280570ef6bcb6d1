// Package mcp exposes the answer engine as Model Context Protocol tools.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insight/pkg/mcp/tools"
)

// Server wraps the mcp-go MCPServer.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates a new MCP server instance. Extra options (hooks,
// instructions) are passed through to mcp-go.
func NewServer(name, version string, logger *zap.Logger, opts ...server.ServerOption) *Server {
	opts = append([]server.ServerOption{server.WithToolCapabilities(true)}, opts...)
	return &Server{
		mcp:    server.NewMCPServer(name, version, opts...),
		logger: logger,
	}
}

// NewDatasetServer builds the server with every dataset tool registered and
// tool calls audited.
func NewDatasetServer(version string, deps *tools.DatasetToolDeps, auditor *AuditLogger) *Server {
	var opts []server.ServerOption
	if auditor != nil {
		opts = append(opts, server.WithHooks(auditor.Hooks()))
	}
	opts = append(opts, server.WithInstructions(
		"Answers questions about an uploaded accounting spreadsheet. "+
			"Call describe_dataset first to see the columns, then ask_dataset with the user's question."))

	s := NewServer("ekaya-insight", version, deps.Logger, opts...)
	tools.RegisterHealthTool(s.mcp, version, deps.Datasets)
	tools.RegisterDatasetTools(s.mcp, deps)
	return s
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer creates an HTTP transport server wrapping this MCP server.
// The HTTP mux handles routing to /mcp, so no endpoint path is configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}
