package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"

	"github.com/querylens/querylens/internal/core/port"
	"github.com/querylens/querylens/internal/core/service"
)

// NewServer creates an MCPServer with tools and logging hooks.
func NewServer(version string, analysis *service.AnalysisService, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation, withCollector bool) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithHooks(ToolCallHooks(logger, tracer, inst)),
	)

	RegisterTools(s, analysis, withCollector)

	return s
}
