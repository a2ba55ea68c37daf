package mcp

import (
	"log/slog"
	"net/http"

	"github.com/claude/haeingest/internal/ingest"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Previewer decodes and transforms a payload without writing it.
type Previewer interface {
	Preview(body []byte) ([]ingest.Point, *ingest.Summary, error)
}

// New creates an MCP server with all tools and resources registered.
func New(p Previewer, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("haeingest", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("Health Auto Export ingestion service. Inspect the metric catalog and preview how a payload would be stored. Nothing is written through this server."),
	)

	h := &handlers{preview: p, log: log}

	s.AddTools(
		server.ServerTool{Tool: toolPreviewIngest, Handler: h.previewIngest},
		server.ServerTool{Tool: toolLookupMetric, Handler: h.lookupMetric},
		server.ServerTool{Tool: toolListMetrics, Handler: h.listMetrics},
	)

	s.AddResources(
		server.ServerResource{Resource: resMetricCatalog, Handler: h.metricCatalog},
	)

	return s
}

// Handler serves s over the streamable HTTP transport.
func Handler(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(s, server.WithStateLess(true))
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	preview Previewer
	log     *slog.Logger
}

var resMetricCatalog = mcp.NewResource(
	"haeingest://metric_catalog",
	"Metric Catalog",
	mcp.WithResourceDescription("Every recognized Health Auto Export metric with its measurement, field, unit and conversion"),
	mcp.WithMIMEType("application/json"),
)
