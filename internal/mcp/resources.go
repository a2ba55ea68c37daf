package mcp

import (
	"context"
	"encoding/json"

	"github.com/claude/haeingest/internal/catalog"
	"github.com/mark3labs/mcp-go/mcp"
)

func (h *handlers) metricCatalog(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(map[string]any{
		"metrics": catalog.Rules(),
		"workout": catalog.Workout(),
	})
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
