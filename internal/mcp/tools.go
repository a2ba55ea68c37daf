package mcp

import (
	"context"
	"errors"
	"strings"

	"github.com/claude/haeingest/internal/catalog"
	"github.com/claude/haeingest/internal/ingest"
	"github.com/claude/haeingest/internal/storage"
	"github.com/mark3labs/mcp-go/mcp"
)

const defaultPreviewPoints = 100

// --- Tool definitions ---

var toolPreviewIngest = mcp.NewTool("preview_ingest",
	mcp.WithDescription("Transform a Health Auto Export JSON payload into time-series points without writing anything. Returns the points and the import summary, including skipped entries."),
	mcp.WithString("payload", mcp.Required(), mcp.Description("Raw Health Auto Export JSON, either {\"data\":{...}} or a bare {\"metrics\",\"workouts\"} object")),
	mcp.WithString("format", mcp.Description("Point encoding. Defaults to 'json'."), mcp.Enum("json", "lineprotocol")),
	mcp.WithNumber("max_points", mcp.Description("Maximum number of points to return. Defaults to 100. The summary always covers the whole payload.")),
)

var toolLookupMetric = mcp.NewTool("lookup_metric",
	mcp.WithDescription("Look up how a Health Auto Export metric name is stored: measurement, field, unit, conversion and category."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Metric name as sent by Health Auto Export (e.g. step_count, heart_rate, sleep_deep)")),
)

var toolListMetrics = mcp.NewTool("list_metrics",
	mcp.WithDescription("List every recognized metric, optionally filtered by measurement."),
	mcp.WithString("measurement", mcp.Description("Only return metrics stored under this measurement (e.g. activity, heart, sleep)")),
)

// --- Tool handlers ---

type previewResult struct {
	Summary   *ingest.Summary `json:"summary"`
	Points    []ingest.Point  `json:"points,omitempty"`
	Lines     []string        `json:"lines,omitempty"`
	Truncated bool            `json:"truncated,omitempty"`
}

func (h *handlers) previewIngest(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	payload, err := req.RequireString("payload")
	if err != nil {
		return mcp.NewToolResultError("payload parameter is required"), nil
	}
	format := req.GetString("format", "json")
	limit := req.GetInt("max_points", defaultPreviewPoints)
	if limit <= 0 {
		limit = defaultPreviewPoints
	}

	points, sum, err := h.preview.Preview([]byte(payload))
	if err != nil {
		var ve *ingest.ValidationError
		if errors.As(err, &ve) {
			return mcp.NewToolResultError(ve.Code + ": " + ve.Message), nil
		}
		h.log.Error("mcp preview_ingest", "error", err)
		return mcp.NewToolResultError("preview failed: " + err.Error()), nil
	}

	out := previewResult{Summary: sum}
	if len(points) > limit {
		points = points[:limit]
		out.Truncated = true
	}
	switch format {
	case "lineprotocol":
		out.Lines = storage.LineProtocol(points)
	case "json":
		out.Points = points
	default:
		return mcp.NewToolResultError("format must be json or lineprotocol"), nil
	}

	result, err := mcp.NewToolResultJSON(out)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) lookupMetric(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name parameter is required"), nil
	}

	rule, ok := catalog.Lookup(name)
	if !ok {
		return mcp.NewToolResultError("unknown metric: " + name), nil
	}

	result, err := mcp.NewToolResultJSON(rule)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) listMetrics(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	measurement := strings.TrimSpace(req.GetString("measurement", ""))

	rules := catalog.Rules()
	if measurement != "" {
		filtered := rules[:0]
		for _, r := range rules {
			if r.Measurement == measurement {
				filtered = append(filtered, r)
			}
		}
		rules = filtered
	}

	result, err := mcp.NewToolResultJSON(rules)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
