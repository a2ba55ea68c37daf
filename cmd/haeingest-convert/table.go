package main

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/claude/haeingest/internal/ingest"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func formatFields(fields map[string]float64) string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, k+"="+strconv.FormatFloat(fields[k], 'f', -1, 64))
	}
	return strings.Join(parts, " ")
}

func renderPoints(points []ingest.Point) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Time", "Measurement", "Tags", "Fields"})
	for _, p := range points {
		tw.AppendRow(table.Row{p.Time.UTC().Format(time.RFC3339Nano), p.Measurement, p.TagKey(), formatFields(p.Fields)})
	}
	tw.SetCaption("%d points", len(points))
	return tw.Render()
}

func renderSummary(sum *ingest.Summary) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	// Metric names are shown as received.
	tw.Style().Format.Footer = text.FormatDefault
	tw.AppendHeader(table.Row{"Summary", "Count"})
	rows := []struct {
		label string
		n     int
	}{
		{"metrics imported", sum.MetricsImported},
		{"workouts imported", sum.WorkoutsImported},
		{"metric points", sum.MetricPoints},
		{"workout points", sum.WorkoutPoints},
		{"points", sum.PointsWritten},
		{"entries skipped", sum.EntriesSkipped},
		{"samples skipped", sum.SamplesSkipped},
	}
	for _, r := range rows {
		tw.AppendRow(table.Row{r.label, r.n})
	}
	if len(sum.UnknownMetrics) > 0 {
		tw.AppendFooter(table.Row{"unknown metrics", strings.Join(sum.UnknownMetrics, ", ")})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}
