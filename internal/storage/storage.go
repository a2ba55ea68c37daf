// Package storage writes ingested points to a time-series backend.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/claude/haeingest/internal/ingest"
)

// Writer is the storage collaborator handed the finished point set of one
// ingest. Implementations must be safe for concurrent use.
type Writer interface {
	WritePoints(ctx context.Context, points []ingest.Point) error
	Ping(ctx context.Context) error
	Close() error
}

// Discard is a Writer that drops every point. It backs offline conversion
// where only the transformed output matters.
type Discard struct{}

func (Discard) WritePoints(context.Context, []ingest.Point) error { return nil }
func (Discard) Ping(context.Context) error                        { return nil }
func (Discard) Close() error                                      { return nil }

// ImportRecorder is implemented by backends that keep an import log.
type ImportRecorder interface {
	InsertImportLog(ctx context.Context, log ImportLog) (int64, error)
	QueryImportLogs(ctx context.Context, limit int) ([]ImportLog, error)
}

// ImportLog represents a single ingest request's outcome.
type ImportLog struct {
	ID               int64            `json:"id"`
	CreatedAt        time.Time        `json:"created_at"`
	RequestID        string           `json:"request_id"`
	Source           string           `json:"source"`
	Status           string           `json:"status"`
	MetricsImported  int              `json:"metrics_imported"`
	WorkoutsImported int              `json:"workouts_imported"`
	PointsWritten    int              `json:"points_written"`
	EntriesSkipped   int              `json:"entries_skipped"`
	SamplesSkipped   int              `json:"samples_skipped"`
	DurationMs       *int             `json:"duration_ms"`
	ErrorMessage     *string          `json:"error_message"`
	Metadata         *json.RawMessage `json:"metadata"`
}

// NewImportLog builds an import log entry from an ingest summary.
func NewImportLog(requestID, source, status string, sum *ingest.Summary, elapsed time.Duration, writeErr error) ImportLog {
	ms := int(elapsed.Milliseconds())
	l := ImportLog{
		RequestID:  requestID,
		Source:     source,
		Status:     status,
		DurationMs: &ms,
	}
	if sum != nil {
		l.MetricsImported = sum.MetricsImported
		l.WorkoutsImported = sum.WorkoutsImported
		l.PointsWritten = sum.PointsWritten
		l.EntriesSkipped = sum.EntriesSkipped
		l.SamplesSkipped = sum.SamplesSkipped
		if len(sum.UnknownMetrics) > 0 {
			if b, err := json.Marshal(map[string]any{"unknown_metrics": sum.UnknownMetrics}); err == nil {
				raw := json.RawMessage(b)
				l.Metadata = &raw
			}
		}
	}
	if writeErr != nil {
		msg := writeErr.Error()
		l.ErrorMessage = &msg
	}
	return l
}

// MergeByIdentity collapses points that share measurement, tag set and
// timestamp, merging their fields with later values winning. Order follows
// the first occurrence of each identity. SQL upserts cannot touch the same
// row twice in one statement, so backends merge before writing.
func MergeByIdentity(points []ingest.Point) []ingest.Point {
	index := make(map[string]int, len(points))
	out := make([]ingest.Point, 0, len(points))
	for _, p := range points {
		id := p.Identity()
		i, ok := index[id]
		if !ok {
			cp := p
			cp.Fields = make(map[string]float64, len(p.Fields))
			for k, v := range p.Fields {
				cp.Fields[k] = v
			}
			index[id] = len(out)
			out = append(out, cp)
			continue
		}
		for k, v := range p.Fields {
			out[i].Fields[k] = v
		}
	}
	return out
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding json: %w", err)
	}
	return string(b), nil
}
