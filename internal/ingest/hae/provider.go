package hae

import (
	"context"
	"log/slog"
	"time"

	"github.com/claude/haeingest/internal/ingest"
	"github.com/claude/haeingest/internal/observability"
	"github.com/claude/haeingest/internal/storage"
)

// ImportSource is recorded on import log rows written by this provider.
const ImportSource = "health_auto_export"

// Provider processes Health Auto Export REST API payloads.
type Provider struct {
	writer storage.Writer
	log    *slog.Logger
}

// NewProvider creates a new HAE ingest provider.
func NewProvider(w storage.Writer, log *slog.Logger) *Provider {
	return &Provider{writer: w, log: log}
}

// Preview decodes and transforms a payload without writing anything.
func (p *Provider) Preview(body []byte) ([]ingest.Point, *ingest.Summary, error) {
	payload, err := Decode(body)
	if err != nil {
		return nil, nil, err
	}
	points, sum := Transform(payload)
	return points, sum, nil
}

// Ingest decodes, transforms and writes one payload. A *ingest.ValidationError
// means nothing was written; a *ingest.WriteError carries the storage failure
// and the attempted point count. The summary returned with it reports zero
// points written while keeping the per-kind point counts.
func (p *Provider) Ingest(ctx context.Context, requestID string, body []byte) (*ingest.Summary, error) {
	start := time.Now()

	points, sum, err := p.Preview(body)
	if err != nil {
		observability.RecordIngest(observability.StatusInvalid, nil, time.Since(start))
		return nil, err
	}
	sum.RequestID = requestID

	for _, r := range sum.SkipReasons {
		p.log.Debug("skipped entry", "request_id", requestID, "kind", r.Kind,
			"name", r.Name, "entry", r.Entry, "detail", r.Detail)
	}

	if len(points) > 0 {
		if err := p.writer.WritePoints(ctx, points); err != nil {
			sum.PointsWritten = 0
			elapsed := time.Since(start)
			observability.RecordIngest(observability.StatusWriteError, sum, elapsed)
			p.recordImport(ctx, requestID, "error", sum, elapsed, err)
			return sum, &ingest.WriteError{Points: len(points), Err: err}
		}
	} else {
		p.log.Info("no data points to write", "request_id", requestID)
	}

	elapsed := time.Since(start)
	observability.RecordIngest(observability.StatusSuccess, sum, elapsed)
	p.recordImport(ctx, requestID, "success", sum, elapsed, nil)

	p.log.Info("ingest complete",
		"request_id", requestID,
		"metrics_imported", sum.MetricsImported,
		"workouts_imported", sum.WorkoutsImported,
		"points_written", sum.PointsWritten,
		"skipped", sum.Skipped(),
		"duration", elapsed)
	return sum, nil
}

func (p *Provider) recordImport(ctx context.Context, requestID, status string, sum *ingest.Summary, elapsed time.Duration, writeErr error) {
	rec, ok := p.writer.(storage.ImportRecorder)
	if !ok {
		return
	}
	// A cancelled request context must not lose the log row.
	ctx = context.WithoutCancel(ctx)
	if _, err := rec.InsertImportLog(ctx, storage.NewImportLog(requestID, ImportSource, status, sum, elapsed, writeErr)); err != nil {
		p.log.Warn("failed to record import log", "request_id", requestID, "error", err)
	}
}
