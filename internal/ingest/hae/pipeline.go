package hae

import (
	"github.com/claude/haeingest/internal/ingest"
	"github.com/claude/haeingest/internal/models"
)

// transformer accumulates the points and skips of one payload. A new one is
// created per request, so no state is shared between requests.
type transformer struct {
	sum           *ingest.Summary
	sleep         *sleepGrouper
	metricPoints  []ingest.Point
	workoutPoints []ingest.Point
}

// Transform converts a decoded payload into points. It never fails: bad
// entries and samples are recorded as skip reasons on the summary. Points are
// ordered metric points first (input order), then merged sleep points by day
// and measurement, then workout points (input order).
func Transform(p *models.HAEPayload) ([]ingest.Point, *ingest.Summary) {
	t := &transformer{sum: &ingest.Summary{}, sleep: newSleepGrouper()}
	if p == nil {
		t.sum.Finalize()
		return nil, t.sum
	}

	for i, raw := range p.Data.Metrics {
		t.metric(i, raw)
	}
	sleepPoints := t.sleep.Points()

	for i, raw := range p.Data.Workouts {
		t.workout(i, raw)
	}

	t.sum.MetricPoints = len(t.metricPoints) + len(sleepPoints)
	t.sum.WorkoutPoints = len(t.workoutPoints)
	t.sum.Finalize()

	points := make([]ingest.Point, 0, t.sum.PointsWritten)
	points = append(points, t.metricPoints...)
	points = append(points, sleepPoints...)
	points = append(points, t.workoutPoints...)
	return points, t.sum
}
