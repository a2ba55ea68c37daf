// Package observability exposes prometheus metrics for ingestion.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/claude/haeingest/internal/ingest"
)

// Request outcomes used as the status label.
const (
	StatusSuccess    = "success"
	StatusInvalid    = "invalid"
	StatusWriteError = "write_error"
)

var (
	ingestRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "haeingest",
		Name:      "ingest_requests_total",
		Help:      "Ingest requests by outcome.",
	}, []string{"status"})
	pointsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "haeingest",
		Name:      "points_written_total",
		Help:      "Points handed to the storage backend successfully.",
	})
	entriesSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "haeingest",
		Name:      "entries_skipped_total",
		Help:      "Skipped metric entries, samples and workouts by skip kind.",
	}, []string{"kind"})
	ingestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "haeingest",
		Name:      "ingest_duration_seconds",
		Help:      "Time from receiving a payload to the storage write returning.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(ingestRequests, pointsWritten, entriesSkipped, ingestDuration)
}

// RecordIngest records one ingest request. sum may be nil when the payload
// was rejected before transformation.
func RecordIngest(status string, sum *ingest.Summary, elapsed time.Duration) {
	ingestRequests.WithLabelValues(status).Inc()
	ingestDuration.Observe(elapsed.Seconds())
	if sum == nil {
		return
	}
	if status == StatusSuccess {
		pointsWritten.Add(float64(sum.PointsWritten))
	}
	// Reasons past the cap are not itemized; attribute them to "truncated".
	recorded := 0
	for kind, n := range sum.CountByKind() {
		entriesSkipped.WithLabelValues(string(kind)).Add(float64(n))
		recorded += n
	}
	if rest := sum.Skipped() - recorded; rest > 0 {
		entriesSkipped.WithLabelValues("truncated").Add(float64(rest))
	}
}
