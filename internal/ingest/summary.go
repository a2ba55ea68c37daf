package ingest

import "fmt"

// SkipKind classifies a non-fatal skip.
type SkipKind string

const (
	SkipUnknownMetric        SkipKind = "unknown_metric"
	SkipMalformedSample      SkipKind = "malformed_sample"
	SkipUnparseableTimestamp SkipKind = "unparseable_timestamp"
	SkipMalformedWorkout     SkipKind = "malformed_workout"
	SkipMalformedEntry       SkipKind = "malformed_entry"
)

// MaxSkipReasons caps how many skip reasons a summary records. Counts keep
// increasing past the cap.
const MaxSkipReasons = 100

// SkipReason records one skipped entry or sample. Entry is the index in the
// metrics or workouts array; Sample is the index within the entry's data.
type SkipReason struct {
	Kind   SkipKind `json:"kind"`
	Name   string   `json:"name,omitempty"`
	Entry  int      `json:"entry"`
	Sample *int     `json:"sample,omitempty"`
	Detail string   `json:"detail,omitempty"`
}

func (r SkipReason) String() string {
	if r.Sample != nil {
		return fmt.Sprintf("%s: %s[%d][%d]: %s", r.Kind, r.Name, r.Entry, *r.Sample, r.Detail)
	}
	return fmt.Sprintf("%s: %s[%d]: %s", r.Kind, r.Name, r.Entry, r.Detail)
}

// Summary holds the outcome of an ingest operation.
type Summary struct {
	RequestID string `json:"request_id,omitempty"`

	MetricsImported  int `json:"metrics_imported"`
	WorkoutsImported int `json:"workouts_imported"`
	PointsWritten    int `json:"points_written"`
	MetricPoints     int `json:"metric_points"`
	WorkoutPoints    int `json:"workout_points"`

	SamplesSkipped int      `json:"samples_skipped"`
	EntriesSkipped int      `json:"entries_skipped"`
	UnknownMetrics []string `json:"unknown_metrics,omitempty"`

	SkipReasons          []SkipReason `json:"skip_reasons,omitempty"`
	SkipReasonsTruncated bool         `json:"skip_reasons_truncated,omitempty"`

	Message string `json:"message,omitempty"`
}

// Skip records a skip reason. Sample-level kinds count toward
// SamplesSkipped, the rest toward EntriesSkipped.
func (s *Summary) Skip(r SkipReason) {
	switch r.Kind {
	case SkipMalformedSample, SkipUnparseableTimestamp:
		s.SamplesSkipped++
	default:
		s.EntriesSkipped++
	}
	if r.Kind == SkipUnknownMetric {
		s.addUnknown(r.Name)
	}
	if len(s.SkipReasons) >= MaxSkipReasons {
		s.SkipReasonsTruncated = true
		return
	}
	s.SkipReasons = append(s.SkipReasons, r)
}

func (s *Summary) addUnknown(name string) {
	for _, n := range s.UnknownMetrics {
		if n == name {
			return
		}
	}
	s.UnknownMetrics = append(s.UnknownMetrics, name)
}

// Skipped returns the total number of skipped entries and samples.
func (s *Summary) Skipped() int {
	return s.SamplesSkipped + s.EntriesSkipped
}

// CountByKind tallies the recorded skip reasons by kind. Reasons dropped by
// the cap are not included.
func (s *Summary) CountByKind() map[SkipKind]int {
	out := map[SkipKind]int{}
	for _, r := range s.SkipReasons {
		out[r.Kind]++
	}
	return out
}

// Finalize derives PointsWritten and the user-facing message.
func (s *Summary) Finalize() {
	s.PointsWritten = s.MetricPoints + s.WorkoutPoints
	switch {
	case len(s.UnknownMetrics) > 0:
		s.Message = fmt.Sprintf(
			"Some metrics were skipped because they are not in the catalog: %v. "+
				"Accepted metrics are stored. Check GET /api/v1/catalog for the full list.",
			s.UnknownMetrics)
	case s.Skipped() > 0:
		s.Message = fmt.Sprintf("%d entries and %d samples were skipped.", s.EntriesSkipped, s.SamplesSkipped)
	}
}
