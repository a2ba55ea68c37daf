package ingest

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// TestPointTagKeySorted verifies the tag key is independent of map order.
func TestPointTagKeySorted(t *testing.T) {
	p := Point{Tags: map[string]string{"type": "Running", "source": "Watch"}}
	if got := p.TagKey(); got != "source=Watch,type=Running" {
		t.Errorf("TagKey() = %q", got)
	}
	if got := (Point{}).TagKey(); got != "" {
		t.Errorf("empty TagKey() = %q", got)
	}
}

// TestPointIdentityNormalizesZone verifies that the same instant in
// different offsets has the same identity.
func TestPointIdentityNormalizesZone(t *testing.T) {
	utc := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	pst := utc.In(time.FixedZone("", -8*3600))
	a := Point{Measurement: "activity", Time: utc}
	b := Point{Measurement: "activity", Time: pst}
	if a.Identity() != b.Identity() {
		t.Errorf("identity differs: %q vs %q", a.Identity(), b.Identity())
	}
	c := Point{Measurement: "activity", Tags: map[string]string{"source": "Watch"}, Time: utc}
	if a.Identity() == c.Identity() {
		t.Error("tags should be part of the identity")
	}
}

// TestSummarySkipCounts verifies sample-level and entry-level skips are
// counted separately and unknown metric names are deduplicated.
func TestSummarySkipCounts(t *testing.T) {
	var s Summary
	zero := 0
	s.Skip(SkipReason{Kind: SkipUnknownMetric, Name: "foo", Entry: 0})
	s.Skip(SkipReason{Kind: SkipUnknownMetric, Name: "foo", Entry: 3})
	s.Skip(SkipReason{Kind: SkipMalformedSample, Name: "step_count", Entry: 1, Sample: &zero})
	s.Skip(SkipReason{Kind: SkipUnparseableTimestamp, Name: "step_count", Entry: 1, Sample: &zero})
	s.Skip(SkipReason{Kind: SkipMalformedWorkout, Entry: 0})

	if s.EntriesSkipped != 3 {
		t.Errorf("EntriesSkipped = %d, want 3", s.EntriesSkipped)
	}
	if s.SamplesSkipped != 2 {
		t.Errorf("SamplesSkipped = %d, want 2", s.SamplesSkipped)
	}
	if len(s.UnknownMetrics) != 1 || s.UnknownMetrics[0] != "foo" {
		t.Errorf("UnknownMetrics = %v, want [foo]", s.UnknownMetrics)
	}
	if got := s.CountByKind()[SkipUnknownMetric]; got != 2 {
		t.Errorf("CountByKind()[unknown_metric] = %d, want 2", got)
	}
}

// TestSummarySkipReasonsCapped verifies the reason list is capped while the
// counts stay complete.
func TestSummarySkipReasonsCapped(t *testing.T) {
	var s Summary
	for i := 0; i < MaxSkipReasons+25; i++ {
		s.Skip(SkipReason{Kind: SkipMalformedWorkout, Entry: i})
	}
	if len(s.SkipReasons) != MaxSkipReasons {
		t.Errorf("len(SkipReasons) = %d, want %d", len(s.SkipReasons), MaxSkipReasons)
	}
	if !s.SkipReasonsTruncated {
		t.Error("SkipReasonsTruncated = false, want true")
	}
	if s.EntriesSkipped != MaxSkipReasons+25 {
		t.Errorf("EntriesSkipped = %d", s.EntriesSkipped)
	}
}

// TestSummaryFinalize verifies points_written is the sum of metric and
// workout points and that unknown metrics are named in the message.
func TestSummaryFinalize(t *testing.T) {
	s := Summary{MetricPoints: 7, WorkoutPoints: 2}
	s.Skip(SkipReason{Kind: SkipUnknownMetric, Name: "mystery"})
	s.Finalize()
	if s.PointsWritten != 9 {
		t.Errorf("PointsWritten = %d, want 9", s.PointsWritten)
	}
	if !strings.Contains(s.Message, "mystery") {
		t.Errorf("Message = %q, want it to name the unknown metric", s.Message)
	}

	empty := Summary{}
	empty.Finalize()
	if empty.Message != "" || empty.PointsWritten != 0 {
		t.Errorf("empty summary = %+v", empty)
	}
}

// TestErrorsUnwrap verifies both error types expose their cause to errors.Is/As.
func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("connection refused")

	var err error = &WriteError{Points: 3, Err: cause}
	if !errors.Is(err, cause) {
		t.Error("WriteError does not unwrap to its cause")
	}
	wrapped := fmt.Errorf("ingest: %w", err)
	var we *WriteError
	if !errors.As(wrapped, &we) || we.Points != 3 {
		t.Errorf("errors.As(WriteError) failed: %v", wrapped)
	}

	err = &ValidationError{Code: CodeInvalidJSON, Message: "bad body", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("ValidationError does not unwrap to its cause")
	}
	if !strings.HasPrefix(err.Error(), CodeInvalidJSON) {
		t.Errorf("Error() = %q", err.Error())
	}
}
