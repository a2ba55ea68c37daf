package hae

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/claude/haeingest/internal/catalog"
	"github.com/claude/haeingest/internal/ingest"
)

func transformBody(t *testing.T, body string) ([]ingest.Point, *ingest.Summary) {
	t.Helper()
	p, err := Decode([]byte(body))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return Transform(p)
}

// TestTransformStepCount verifies the basic scalar path: one sample becomes
// one activity point with the sample's timestamp.
func TestTransformStepCount(t *testing.T) {
	points, sum := transformBody(t, `{"metrics":[{"name":"step_count","data":[{"date":"2024-01-01T00:00:00Z","qty":5000}]}]}`)
	if len(points) != 1 {
		t.Fatalf("points = %d, want 1", len(points))
	}
	p := points[0]
	if p.Measurement != "activity" {
		t.Errorf("measurement = %q, want activity", p.Measurement)
	}
	if !reflect.DeepEqual(p.Fields, map[string]float64{"steps": 5000}) {
		t.Errorf("fields = %v, want steps=5000", p.Fields)
	}
	if !p.Time.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("time = %v", p.Time)
	}
	if sum.MetricsImported != 1 || sum.PointsWritten != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

// TestTransformSleepMerge verifies two flat sleep stage entries for the same
// date merge into one point carrying both fields.
func TestTransformSleepMerge(t *testing.T) {
	points, sum := transformBody(t, `{"metrics":[
		{"name":"sleep_deep","date":"2024-01-01","value":120},
		{"name":"sleep_rem","date":"2024-01-01","value":45}
	]}`)
	if len(points) != 1 {
		t.Fatalf("points = %d, want 1: %+v", len(points), points)
	}
	p := points[0]
	if p.Measurement != "sleep" {
		t.Errorf("measurement = %q, want sleep", p.Measurement)
	}
	if !reflect.DeepEqual(p.Fields, map[string]float64{"deep": 120, "rem": 45}) {
		t.Errorf("fields = %v, want deep=120 rem=45", p.Fields)
	}
	if !p.Time.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("time = %v", p.Time)
	}
	if sum.MetricsImported != 2 || sum.PointsWritten != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func permutations(items []string) [][]string {
	if len(items) <= 1 {
		return [][]string{append([]string(nil), items...)}
	}
	var out [][]string
	for i := range items {
		rest := make([]string, 0, len(items)-1)
		rest = append(rest, items[:i]...)
		rest = append(rest, items[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]string{items[i]}, p...))
		}
	}
	return out
}

// TestTransformSleepOrderIndependent verifies every ordering of stage
// entries, including ones whose samples carry different times of day,
// yields the identical merged point set.
func TestTransformSleepOrderIndependent(t *testing.T) {
	entries := []string{
		`{"name":"sleep_deep","data":[{"date":"2024-01-01 06:00:00 +0000","qty":90},{"date":"2024-01-02 06:00:00 +0000","qty":80}]}`,
		`{"name":"sleep_rem","data":[{"date":"2024-01-01 07:00:00 +0000","qty":45}]}`,
		`{"name":"sleep_awake","data":[{"date":"2024-01-02T05:00:00Z","qty":10}]}`,
		`{"name":"sleep_core","data":[{"date":"2024-01-01","qty":200}]}`,
	}
	var want []ingest.Point
	for i, perm := range permutations(entries) {
		points, _ := transformBody(t, `{"metrics":[`+strings.Join(perm, ",")+`]}`)
		if i == 0 {
			want = points
			continue
		}
		if !reflect.DeepEqual(points, want) {
			t.Fatalf("permutation %d differs:\n got %+v\nwant %+v", i, points, want)
		}
	}
	if len(want) != 2 {
		t.Fatalf("points = %d, want 2 nights", len(want))
	}
	if !reflect.DeepEqual(want[0].Fields, map[string]float64{"deep": 90, "rem": 45, "core": 200}) {
		t.Errorf("night 1 fields = %v", want[0].Fields)
	}
	if !reflect.DeepEqual(want[1].Fields, map[string]float64{"deep": 80, "awake": 10}) {
		t.Errorf("night 2 fields = %v", want[1].Fields)
	}
}

// TestTransformSleepPartialNight verifies absent stages are never synthesized as zero.
func TestTransformSleepPartialNight(t *testing.T) {
	points, _ := transformBody(t, `{"metrics":[
		{"name":"sleep_deep","data":[{"date":"2024-01-01","qty":60}]},
		{"name":"sleep_awake","data":[{"date":"2024-01-01","qty":5}]}
	]}`)
	if len(points) != 1 {
		t.Fatalf("points = %d, want 1", len(points))
	}
	if len(points[0].Fields) != 2 {
		t.Errorf("fields = %v, want exactly deep and awake", points[0].Fields)
	}
	if _, ok := points[0].Fields["rem"]; ok {
		t.Error("rem must not be synthesized")
	}
}

// TestTransformSleepLatestWins verifies a retransmitted stage value for the
// same day overwrites the earlier one.
func TestTransformSleepLatestWins(t *testing.T) {
	points, _ := transformBody(t, `{"metrics":[
		{"name":"sleep_deep","data":[{"date":"2024-01-01","qty":100}]},
		{"name":"sleep_deep","data":[{"date":"2024-01-01","qty":120}]}
	]}`)
	if len(points) != 1 || points[0].Fields["deep"] != 120 {
		t.Errorf("points = %+v, want one point with deep=120", points)
	}
}

// TestTransformSleepAnalysisAggregated verifies aggregated hour totals are
// converted to minutes and keyed on the sample's local midnight.
func TestTransformSleepAnalysisAggregated(t *testing.T) {
	points, sum := transformBody(t, `{"data":{"metrics":[{"name":"sleep_analysis","units":"hr","data":[
		{"date":"2024-02-06 00:00:00 -0800","totalSleep":7.5,"deep":1.5,"rem":2,"core":4,"awake":0.25,"inBed":8}
	]}]}}`)
	if len(points) != 1 {
		t.Fatalf("points = %d, want 1", len(points))
	}
	want := map[string]float64{"total": 450, "deep": 90, "rem": 120, "core": 240, "awake": 15, "in_bed": 480}
	if !reflect.DeepEqual(points[0].Fields, want) {
		t.Errorf("fields = %v, want %v", points[0].Fields, want)
	}
	wantTime := time.Date(2024, 2, 6, 0, 0, 0, 0, time.FixedZone("", -8*3600))
	if !points[0].Time.Equal(wantTime) {
		t.Errorf("time = %v, want %v", points[0].Time, wantTime)
	}
	if sum.MetricsImported != 1 {
		t.Errorf("metrics_imported = %d, want 1", sum.MetricsImported)
	}
}

// TestTransformSleepNightsFollowLocalDate verifies nights are keyed by the
// calendar date written in each sample's own offset. The same instant
// written in two offsets falls on two different nights, and each point sits
// at its night's local midnight.
func TestTransformSleepNightsFollowLocalDate(t *testing.T) {
	points, _ := transformBody(t, `{"metrics":[
		{"name":"sleep_deep","data":[{"date":"2024-01-02 00:00:00 +0100","qty":60}]},
		{"name":"sleep_rem","data":[{"date":"2024-01-01T23:00:00Z","qty":45}]}
	]}`)
	if len(points) != 2 {
		t.Fatalf("points = %d, want 2: %+v", len(points), points)
	}
	if !reflect.DeepEqual(points[0].Fields, map[string]float64{"rem": 45}) {
		t.Errorf("night 1 fields = %v, want rem only", points[0].Fields)
	}
	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC); !points[0].Time.Equal(want) {
		t.Errorf("night 1 time = %v, want %v", points[0].Time, want)
	}
	if !reflect.DeepEqual(points[1].Fields, map[string]float64{"deep": 60}) {
		t.Errorf("night 2 fields = %v, want deep only", points[1].Fields)
	}
	if want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.FixedZone("", 3600)); !points[1].Time.Equal(want) {
		t.Errorf("night 2 time = %v, want %v", points[1].Time, want)
	}

	// Samples later in the same local day still land on that day's midnight.
	points, _ = transformBody(t, `{"metrics":[
		{"name":"sleep_deep","data":[{"date":"2024-01-01 06:30:00 +0000","qty":60}]},
		{"name":"sleep_rem","data":[{"date":"2024-01-01 07:15:00 +0000","qty":45}]}
	]}`)
	if len(points) != 1 {
		t.Fatalf("points = %d, want 1", len(points))
	}
	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC); !points[0].Time.Equal(want) {
		t.Errorf("time = %v, want %v", points[0].Time, want)
	}
}

// TestTransformSleepSegments verifies per-stage segments are summed per stage
// and wake-up day, with localized stage names normalized.
func TestTransformSleepSegments(t *testing.T) {
	points, sum := transformBody(t, `{"metrics":[{"name":"sleep_analysis","data":[
		{"startDate":"2024-02-06 00:30:00 -0800","endDate":"2024-02-06 01:00:00 -0800","value":"Core","qty":0.5},
		{"startDate":"2024-02-06 01:00:00 -0800","endDate":"2024-02-06 01:15:00 -0800","value":"Tief"},
		{"startDate":"2024-02-06 01:15:00 -0800","endDate":"2024-02-06 01:45:00 -0800","value":"core","qty":0.5},
		{"startDate":"2024-02-06 01:45:00 -0800","endDate":"2024-02-06 01:50:00 -0800","value":"Snoring","qty":0.1}
	]}]}`)
	if len(points) != 1 {
		t.Fatalf("points = %d, want 1", len(points))
	}
	want := map[string]float64{"core": 60, "deep": 15}
	if !reflect.DeepEqual(points[0].Fields, want) {
		t.Errorf("fields = %v, want %v", points[0].Fields, want)
	}
	if sum.SamplesSkipped != 1 {
		t.Errorf("samples_skipped = %d, want 1 for the unknown stage", sum.SamplesSkipped)
	}
}

// TestTransformHeartRateMinAvgMax verifies min/avg/max stay on one point and
// the source becomes a tag.
func TestTransformHeartRateMinAvgMax(t *testing.T) {
	points, _ := transformBody(t, `{"metrics":[{"name":"heart_rate","units":"count/min","data":[
		{"date":"2024-02-06 14:30:00 -0800","Min":65,"Avg":72,"Max":85,"source":"Apple Watch"}
	]}]}`)
	if len(points) != 1 {
		t.Fatalf("points = %d, want 1", len(points))
	}
	p := points[0]
	want := map[string]float64{"bpm_min": 65, "bpm_avg": 72, "bpm_max": 85}
	if p.Measurement != "heart" || !reflect.DeepEqual(p.Fields, want) {
		t.Errorf("point = %+v", p)
	}
	if p.Tags["source"] != "Apple Watch" {
		t.Errorf("tags = %v", p.Tags)
	}
}

// TestTransformBloodPressure verifies systolic and diastolic share one point.
func TestTransformBloodPressure(t *testing.T) {
	points, _ := transformBody(t, `{"metrics":[{"name":"blood_pressure","data":[
		{"date":"2024-02-06 08:00:00 -0800","systolic":120,"diastolic":80}
	]}]}`)
	if len(points) != 1 || !reflect.DeepEqual(points[0].Fields, map[string]float64{"systolic": 120, "diastolic": 80}) {
		t.Errorf("points = %+v", points)
	}
}

// TestTransformConversions verifies catalog conversions are applied exactly.
func TestTransformConversions(t *testing.T) {
	points, _ := transformBody(t, `{"metrics":[
		{"name":"weight_body_mass","units":"lb","data":[{"date":"2024-01-01","qty":200}]},
		{"name":"Active Energy","units":"kcal","data":[{"date":"2024-01-01","qty":1}]}
	]}`)
	if len(points) != 2 {
		t.Fatalf("points = %d, want 2", len(points))
	}
	if got := points[0].Fields["weight"]; got != catalog.PoundsToKilograms(200) {
		t.Errorf("weight = %v, want %v", got, catalog.PoundsToKilograms(200))
	}
	if got := points[1].Fields["active_energy"]; got != 4.184 {
		t.Errorf("active_energy = %v, want 4.184", got)
	}
}

// TestTransformUnknownMetric verifies an unknown metric never fails the
// request and only shows up in the skip accounting.
func TestTransformUnknownMetric(t *testing.T) {
	points, sum := transformBody(t, `{"metrics":[
		{"name":"definitely_unknown","data":[{"date":"2024-01-01","qty":1}]},
		{"name":"step_count","data":[{"date":"2024-01-01","qty":10}]}
	]}`)
	if len(points) != 1 {
		t.Errorf("points = %d, want 1", len(points))
	}
	if sum.EntriesSkipped != 1 || len(sum.UnknownMetrics) != 1 || sum.UnknownMetrics[0] != "definitely_unknown" {
		t.Errorf("summary = %+v", sum)
	}
	if sum.SkipReasons[0].Kind != ingest.SkipUnknownMetric {
		t.Errorf("kind = %s, want unknown_metric", sum.SkipReasons[0].Kind)
	}
	if !strings.Contains(sum.Message, "definitely_unknown") {
		t.Errorf("message = %q", sum.Message)
	}
}

// TestTransformMalformedSamples verifies bad samples are skipped individually
// while the rest of the entry is imported.
func TestTransformMalformedSamples(t *testing.T) {
	points, sum := transformBody(t, `{"metrics":[{"name":"step_count","data":[
		{"date":"2024-01-01","qty":10},
		{"date":"yesterday","qty":11},
		{"date":"2024-01-02"},
		{"date":"2024-01-03","qty":"many"},
		42,
		{"date":"2024-01-04","qty":13}
	]},
	{"name":"active_energy","data":[{"date":"2024-01-01","qty":1e308}]}
	]}`)
	if len(points) != 2 {
		t.Fatalf("points = %d, want 2", len(points))
	}
	if sum.SamplesSkipped != 5 {
		t.Errorf("samples_skipped = %d, want 5", sum.SamplesSkipped)
	}
	kinds := sum.CountByKind()
	if kinds[ingest.SkipUnparseableTimestamp] != 1 || kinds[ingest.SkipMalformedSample] != 4 {
		t.Errorf("kinds = %v", kinds)
	}
	if sum.MetricsImported != 1 {
		t.Errorf("metrics_imported = %d, want 1", sum.MetricsImported)
	}
}

// TestTransformMalformedEntries verifies non-object or nameless entries are
// skipped without affecting their neighbours.
func TestTransformMalformedEntries(t *testing.T) {
	points, sum := transformBody(t, `{"metrics":[
		42,
		{"units":"count"},
		{"name":"step_count","data":{"date":"2024-01-01"}},
		{"name":"step_count","data":[{"date":"2024-01-01","qty":1}]}
	],"workouts":["run"]}`)
	if len(points) != 1 {
		t.Errorf("points = %d, want 1", len(points))
	}
	if got := sum.CountByKind()[ingest.SkipMalformedEntry]; got != 4 {
		t.Errorf("malformed_entry = %d, want 4", got)
	}
}

// TestTransformWorkout verifies duration, conversions, optional fields and the type tag.
func TestTransformWorkout(t *testing.T) {
	points, sum := transformBody(t, `{"workouts":[{
		"name":"Outdoor Run",
		"start":"2024-02-06 07:00:00 -0800",
		"end":"2024-02-06 07:30:00 -0800",
		"distance":{"qty":5000,"units":"m"},
		"activeEnergyBurned":{"qty":100,"units":"kcal"},
		"basalEnergy":{"qty":50,"units":"kJ"},
		"heartRate":{"min":{"qty":120},"avg":{"qty":150},"max":{"qty":175}}
	}]}`)
	if len(points) != 1 {
		t.Fatalf("points = %d, want 1", len(points))
	}
	p := points[0]
	if p.Measurement != "workout" || p.Tags["type"] != "Outdoor Run" {
		t.Errorf("point = %+v", p)
	}
	want := map[string]float64{
		"duration":       30,
		"distance":       5,
		"active_energy":  catalog.KilocaloriesToKilojoules(100),
		"basal_energy":   50,
		"min_heart_rate": 120,
		"avg_heart_rate": 150,
		"max_heart_rate": 175,
	}
	if !reflect.DeepEqual(p.Fields, want) {
		t.Errorf("fields = %v, want %v", p.Fields, want)
	}
	wantTime := time.Date(2024, 2, 6, 15, 0, 0, 0, time.UTC)
	if !p.Time.Equal(wantTime) {
		t.Errorf("time = %v, want start %v", p.Time, wantTime)
	}
	if sum.WorkoutsImported != 1 || sum.WorkoutPoints != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

// TestTransformWorkoutWithoutDistance verifies absent optional fields are
// omitted rather than zero-filled.
func TestTransformWorkoutWithoutDistance(t *testing.T) {
	points, _ := transformBody(t, `{"workouts":[{"name":"Yoga","start":"2024-01-01T08:00:00Z","end":"2024-01-01T09:00:00Z"}]}`)
	if len(points) != 1 {
		t.Fatalf("points = %d, want 1", len(points))
	}
	if _, ok := points[0].Fields["distance"]; ok {
		t.Error("distance field present, want absent")
	}
	if !reflect.DeepEqual(points[0].Fields, map[string]float64{"duration": 60}) {
		t.Errorf("fields = %v, want duration only", points[0].Fields)
	}
}

// TestTransformWorkoutZeroDistanceKept verifies a reported zero is stored.
func TestTransformWorkoutZeroDistanceKept(t *testing.T) {
	points, _ := transformBody(t, `{"workouts":[{"name":"Swim","start":"2024-01-01T08:00:00Z","end":"2024-01-01T08:00:00Z","distance":0}]}`)
	if len(points) != 1 {
		t.Fatalf("points = %d, want 1", len(points))
	}
	if v, ok := points[0].Fields["distance"]; !ok || v != 0 {
		t.Errorf("distance = %v, %v, want 0, true", v, ok)
	}
	if points[0].Fields["duration"] != 0 {
		t.Errorf("duration = %v, want 0", points[0].Fields["duration"])
	}
}

// TestTransformMalformedWorkouts verifies missing or reversed times skip only
// the affected workout.
func TestTransformMalformedWorkouts(t *testing.T) {
	points, sum := transformBody(t, `{"workouts":[
		{"name":"Run","end":"2024-01-01T09:00:00Z"},
		{"name":"Run","start":"2024-01-01T09:00:00Z","end":"2024-01-01T08:00:00Z"},
		{"name":"Run","start":"soon","end":"2024-01-01T08:00:00Z"},
		{"name":"Run","start":"2024-01-01T08:00:00Z","end":"2024-01-01T09:00:00Z","distance":{"units":"km"}},
		{"start":"2024-01-01T08:00:00Z","end":"2024-01-01T08:45:00Z"}
	]}`)
	if len(points) != 1 {
		t.Fatalf("points = %d, want 1", len(points))
	}
	if points[0].Tags["type"] != UnknownWorkoutType {
		t.Errorf("type = %q, want %q", points[0].Tags["type"], UnknownWorkoutType)
	}
	if got := sum.CountByKind()[ingest.SkipMalformedWorkout]; got != 4 {
		t.Errorf("malformed_workout = %d, want 4", got)
	}
	if sum.WorkoutsImported != 1 {
		t.Errorf("workouts_imported = %d, want 1", sum.WorkoutsImported)
	}
}

// TestTransformEmpty verifies empty payloads yield an empty successful summary.
func TestTransformEmpty(t *testing.T) {
	for _, body := range []string{`{}`, `{"metrics":[],"workouts":[]}`} {
		points, sum := transformBody(t, body)
		if len(points) != 0 || sum.PointsWritten != 0 || sum.Skipped() != 0 {
			t.Errorf("%s: points = %d, summary = %+v", body, len(points), sum)
		}
	}
	points, sum := Transform(nil)
	if points != nil || sum.PointsWritten != 0 {
		t.Errorf("Transform(nil) = %v, %+v", points, sum)
	}
}

// TestTransformPointsWrittenProperty verifies points_written equals the
// produced point count and that adding malformed entries never inflates it.
func TestTransformPointsWrittenProperty(t *testing.T) {
	clean := `{"metrics":[
		{"name":"step_count","data":[{"date":"2024-01-01","qty":1},{"date":"2024-01-02","qty":2}]},
		{"name":"sleep_deep","data":[{"date":"2024-01-01","qty":60}]}
	],"workouts":[{"name":"Walk","start":"2024-01-01T08:00:00Z","end":"2024-01-01T08:30:00Z"}]}`
	noisy := `{"metrics":[
		{"name":"step_count","data":[{"date":"2024-01-01","qty":1},{"date":"bad","qty":3},{"date":"2024-01-02","qty":2}]},
		{"name":"mystery","data":[{"date":"2024-01-01","qty":1}]},
		{"name":"sleep_deep","data":[{"date":"2024-01-01","qty":60}]}
	],"workouts":[{"name":"Walk","start":"2024-01-01T08:00:00Z","end":"2024-01-01T08:30:00Z"},{"name":"Broken"}]}`

	cleanPts, cleanSum := transformBody(t, clean)
	noisyPts, noisySum := transformBody(t, noisy)

	for _, c := range []struct {
		points []ingest.Point
		sum    *ingest.Summary
	}{{cleanPts, cleanSum}, {noisyPts, noisySum}} {
		if c.sum.PointsWritten != len(c.points) {
			t.Errorf("points_written = %d, len(points) = %d", c.sum.PointsWritten, len(c.points))
		}
		if c.sum.PointsWritten != c.sum.MetricPoints+c.sum.WorkoutPoints {
			t.Errorf("points_written = %d, want %d + %d", c.sum.PointsWritten, c.sum.MetricPoints, c.sum.WorkoutPoints)
		}
	}
	if noisySum.PointsWritten != cleanSum.PointsWritten {
		t.Errorf("noisy points_written = %d, clean = %d", noisySum.PointsWritten, cleanSum.PointsWritten)
	}
	if noisySum.Skipped() != 3 {
		t.Errorf("noisy skipped = %d, want 3", noisySum.Skipped())
	}
}

// TestTransformOutputOrder verifies metric points precede merged sleep
// points, which precede workout points.
func TestTransformOutputOrder(t *testing.T) {
	points, _ := transformBody(t, `{"metrics":[
		{"name":"sleep_rem","data":[{"date":"2024-01-02","qty":30}]},
		{"name":"step_count","data":[{"date":"2024-01-05","qty":1}]},
		{"name":"sleep_deep","data":[{"date":"2024-01-01","qty":60}]}
	],"workouts":[{"name":"Walk","start":"2024-01-01T08:00:00Z","end":"2024-01-01T08:30:00Z"}]}`)
	var got []string
	for _, p := range points {
		got = append(got, p.Measurement+"@"+p.Time.Format("2006-01-02"))
	}
	want := []string{"activity@2024-01-05", "sleep@2024-01-01", "sleep@2024-01-02", "workout@2024-01-01"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}
