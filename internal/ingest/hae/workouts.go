package hae

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/claude/haeingest/internal/catalog"
	"github.com/claude/haeingest/internal/ingest"
	"github.com/claude/haeingest/internal/models"
)

// UnknownWorkoutType tags workouts that arrive without a name.
const UnknownWorkoutType = "unknown"

func (t *transformer) workout(idx int, raw json.RawMessage) {
	if !isObject(raw) {
		t.sum.Skip(ingest.SkipReason{Kind: ingest.SkipMalformedEntry, Entry: idx, Detail: "workout entry is not an object"})
		return
	}
	var w models.HAEWorkout
	if err := json.Unmarshal(raw, &w); err != nil {
		t.sum.Skip(ingest.SkipReason{
			Kind:   ingest.SkipMalformedWorkout,
			Name:   gjson.GetBytes(raw, "name").String(),
			Entry:  idx,
			Detail: err.Error(),
		})
		return
	}
	p, err := workoutPoint(w)
	if err != nil {
		t.sum.Skip(ingest.SkipReason{Kind: ingest.SkipMalformedWorkout, Name: w.Name, Entry: idx, Detail: err.Error()})
		return
	}
	t.workoutPoints = append(t.workoutPoints, p)
	t.sum.WorkoutsImported++
}

func unitless(v float64, _ string) float64 { return v }

// workoutPoint converts one workout. Duration is always present; every other
// field appears only when the source reported it.
func workoutPoint(w models.HAEWorkout) (ingest.Point, error) {
	start, err := models.ParseHAETime(w.Start)
	if err != nil {
		return ingest.Point{}, fmt.Errorf("start: %w", err)
	}
	end, err := models.ParseHAETime(w.End)
	if err != nil {
		return ingest.Point{}, fmt.Errorf("end: %w", err)
	}
	if end.Before(start) {
		return ingest.Point{}, fmt.Errorf("end %s before start %s", w.End, w.Start)
	}

	rule := catalog.Workout()
	fields := map[string]float64{
		rule.Field: end.Sub(start).Minutes(),
	}
	opt := func(field string, q *models.HAEQuantity, conv func(float64, string) float64) {
		if q != nil {
			fields[field] = conv(q.Qty, q.Units)
		}
	}
	opt("distance", w.Distance, catalog.DistanceToKilometers)
	opt("active_energy", w.Active(), catalog.EnergyToKilojoules)
	opt("basal_energy", w.Basal(), catalog.EnergyToKilojoules)
	opt("elevation_up", w.ElevationUp, catalog.ElevationToMeters)

	if hr := w.HeartRate; hr != nil {
		opt("min_heart_rate", hr.Min, unitless)
		opt("avg_heart_rate", hr.Avg, unitless)
		opt("max_heart_rate", hr.Max, unitless)
	}
	if _, ok := fields["avg_heart_rate"]; !ok {
		opt("avg_heart_rate", w.AvgHR, unitless)
	}
	if _, ok := fields["max_heart_rate"]; !ok {
		opt("max_heart_rate", w.MaxHR, unitless)
	}

	for field, v := range fields {
		if !finite(v) {
			return ingest.Point{}, fmt.Errorf("%s: %w", field, errNonFinite)
		}
	}

	name := strings.TrimSpace(w.Name)
	if name == "" {
		name = UnknownWorkoutType
	}
	return ingest.Point{
		Measurement: rule.Measurement,
		Tags:        map[string]string{"type": name},
		Fields:      fields,
		Time:        start,
	}, nil
}
