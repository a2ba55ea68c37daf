package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// HAETime handles the Health Auto Export date format: "2006-01-02 15:04:05 -0700".
// RFC 3339 timestamps and the date-only "2006-01-02" form used by aggregated
// sleep data are accepted as well.
type HAETime struct {
	time.Time
}

const (
	HAETimeLayout     = "2006-01-02 15:04:05 -0700"
	HAEDateOnlyLayout = "2006-01-02"
)

// parseLayouts are tried in order. Date-only values parse as midnight UTC.
var parseLayouts = []string{
	HAETimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05 -07:00",
	"2006-01-02T15:04:05-0700",
	HAEDateOnlyLayout,
}

func (t *HAETime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return t.Parse(s)
}

func (t HAETime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(HAETimeLayout))
}

// Parse parses a HAE time string, trying the full HAE datetime first.
func (t *HAETime) Parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("empty HAE time")
	}
	var firstErr error
	for _, layout := range parseLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed
			return nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return fmt.Errorf("cannot parse HAE time %q: %w", s, firstErr)
}

// ParseHAETime parses a HAE time string into a time.Time.
func ParseHAETime(s string) (time.Time, error) {
	var t HAETime
	if err := t.Parse(s); err != nil {
		return time.Time{}, err
	}
	return t.Time, nil
}

// HAEPayload is the top-level REST API JSON structure.
type HAEPayload struct {
	Data HAEData `json:"data"`
}

// HAEData contains the arrays of health data. Entries stay raw so one
// malformed entry cannot fail the whole payload.
type HAEData struct {
	Metrics  []json.RawMessage `json:"metrics"`
	Workouts []json.RawMessage `json:"workouts"`
}

// HAEMetric is a single metric entry with name, units, and data points.
type HAEMetric struct {
	Name  string            `json:"name"`
	Units string            `json:"units"`
	Data  []json.RawMessage `json:"data"`
}

// HAESample is a metric data point. Which values are set depends on the
// metric: qty or value for scalars, Min/Avg/Max for heart rate,
// systolic/diastolic for blood pressure.
type HAESample struct {
	Date      string   `json:"date"`
	Qty       *float64 `json:"qty"`
	Value     *float64 `json:"value"`
	Min       *float64 `json:"Min"`
	Avg       *float64 `json:"Avg"`
	Max       *float64 `json:"Max"`
	Systolic  *float64 `json:"systolic"`
	Diastolic *float64 `json:"diastolic"`
	Source    string   `json:"source"`
}

// Scalar returns qty, falling back to value.
func (s HAESample) Scalar() (float64, bool) {
	if s.Qty != nil {
		return *s.Qty, true
	}
	if s.Value != nil {
		return *s.Value, true
	}
	return 0, false
}

// HAESleepAggregated is a nightly sleep summary (Summarize Data: ON).
// Durations are in hours.
type HAESleepAggregated struct {
	Date       string   `json:"date"`
	TotalSleep *float64 `json:"totalSleep"`
	Asleep     *float64 `json:"asleep"`
	Core       *float64 `json:"core"`
	Deep       *float64 `json:"deep"`
	REM        *float64 `json:"rem"`
	Awake      *float64 `json:"awake"`
	InBed      *float64 `json:"inBed"`
}

// Stages returns the reported stage durations keyed by sleep field name.
// Stages absent from the sample are absent from the map.
func (s HAESleepAggregated) Stages() map[string]float64 {
	out := make(map[string]float64, 6)
	set := func(field string, v *float64) {
		if v != nil {
			out[field] = *v
		}
	}
	set(SleepFieldTotal, s.Asleep)
	set(SleepFieldTotal, s.TotalSleep)
	set(SleepFieldCore, s.Core)
	set(SleepFieldDeep, s.Deep)
	set(SleepFieldREM, s.REM)
	set(SleepFieldAwake, s.Awake)
	set(SleepFieldInBed, s.InBed)
	return out
}

// HAESleepStage is an individual sleep stage segment (Summarize Data: OFF).
type HAESleepStage struct {
	StartDate string   `json:"startDate"`
	EndDate   string   `json:"endDate"`
	Qty       *float64 `json:"qty"`
	Value     string   `json:"value"`
	Source    string   `json:"source"`
}

// HAEWorkout is a workout from the REST API (Version 2). Start and End are
// kept as strings so a bad timestamp marks only this workout as malformed.
type HAEWorkout struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`

	ActiveEnergy       *HAEQuantity `json:"activeEnergy,omitempty"`
	ActiveEnergyBurned *HAEQuantity `json:"activeEnergyBurned,omitempty"`
	BasalEnergy        *HAEQuantity `json:"basalEnergy,omitempty"`
	BasalEnergyBurned  *HAEQuantity `json:"basalEnergyBurned,omitempty"`
	Distance           *HAEQuantity `json:"distance,omitempty"`
	ElevationUp        *HAEQuantity `json:"elevationUp,omitempty"`

	HeartRate *HAEHeartRateSummary `json:"heartRate,omitempty"`
	AvgHR     *HAEQuantity         `json:"avgHeartRate,omitempty"`
	MaxHR     *HAEQuantity         `json:"maxHeartRate,omitempty"`
}

// Active returns activeEnergy, falling back to the activeEnergyBurned alias.
func (w HAEWorkout) Active() *HAEQuantity {
	if w.ActiveEnergy != nil {
		return w.ActiveEnergy
	}
	return w.ActiveEnergyBurned
}

// Basal returns basalEnergy, falling back to the basalEnergyBurned alias.
func (w HAEWorkout) Basal() *HAEQuantity {
	if w.BasalEnergy != nil {
		return w.BasalEnergy
	}
	return w.BasalEnergyBurned
}

// HAEQuantity is the {"qty": N, "units": "..."} structure. Older exports
// send a bare number instead, which leaves Units empty.
type HAEQuantity struct {
	Qty   float64 `json:"qty"`
	Units string  `json:"units"`
}

func (q *HAEQuantity) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		q.Qty = n
		q.Units = ""
		return nil
	}
	var obj struct {
		Qty   *float64 `json:"qty"`
		Units string   `json:"units"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("parsing quantity: %w", err)
	}
	if obj.Qty == nil {
		return fmt.Errorf("quantity without qty")
	}
	q.Qty = *obj.Qty
	q.Units = obj.Units
	return nil
}

// HAEHeartRateSummary is the nested heartRate summary in workouts.
type HAEHeartRateSummary struct {
	Min *HAEQuantity `json:"min"`
	Avg *HAEQuantity `json:"avg"`
	Max *HAEQuantity `json:"max"`
}
