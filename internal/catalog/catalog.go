// Package catalog maps Health Auto Export metric names to their storage
// representation. The table is built once at init and never mutated, so it
// is safe to read from any number of goroutines without locking.
package catalog

import (
	"sort"
	"strings"
)

// Category selects how a metric's samples are turned into points.
type Category int

const (
	CategoryScalar        Category = iota // {"qty": N} -> one field
	CategoryMinAvgMax                     // {"Min", "Avg", "Max"} -> three fields on one point
	CategoryBloodPressure                 // {"systolic", "diastolic"} -> two fields on one point
	CategorySleepStage                    // one stage per metric, merged per night
	CategorySleepAnalysis                 // all stages in one sample, merged per night
	CategoryWorkout                       // workout records, not metric samples
)

var categoryNames = map[Category]string{
	CategoryScalar:        "scalar",
	CategoryMinAvgMax:     "min_avg_max",
	CategoryBloodPressure: "blood_pressure",
	CategorySleepStage:    "sleep_stage",
	CategorySleepAnalysis: "sleep_analysis",
	CategoryWorkout:       "workout",
}

func (c Category) String() string {
	if s, ok := categoryNames[c]; ok {
		return s
	}
	return "unknown"
}

// MarshalText encodes the category by name.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// IsSleep reports whether points of this category go through the sleep grouper.
func (c Category) IsSleep() bool {
	return c == CategorySleepStage || c == CategorySleepAnalysis
}

// Rule describes how one source metric is stored.
type Rule struct {
	Name        string     `json:"name"`
	Measurement string     `json:"measurement"`
	Field       string     `json:"field"`
	Unit        string     `json:"unit"`
	Convert     Conversion `json:"conversion"`
	Category    Category   `json:"category"`
}

// Measurements.
const (
	MeasurementActivity = "activity"
	MeasurementHeart    = "heart"
	MeasurementBody     = "body"
	MeasurementVitals   = "vitals"
	MeasurementAudio    = "audio"
	MeasurementMobility = "mobility"
	MeasurementSleep    = "sleep"
	MeasurementWorkout  = "workout"
)

// WorkoutName is the catalog key of the workout rule.
const WorkoutName = "workout"

var rules = build()

func build() map[string]Rule {
	m := map[string]Rule{}
	add := func(r Rule, aliases ...string) {
		m[r.Name] = r
		for _, a := range aliases {
			alias := r
			alias.Name = a
			m[a] = alias
		}
	}

	scalar := func(name, measurement, field, unit string, conv Conversion) Rule {
		return Rule{Name: name, Measurement: measurement, Field: field, Unit: unit, Convert: conv, Category: CategoryScalar}
	}

	// Activity
	add(scalar("step_count", MeasurementActivity, "steps", "count", ConvertNone), "steps")
	add(scalar("flights_climbed", MeasurementActivity, "flights", "count", ConvertNone))
	add(scalar("walking_running_distance", MeasurementActivity, "distance", "km", ConvertNone))
	add(scalar("cycling_distance", MeasurementActivity, "cycling_distance", "km", ConvertNone))
	add(scalar("active_energy", MeasurementActivity, "active_energy", "kJ", ConvertKcalToKJ), "active_energy_burned")
	add(scalar("basal_energy_burned", MeasurementActivity, "basal_energy", "kJ", ConvertKcalToKJ), "basal_energy")
	add(scalar("apple_exercise_time", MeasurementActivity, "exercise_time", "min", ConvertNone))
	add(scalar("apple_stand_time", MeasurementActivity, "stand_time", "min", ConvertNone))

	// Heart
	add(Rule{Name: "heart_rate", Measurement: MeasurementHeart, Field: "bpm", Unit: "bpm", Convert: ConvertNone, Category: CategoryMinAvgMax})
	add(scalar("resting_heart_rate", MeasurementHeart, "resting_bpm", "bpm", ConvertNone))
	add(scalar("walking_heart_rate_average", MeasurementHeart, "walking_bpm", "bpm", ConvertNone))
	add(scalar("heart_rate_variability", MeasurementHeart, "hrv", "ms", ConvertNone))

	// Body
	add(scalar("weight_body_mass", MeasurementBody, "weight", "kg", ConvertLbToKg), "weight", "body_mass")
	add(scalar("lean_body_mass", MeasurementBody, "lean_mass", "kg", ConvertLbToKg))
	add(scalar("body_mass_index", MeasurementBody, "bmi", "count", ConvertNone))
	add(scalar("body_fat_percentage", MeasurementBody, "body_fat", "%", ConvertNone))

	// Vitals
	add(scalar("blood_oxygen_saturation", MeasurementVitals, "spo2", "%", ConvertNone), "oxygen_saturation")
	add(scalar("respiratory_rate", MeasurementVitals, "respiratory_rate", "count/min", ConvertNone))
	add(Rule{Name: "blood_pressure", Measurement: MeasurementVitals, Field: "", Unit: "mmHg", Convert: ConvertNone, Category: CategoryBloodPressure})

	// Audio
	add(scalar("headphone_audio_exposure", MeasurementAudio, "headphone_exposure", "dBASPL", ConvertNone))
	add(scalar("environmental_audio_exposure", MeasurementAudio, "environmental_exposure", "dBASPL", ConvertNone))

	// Mobility
	add(scalar("walking_speed", MeasurementMobility, "walking_speed", "km/hr", ConvertNone))
	add(scalar("walking_step_length", MeasurementMobility, "walking_step_length", "cm", ConvertNone))
	add(scalar("walking_asymmetry_percentage", MeasurementMobility, "walking_asymmetry", "%", ConvertNone))
	add(scalar("walking_double_support_percentage", MeasurementMobility, "walking_double_support", "%", ConvertNone))

	// Sleep. Per-stage metrics already report minutes; sleep_analysis reports hours.
	stage := func(name, field string) Rule {
		return Rule{Name: name, Measurement: MeasurementSleep, Field: field, Unit: "min", Convert: ConvertNone, Category: CategorySleepStage}
	}
	add(stage("sleep_deep", "deep"))
	add(stage("sleep_rem", "rem"))
	add(stage("sleep_core", "core"))
	add(stage("sleep_awake", "awake"))
	add(stage("sleep_in_bed", "in_bed"), "sleep_inbed", "time_in_bed")
	add(stage("sleep_total", "total"), "sleep_asleep", "total_sleep")
	add(Rule{Name: "sleep_analysis", Measurement: MeasurementSleep, Unit: "min", Convert: ConvertHrToMin, Category: CategorySleepAnalysis})

	// Workouts
	add(Rule{Name: WorkoutName, Measurement: MeasurementWorkout, Field: "duration", Unit: "min", Convert: ConvertNone, Category: CategoryWorkout})

	return m
}

// NormalizeName converts a source metric name to the catalog key form:
// lower case, spaces and hyphens replaced by underscores.
func NormalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, " ", "_")
	return strings.ReplaceAll(n, "-", "_")
}

// Lookup returns the rule for a source metric name.
func Lookup(name string) (Rule, bool) {
	r, ok := rules[NormalizeName(name)]
	return r, ok
}

// Workout returns the rule used for workout points.
func Workout() Rule {
	return rules[WorkoutName]
}

// Rules returns every catalog entry, aliases included, sorted by name.
func Rules() []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
