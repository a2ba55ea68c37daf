package catalog

import (
	"encoding/json"
	"strings"
)

// Exact conversion factors. Dashboards built on the stored units assume these
// values with no tolerance.
const (
	KilojoulesPerKilocalorie = 4.184
	KilogramsPerPound        = 0.453592
	MinutesPerHour           = 60.0
	KilometersPerMile        = 1.609344
	KilometersPerFoot        = 0.0003048
	KilometersPerYard        = 0.0009144
	MetersPerFoot            = 0.3048
)

// KilocaloriesToKilojoules converts kcal to kJ.
func KilocaloriesToKilojoules(v float64) float64 { return v * KilojoulesPerKilocalorie }

// PoundsToKilograms converts lb to kg.
func PoundsToKilograms(v float64) float64 { return v * KilogramsPerPound }

// HoursToMinutes converts a duration in hours to minutes.
func HoursToMinutes(v float64) float64 { return v * MinutesPerHour }

// MilesToKilometers converts mi to km.
func MilesToKilometers(v float64) float64 { return v * KilometersPerMile }

// MetersToKilometers converts m to km.
func MetersToKilometers(v float64) float64 { return v / 1000 }

// Identity returns v unchanged.
func Identity(v float64) float64 { return v }

// Conversion is a named, pure numeric conversion referenced by catalog rules.
type Conversion struct {
	Name string
	fn   func(float64) float64
}

// Apply runs the conversion. A zero Conversion behaves as Identity.
func (c Conversion) Apply(v float64) float64 {
	if c.fn == nil {
		return v
	}
	return c.fn(v)
}

// MarshalJSON encodes the conversion by name.
func (c Conversion) MarshalJSON() ([]byte, error) {
	name := c.Name
	if name == "" {
		name = ConvertNone.Name
	}
	return json.Marshal(name)
}

var (
	ConvertNone     = Conversion{Name: "none", fn: Identity}
	ConvertKcalToKJ = Conversion{Name: "kcal_to_kj", fn: KilocaloriesToKilojoules}
	ConvertLbToKg   = Conversion{Name: "lb_to_kg", fn: PoundsToKilograms}
	ConvertHrToMin  = Conversion{Name: "hr_to_min", fn: HoursToMinutes}
)

// EnergyToKilojoules converts an energy quantity to kJ. Anything not already
// reported in kJ is treated as kcal, which is what HAE sends by default.
func EnergyToKilojoules(v float64, unit string) float64 {
	if strings.EqualFold(strings.TrimSpace(unit), "kj") {
		return v
	}
	return KilocaloriesToKilojoules(v)
}

// DistanceToKilometers converts a distance quantity to km. Kilometres and
// unrecognized units pass through unchanged.
func DistanceToKilometers(v float64, unit string) float64 {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "mi", "mile", "miles":
		return MilesToKilometers(v)
	case "m", "meter", "meters", "metre", "metres":
		return MetersToKilometers(v)
	case "ft", "feet", "foot":
		return v * KilometersPerFoot
	case "yd", "yard", "yards":
		return v * KilometersPerYard
	default:
		return v
	}
}

// ElevationToMeters converts an elevation quantity to m. Metres and
// unrecognized units pass through unchanged.
func ElevationToMeters(v float64, unit string) float64 {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "ft", "feet", "foot":
		return v * MetersPerFoot
	case "km":
		return v * 1000
	default:
		return v
	}
}
