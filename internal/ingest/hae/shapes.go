package hae

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// SleepFormat describes whether a sleep_analysis sample is aggregated or per-stage.
type SleepFormat int

const (
	SleepFormatAggregated   SleepFormat = iota // Has "totalSleep" or per-stage hour totals
	SleepFormatUnaggregated                    // Has "startDate": one segment per stage
)

func (f SleepFormat) String() string {
	if f == SleepFormatUnaggregated {
		return "unaggregated"
	}
	return "aggregated"
}

// DetectSleepFormat examines a raw JSON sample to determine if it's aggregated or unaggregated.
func DetectSleepFormat(raw json.RawMessage) SleepFormat {
	probe := gjson.GetManyBytes(raw, "totalSleep", "startDate")
	if probe[0].Exists() {
		return SleepFormatAggregated
	}
	if probe[1].Exists() {
		return SleepFormatUnaggregated
	}
	return SleepFormatAggregated // fallback
}

// isObject reports whether raw is a JSON object.
func isObject(raw json.RawMessage) bool {
	return gjson.ParseBytes(raw).IsObject()
}
