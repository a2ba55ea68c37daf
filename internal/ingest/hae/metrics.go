package hae

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/claude/haeingest/internal/catalog"
	"github.com/claude/haeingest/internal/ingest"
	"github.com/claude/haeingest/internal/models"
)

var errNonFinite = errors.New("non-finite value")

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func sampleIndex(i int) *int { return &i }

// metric converts one raw metric entry. Scalar, min/avg/max and blood
// pressure samples become points directly; sleep samples go to the grouper.
func (t *transformer) metric(idx int, raw json.RawMessage) {
	if !isObject(raw) {
		t.sum.Skip(ingest.SkipReason{Kind: ingest.SkipMalformedEntry, Entry: idx, Detail: "metric entry is not an object"})
		return
	}
	var m models.HAEMetric
	if err := json.Unmarshal(raw, &m); err != nil {
		t.sum.Skip(ingest.SkipReason{
			Kind:   ingest.SkipMalformedEntry,
			Name:   gjson.GetBytes(raw, "name").String(),
			Entry:  idx,
			Detail: err.Error(),
		})
		return
	}
	if strings.TrimSpace(m.Name) == "" {
		t.sum.Skip(ingest.SkipReason{Kind: ingest.SkipMalformedEntry, Entry: idx, Detail: "metric entry has no name"})
		return
	}

	rule, ok := catalog.Lookup(m.Name)
	if !ok || rule.Category == catalog.CategoryWorkout {
		t.sum.Skip(ingest.SkipReason{Kind: ingest.SkipUnknownMetric, Name: m.Name, Entry: idx, Detail: "not in catalog"})
		return
	}

	// A flat entry carries its own date and value instead of a data array.
	samples := m.Data
	if samples == nil && gjson.GetBytes(raw, "date").Exists() {
		samples = []json.RawMessage{raw}
	}

	var produced int
	switch rule.Category {
	case catalog.CategorySleepStage:
		produced = t.sleepStage(idx, m.Name, rule, samples)
	case catalog.CategorySleepAnalysis:
		produced = t.sleepAnalysis(idx, m.Name, rule, samples)
	default:
		produced = t.samples(idx, m.Name, rule, samples)
	}
	if produced > 0 {
		t.sum.MetricsImported++
	}
}

// decodeSample decodes a sample and its timestamp, recording a skip on failure.
func (t *transformer) decodeSample(idx, i int, name string, raw json.RawMessage) (models.HAESample, time.Time, bool) {
	var s models.HAESample
	if !isObject(raw) {
		t.skipSample(ingest.SkipMalformedSample, idx, i, name, "sample is not an object")
		return s, time.Time{}, false
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		t.skipSample(ingest.SkipMalformedSample, idx, i, name, err.Error())
		return s, time.Time{}, false
	}
	ts, err := models.ParseHAETime(s.Date)
	if err != nil {
		t.skipSample(ingest.SkipUnparseableTimestamp, idx, i, name, err.Error())
		return s, time.Time{}, false
	}
	return s, ts, true
}

func (t *transformer) skipSample(kind ingest.SkipKind, idx, i int, name, detail string) {
	t.sum.Skip(ingest.SkipReason{Kind: kind, Name: name, Entry: idx, Sample: sampleIndex(i), Detail: detail})
}

func (t *transformer) samples(idx int, name string, rule catalog.Rule, samples []json.RawMessage) int {
	n := 0
	for i, raw := range samples {
		s, ts, ok := t.decodeSample(idx, i, name, raw)
		if !ok {
			continue
		}
		fields, err := sampleFields(rule, s)
		if err != nil {
			t.skipSample(ingest.SkipMalformedSample, idx, i, name, err.Error())
			continue
		}
		p := ingest.Point{Measurement: rule.Measurement, Fields: fields, Time: ts}
		if s.Source != "" {
			p.Tags = map[string]string{"source": s.Source}
		}
		t.metricPoints = append(t.metricPoints, p)
		n++
	}
	return n
}

// sampleFields builds the field set of one non-sleep sample.
func sampleFields(rule catalog.Rule, s models.HAESample) (map[string]float64, error) {
	fields := map[string]float64{}
	set := func(field string, v *float64) error {
		if v == nil {
			return nil
		}
		cv := rule.Convert.Apply(*v)
		if !finite(cv) {
			return fmt.Errorf("%s: %w", field, errNonFinite)
		}
		fields[field] = cv
		return nil
	}

	switch rule.Category {
	case catalog.CategoryMinAvgMax:
		for _, f := range []struct {
			suffix string
			v      *float64
		}{{"_min", s.Min}, {"_avg", s.Avg}, {"_max", s.Max}} {
			if err := set(rule.Field+f.suffix, f.v); err != nil {
				return nil, err
			}
		}
		if len(fields) == 0 {
			return nil, errors.New("missing Min, Avg and Max")
		}
	case catalog.CategoryBloodPressure:
		if err := set("systolic", s.Systolic); err != nil {
			return nil, err
		}
		if err := set("diastolic", s.Diastolic); err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			return nil, errors.New("missing systolic and diastolic")
		}
	default:
		v, ok := s.Scalar()
		if !ok {
			return nil, errors.New("missing qty")
		}
		if err := set(rule.Field, &v); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

func (t *transformer) sleepStage(idx int, name string, rule catalog.Rule, samples []json.RawMessage) int {
	n := 0
	for i, raw := range samples {
		s, ts, ok := t.decodeSample(idx, i, name, raw)
		if !ok {
			continue
		}
		v, ok := s.Scalar()
		if !ok {
			t.skipSample(ingest.SkipMalformedSample, idx, i, name, "missing qty")
			continue
		}
		cv := rule.Convert.Apply(v)
		if !finite(cv) {
			t.skipSample(ingest.SkipMalformedSample, idx, i, name, errNonFinite.Error())
			continue
		}
		t.sleep.Add(rule.Measurement, ts, rule.Field, cv)
		n++
	}
	return n
}

func (t *transformer) sleepAnalysis(idx int, name string, rule catalog.Rule, samples []json.RawMessage) int {
	n := 0
	segs := newSegmentTotals()
	for i, raw := range samples {
		if !isObject(raw) {
			t.skipSample(ingest.SkipMalformedSample, idx, i, name, "sample is not an object")
			continue
		}
		var ok bool
		if DetectSleepFormat(raw) == SleepFormatUnaggregated {
			ok = t.sleepSegment(idx, i, name, raw, segs)
		} else {
			ok = t.sleepAggregated(idx, i, name, rule, raw)
		}
		if ok {
			n++
		}
	}

	segs.Flush(func(ts time.Time, field string, hours float64) {
		if v := rule.Convert.Apply(hours); finite(v) {
			t.sleep.Add(rule.Measurement, ts, field, v)
		}
	})
	return n
}

func (t *transformer) sleepAggregated(idx, i int, name string, rule catalog.Rule, raw json.RawMessage) bool {
	var dp models.HAESleepAggregated
	if err := json.Unmarshal(raw, &dp); err != nil {
		t.skipSample(ingest.SkipMalformedSample, idx, i, name, err.Error())
		return false
	}
	ts, err := models.ParseHAETime(dp.Date)
	if err != nil {
		t.skipSample(ingest.SkipUnparseableTimestamp, idx, i, name, err.Error())
		return false
	}
	stages := dp.Stages()
	if len(stages) == 0 {
		t.skipSample(ingest.SkipMalformedSample, idx, i, name, "no sleep stages")
		return false
	}
	converted := make(map[string]float64, len(stages))
	for field, hours := range stages {
		v := rule.Convert.Apply(hours)
		if !finite(v) {
			t.skipSample(ingest.SkipMalformedSample, idx, i, name, fmt.Sprintf("%s: %v", field, errNonFinite))
			return false
		}
		converted[field] = v
	}
	for field, v := range converted {
		t.sleep.Add(rule.Measurement, ts, field, v)
	}
	return true
}

// sleepSegment accumulates one per-stage segment. Durations are hours, taken
// from qty or from endDate - startDate when qty is absent.
func (t *transformer) sleepSegment(idx, i int, name string, raw json.RawMessage, segs *segmentTotals) bool {
	var dp models.HAESleepStage
	if err := json.Unmarshal(raw, &dp); err != nil {
		t.skipSample(ingest.SkipMalformedSample, idx, i, name, err.Error())
		return false
	}
	field, ok := models.NormalizeSleepStage(dp.Value)
	if !ok {
		t.skipSample(ingest.SkipMalformedSample, idx, i, name, fmt.Sprintf("unknown sleep stage %q", dp.Value))
		return false
	}
	end, err := models.ParseHAETime(dp.EndDate)
	if err != nil {
		t.skipSample(ingest.SkipUnparseableTimestamp, idx, i, name, err.Error())
		return false
	}

	var hours float64
	if dp.Qty != nil {
		hours = *dp.Qty
	} else {
		start, err := models.ParseHAETime(dp.StartDate)
		if err != nil {
			t.skipSample(ingest.SkipUnparseableTimestamp, idx, i, name, err.Error())
			return false
		}
		hours = end.Sub(start).Hours()
	}
	if !finite(hours) || hours < 0 {
		t.skipSample(ingest.SkipMalformedSample, idx, i, name, fmt.Sprintf("invalid segment duration %v", hours))
		return false
	}
	segs.Add(end, field, hours)
	return true
}
