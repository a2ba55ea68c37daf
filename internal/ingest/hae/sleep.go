package hae

import (
	"sort"
	"time"

	"github.com/claude/haeingest/internal/ingest"
)

// nightKey identifies one merged sleep point: a measurement and the local
// midnight of the sample's own calendar day.
type nightKey struct {
	measurement string
	midnight    int64
}

// sleepGrouper folds sleep stage values into one point per measurement and
// day. Stages merge in any order; repeated values for the same stage and day
// overwrite earlier ones.
type sleepGrouper struct {
	nights map[nightKey]map[string]float64
}

func newSleepGrouper() *sleepGrouper {
	return &sleepGrouper{nights: map[nightKey]map[string]float64{}}
}

// dayStart truncates t to midnight in t's own location.
func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Add records value for field on the night containing t.
func (g *sleepGrouper) Add(measurement string, t time.Time, field string, value float64) {
	key := nightKey{measurement: measurement, midnight: dayStart(t).Unix()}
	fields, ok := g.nights[key]
	if !ok {
		fields = map[string]float64{}
		g.nights[key] = fields
	}
	fields[field] = value
}

// Points returns the merged points ordered by day, then measurement. Point
// times are the night's midnight instant expressed in UTC, so the result
// does not depend on which sample opened the night.
func (g *sleepGrouper) Points() []ingest.Point {
	keys := make([]nightKey, 0, len(g.nights))
	for k := range g.nights {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].midnight != keys[j].midnight {
			return keys[i].midnight < keys[j].midnight
		}
		return keys[i].measurement < keys[j].measurement
	})

	out := make([]ingest.Point, 0, len(keys))
	for _, k := range keys {
		src := g.nights[k]
		fields := make(map[string]float64, len(src))
		for f, v := range src {
			fields[f] = v
		}
		out = append(out, ingest.Point{Measurement: k.measurement, Fields: fields, Time: time.Unix(k.midnight, 0).UTC()})
	}
	return out
}

// segmentTotals sums per-stage sleep segments by stage and wake-up day
// before they are handed to the grouper.
type segmentTotals struct {
	order  []segmentKey
	totals map[segmentKey]float64
	times  map[segmentKey]time.Time
}

type segmentKey struct {
	field    string
	midnight int64
}

func newSegmentTotals() *segmentTotals {
	return &segmentTotals{totals: map[segmentKey]float64{}, times: map[segmentKey]time.Time{}}
}

func (s *segmentTotals) Add(end time.Time, field string, hours float64) {
	start := dayStart(end)
	key := segmentKey{field: field, midnight: start.Unix()}
	if _, ok := s.totals[key]; !ok {
		s.order = append(s.order, key)
		s.times[key] = start
	}
	s.totals[key] += hours
}

// Flush hands each total to fn in first-seen order.
func (s *segmentTotals) Flush(fn func(t time.Time, field string, hours float64)) {
	for _, k := range s.order {
		fn(s.times[k], k.field, s.totals[k])
	}
}
