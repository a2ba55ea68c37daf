// Package ingest holds the types shared by ingest providers and storage
// writers: points, the per-request summary and the error taxonomy.
package ingest

import (
	"sort"
	"strings"
	"time"
)

// Point is one time-series point: a measurement, a tag set, one or more
// numeric fields and a timestamp.
type Point struct {
	Measurement string             `json:"measurement"`
	Tags        map[string]string  `json:"tags,omitempty"`
	Fields      map[string]float64 `json:"fields"`
	Time        time.Time          `json:"time"`
}

// TagKey returns the tag set in a canonical "k=v,k=v" form sorted by key.
// An empty tag set yields "".
func (p Point) TagKey() string {
	if len(p.Tags) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p.Tags))
	for k := range p.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(p.Tags[k])
	}
	return b.String()
}

// Identity is the storage identity of a point: measurement, tag set and
// timestamp. Two points with the same identity address the same row.
func (p Point) Identity() string {
	return p.Measurement + "|" + p.TagKey() + "|" + p.Time.UTC().Format(time.RFC3339Nano)
}

// FieldNames returns the point's field names in sorted order.
func (p Point) FieldNames() []string {
	names := make([]string, 0, len(p.Fields))
	for k := range p.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
