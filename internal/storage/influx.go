package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	protocol "github.com/influxdata/line-protocol"

	"github.com/claude/haeingest/internal/ingest"
)

// Influx writes points to InfluxDB 2.x through the blocking write API.
type Influx struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	org    string
	bucket string
}

// NewInflux creates an InfluxDB writer. Points are written at nanosecond
// precision so input timestamps are kept exactly.
func NewInflux(url, token, org, bucket string) *Influx {
	opts := influxdb2.DefaultOptions().SetPrecision(time.Nanosecond)
	client := influxdb2.NewClientWithOptions(url, token, opts)
	return &Influx{
		client: client,
		write:  client.WriteAPIBlocking(org, bucket),
		org:    org,
		bucket: bucket,
	}
}

// ToInfluxPoint converts a point to the client's point type.
func ToInfluxPoint(p ingest.Point) *write.Point {
	fields := make(map[string]interface{}, len(p.Fields))
	for k, v := range p.Fields {
		fields[k] = v
	}
	return influxdb2.NewPoint(p.Measurement, p.Tags, fields, p.Time)
}

// LineProtocol renders points as InfluxDB line protocol, one line per point,
// using the same encoder the client's write path uses. Points the encoder
// rejects are left out.
func LineProtocol(points []ingest.Point) []string {
	var buf bytes.Buffer
	enc := protocol.NewEncoder(&buf)
	enc.SetFieldTypeSupport(protocol.UintSupport)
	enc.FailOnFieldErr(true)
	enc.SetPrecision(time.Nanosecond)

	lines := make([]string, 0, len(points))
	for _, p := range points {
		buf.Reset()
		if _, err := enc.Encode(ToInfluxPoint(p)); err != nil {
			continue
		}
		lines = append(lines, strings.TrimSuffix(buf.String(), "\n"))
	}
	return lines
}

// WritePoints writes all points in one request.
func (i *Influx) WritePoints(ctx context.Context, points []ingest.Point) error {
	if len(points) == 0 {
		return nil
	}
	ips := make([]*write.Point, 0, len(points))
	for _, p := range points {
		ips = append(ips, ToInfluxPoint(p))
	}
	if err := i.write.WritePoint(ctx, ips...); err != nil {
		return fmt.Errorf("writing to influx bucket %s: %w", i.bucket, err)
	}
	return nil
}

// Ping checks that the InfluxDB server is reachable and ready.
func (i *Influx) Ping(ctx context.Context) error {
	ok, err := i.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("pinging influx: %w", err)
	}
	if !ok {
		return errors.New("pinging influx: server not ready")
	}
	return nil
}

// Close releases the client's resources.
func (i *Influx) Close() error {
	i.client.Close()
	return nil
}
