package influx

import (
	"context"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"github.com/homepin/mapsession/internal/session"
	"github.com/homepin/mapsession/pkg/core"
)

// PointWriter is satisfied by Manager.
type PointWriter interface {
	WritePoint(ctx context.Context, bucket string, point *influxdb2_write.Point) error
}

// Recorder turns session events into points in BucketMapSessions.
type Recorder struct {
	writer PointWriter
	logger zerolog.Logger
	now    func() time.Time
}

var _ session.Telemetry = (*Recorder)(nil)

// NewRecorder returns a session.Telemetry backed by w.
func NewRecorder(w PointWriter, logger zerolog.Logger) *Recorder {
	return &Recorder{writer: w, logger: logger, now: time.Now}
}

func (r *Recorder) MarkerPlaced(sessionID string, at core.Coordinate, address string) {
	p := r.point("marker_placed", sessionID, at)
	p.AddField("address", address)
	r.write(p)
}

func (r *Recorder) DistanceComputed(sessionID string, target core.Coordinate, meters float64, km int) {
	p := r.point("distance_computed", sessionID, target)
	p.AddField("meters", meters)
	p.AddField("km", km)
	r.write(p)
}

func (r *Recorder) GeocodeFailed(sessionID string, failure session.GeocodeFailure) {
	p := r.point("geocode_failed", sessionID, failure.At)
	status := string(failure.Status)
	if failure.Err != nil {
		status = "transport"
		p.AddField("error", failure.Err.Error())
	}
	p.AddTag("status", status)
	p.AddField("token", failure.Token)
	r.write(p)
}

func (r *Recorder) point(measurement, sessionID string, at core.Coordinate) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(measurement)
	p.AddTag("session", sessionID)
	p.AddField("lat", at.Lat)
	p.AddField("lng", at.Lng)
	p.SetTime(r.now())
	return p
}

func (r *Recorder) write(p *influxdb2_write.Point) {
	if err := r.writer.WritePoint(context.Background(), BucketMapSessions, p); err != nil {
		r.logger.Error().Err(err).Str("measurement", p.Name()).Msg("Error writing telemetry point")
	}
}
