// Package telemetry records climate readings in InfluxDB v2.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/zberg/go-ae200/internal/config"
)

const defaultConnectTimeout = 10 * time.Second

// Measurement is the InfluxDB measurement every reading is written to.
const Measurement = "climate"

var (
	// ErrDisabled indicates InfluxDB integration is disabled in config.
	ErrDisabled = errors.New("telemetry: disabled in configuration")

	// ErrConnectionFailed indicates the initial ping failed.
	ErrConnectionFailed = errors.New("telemetry: connection failed")
)

// Reading is one sample of a climate entity.
type Reading struct {
	ControllerID      string
	DeviceID          string
	Name              string
	Mode              string
	Power             bool
	RoomTemperature   *float64
	TargetTemperature *float64
	Time              time.Time
}

// Writer writes readings synchronously.
type Writer struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// Connect creates a Writer and verifies the server answers a ping.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Writer, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	w := &Writer{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}
	if err := w.Ping(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return w, nil
}

// Ping checks that the server is reachable and healthy.
func (w *Writer) Ping(ctx context.Context) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
	}

	healthy, err := w.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		return fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}
	return nil
}

// Point converts r into an InfluxDB point. Unknown temperatures are omitted.
func Point(r Reading) *write.Point {
	fields := map[string]interface{}{
		"mode":  r.Mode,
		"power": r.Power,
	}
	if r.RoomTemperature != nil {
		fields["room_temperature"] = *r.RoomTemperature
	}
	if r.TargetTemperature != nil {
		fields["target_temperature"] = *r.TargetTemperature
	}

	return write.NewPoint(
		Measurement,
		map[string]string{
			"controller": r.ControllerID,
			"device":     r.DeviceID,
			"name":       r.Name,
		},
		fields,
		r.Time,
	)
}

// Write stores one reading.
func (w *Writer) Write(ctx context.Context, r Reading) error {
	if err := w.writeAPI.WritePoint(ctx, Point(r)); err != nil {
		return fmt.Errorf("write %s/%s: %w", r.ControllerID, r.DeviceID, err)
	}
	return nil
}

// Close releases the client.
func (w *Writer) Close() {
	w.client.Close()
}
