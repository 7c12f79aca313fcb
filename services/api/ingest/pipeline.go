// Package ingest validates batches of named sensor readings against the registered sensor
// schema and turns them into measurements.
//
// The schema is data, not code: every call to Ingest rebuilds a Catalog of active sensors
// and fields, so registrations and deactivations are visible to the next batch. Readings
// addressed to unknown or inactive sensors and fields are dropped without error. A value
// that fails coercion aborts the whole batch before anything is written.
package ingest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/apperr"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/models"
)

// Reading is one raw value addressed to a field by name.
type Reading struct {
	Detail string `json:"detail"`
	Value  any    `json:"value"`
}

// Batch maps sensor names to their readings.
type Batch map[string][]Reading

// SensorSource lists registered sensors.
type SensorSource interface {
	ListSensors(ctx context.Context, activeOnly bool) ([]models.Sensor, error)
}

// MeasurementWriter persists measurements in one bulk operation.
type MeasurementWriter interface {
	InsertMeasurements(ctx context.Context, measurements []models.Measurement) error
}

// Result summarizes an accepted batch.
type Result struct {
	Inserted        int
	SkippedSensors  int
	SkippedReadings int
}

// Pipeline turns batches into stored measurements.
type Pipeline struct {
	sensors SensorSource
	writer  MeasurementWriter
	now     func() time.Time
	newID   func() uuid.UUID
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithIDGenerator overrides the measurement id source.
func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(p *Pipeline) { p.newID = newID }
}

// NewPipeline constructs a Pipeline.
func NewPipeline(sensors SensorSource, writer MeasurementWriter, opts ...Option) *Pipeline {
	p := &Pipeline{
		sensors: sensors,
		writer:  writer,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.New,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest validates batch and writes the accepted measurements. Sensor names are visited in
// sorted order so the reported error is stable for a given batch.
func (p *Pipeline) Ingest(ctx context.Context, batch Batch) (Result, error) {
	var res Result

	sensors, err := p.sensors.ListSensors(ctx, true)
	if err != nil {
		return res, fmt.Errorf("load sensor catalog: %w", err)
	}
	catalog := BuildCatalog(sensors)

	names := make([]string, 0, len(batch))
	for name := range batch {
		names = append(names, name)
	}
	sort.Strings(names)

	pending := make([]models.Measurement, 0)
	for _, name := range names {
		readings := batch[name]
		entry, ok := catalog.Sensor(name)
		if !ok {
			res.SkippedSensors++
			res.SkippedReadings += len(readings)
			continue
		}
		for _, r := range readings {
			slot, ok := entry.Fields[r.Detail]
			if !ok {
				res.SkippedReadings++
				continue
			}
			value, err := Coerce(r.Value, slot.Kind, r.Detail)
			if err != nil {
				return Result{}, apperr.Prefix(err, "Sensor '%s', campo '%s': ", name, r.Detail)
			}
			pending = append(pending, models.Measurement{
				ID:        p.newID(),
				SensorID:  entry.ID,
				FieldID:   slot.ID,
				Value:     value,
				Timestamp: p.now(),
			})
		}
	}

	if len(pending) == 0 {
		return res, nil
	}
	if err := p.writer.InsertMeasurements(ctx, pending); err != nil {
		return Result{}, fmt.Errorf("insert measurements: %w", err)
	}
	res.Inserted = len(pending)
	return res, nil
}
