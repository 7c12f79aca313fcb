package device

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/models"
)

// LatestFinder returns the newest measurement of one (sensor, field) slot, or nil.
type LatestFinder interface {
	LatestMeasurement(ctx context.Context, sensorID, fieldID uuid.UUID) (*models.Measurement, error)
}

// SensorValues is the latest value of every active field of one sensor.
type SensorValues struct {
	SensorID uuid.UUID      `json:"sensor_id"`
	Name     string         `json:"nombre"`
	Fields   map[string]any `json:"campos"`
}

// Projection merges the latest values of a group of sensors.
type Projection struct {
	Data    map[string]any `json:"datos"`
	Sensors []SensorValues `json:"sensores"`
}

// Projector computes the latest value per active field.
type Projector struct {
	store       LatestFinder
	concurrency int
}

// NewProjector constructs a Projector running at most concurrency lookups at once.
func NewProjector(store LatestFinder, concurrency int) *Projector {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Projector{store: store, concurrency: concurrency}
}

type slot struct {
	sensor int
	field  models.Field
	value  any
}

// Project looks up the newest measurement of every active field. Fields without data are
// present with a nil value. In Data a field name shared by several sensors keeps the last
// non-nil value in sensor order.
func (p *Projector) Project(ctx context.Context, sensors []models.Sensor) (Projection, error) {
	slots := make([]slot, 0)
	for i, s := range sensors {
		for _, f := range s.ActiveFields() {
			slots = append(slots, slot{sensor: i, field: f})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := range slots {
		i := i
		g.Go(func() error {
			sensor := sensors[slots[i].sensor]
			m, err := p.store.LatestMeasurement(gctx, sensor.ID, slots[i].field.ID)
			if err != nil {
				return fmt.Errorf("latest measurement %s/%s: %w", sensor.Name, slots[i].field.Name, err)
			}
			if m != nil {
				slots[i].value = models.DisplayValue(m.Value)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Projection{}, err
	}

	out := Projection{
		Data:    make(map[string]any),
		Sensors: make([]SensorValues, len(sensors)),
	}
	for i, s := range sensors {
		out.Sensors[i] = SensorValues{SensorID: s.ID, Name: s.Name, Fields: make(map[string]any)}
	}
	for _, sl := range slots {
		name := sl.field.Name
		out.Sensors[sl.sensor].Fields[name] = sl.value
		if sl.value != nil {
			out.Data[name] = sl.value
		} else if _, seen := out.Data[name]; !seen {
			out.Data[name] = nil
		}
	}
	return out, nil
}
