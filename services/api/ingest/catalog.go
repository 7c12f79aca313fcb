package ingest

import (
	"github.com/google/uuid"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/models"
)

// FieldSlot is the resolved target of a reading.
type FieldSlot struct {
	ID   uuid.UUID
	Kind models.FieldType
}

// SensorEntry is the catalog view of one active sensor.
type SensorEntry struct {
	ID     uuid.UUID
	Fields map[string]FieldSlot
}

// Catalog maps active sensor names to their active fields.
type Catalog map[string]SensorEntry

// BuildCatalog indexes sensors by name, keeping only active sensors and, within them,
// active fields.
func BuildCatalog(sensors []models.Sensor) Catalog {
	catalog := make(Catalog, len(sensors))
	for _, s := range sensors {
		if !s.Active {
			continue
		}
		entry := SensorEntry{ID: s.ID, Fields: make(map[string]FieldSlot, len(s.Fields))}
		for _, f := range s.Fields {
			if !f.Active {
				continue
			}
			entry.Fields[f.Name] = FieldSlot{ID: f.ID, Kind: f.Kind()}
		}
		catalog[s.Name] = entry
	}
	return catalog
}

// Sensor returns the entry for name.
func (c Catalog) Sensor(name string) (SensorEntry, bool) {
	e, ok := c[name]
	return e, ok
}

// Field resolves a (sensor, field) name pair.
func (c Catalog) Field(sensor, field string) (uuid.UUID, FieldSlot, bool) {
	e, ok := c[sensor]
	if !ok {
		return uuid.Nil, FieldSlot{}, false
	}
	slot, ok := e.Fields[field]
	return e.ID, slot, ok
}
