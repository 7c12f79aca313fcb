// Package device resolves logical device slots to the physical sensors behind them and
// projects the latest value of every active field of those sensors.
//
// Two resolution policies exist. PositionalResolver treats slot n as the n-th device by
// creation date and collects the active sensors linked to it. NamePatternResolver probes a
// static table of candidate sensor names per slot. A deployment runs exactly one of them.
package device

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/apperr"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/models"
)

// Policy names accepted by NewResolver.
const (
	PolicyPositional  = "positional"
	PolicyNamePattern = "name_pattern"
)

// DefaultFallbackPattern derives the candidate name for slots missing from the table.
const DefaultFallbackPattern = "dispositivo%d"

// Resolution is the physical grouping behind a slot.
type Resolution struct {
	Slot       int
	DeviceID   *uuid.UUID
	DeviceName *string
	Sensors    []models.Sensor
}

// Resolver maps a logical slot to sensors.
type Resolver interface {
	Resolve(ctx context.Context, slot int) (Resolution, error)
}

// DeviceStore is what PositionalResolver reads.
type DeviceStore interface {
	ListDevices(ctx context.Context) ([]models.Device, error)
	SensorsByDevice(ctx context.Context, deviceID uuid.UUID) ([]models.Sensor, error)
}

// SensorFinder is what NamePatternResolver reads.
type SensorFinder interface {
	ActiveSensorByName(ctx context.Context, name string) (*models.Sensor, error)
}

// PositionalResolver maps slot n to the n-th device by creation date.
type PositionalResolver struct {
	store DeviceStore
}

// NewPositionalResolver constructs a PositionalResolver.
func NewPositionalResolver(store DeviceStore) *PositionalResolver {
	return &PositionalResolver{store: store}
}

// Resolve implements Resolver.
func (r *PositionalResolver) Resolve(ctx context.Context, slot int) (Resolution, error) {
	devices, err := r.store.ListDevices(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("list devices: %w", err)
	}
	if slot < 1 || slot > len(devices) {
		return Resolution{}, apperr.NotFound("No existe el dispositivo lógico %d. Total disponibles: %d", slot, len(devices))
	}

	d := devices[slot-1]
	sensors, err := r.store.SensorsByDevice(ctx, d.ID)
	if err != nil {
		return Resolution{}, fmt.Errorf("list sensors of device %s: %w", d.ID, err)
	}
	id, name := d.ID, d.Name
	return Resolution{Slot: slot, DeviceID: &id, DeviceName: &name, Sensors: sensors}, nil
}

// NamePatternResolver maps a slot to the first active sensor among its candidate names.
type NamePatternResolver struct {
	store    SensorFinder
	table    map[int][]string
	fallback string
}

// NewNamePatternResolver constructs a NamePatternResolver. An empty fallback uses
// DefaultFallbackPattern.
func NewNamePatternResolver(store SensorFinder, table map[int][]string, fallback string) *NamePatternResolver {
	if fallback == "" {
		fallback = DefaultFallbackPattern
	}
	if table == nil {
		table = map[int][]string{}
	}
	return &NamePatternResolver{store: store, table: table, fallback: fallback}
}

// Candidates returns the names probed for slot, in order.
func (r *NamePatternResolver) Candidates(slot int) []string {
	if names, ok := r.table[slot]; ok && len(names) > 0 {
		return names
	}
	return []string{fmt.Sprintf(r.fallback, slot)}
}

// Resolve implements Resolver.
func (r *NamePatternResolver) Resolve(ctx context.Context, slot int) (Resolution, error) {
	candidates := r.Candidates(slot)
	for _, name := range candidates {
		sensor, err := r.store.ActiveSensorByName(ctx, name)
		if err != nil {
			return Resolution{}, fmt.Errorf("find sensor %q: %w", name, err)
		}
		if sensor != nil {
			sensorName := sensor.Name
			return Resolution{Slot: slot, DeviceName: &sensorName, Sensors: []models.Sensor{*sensor}}, nil
		}
	}
	return Resolution{}, apperr.NotFound("Dispositivo %d no encontrado (nombres probados: %s)", slot, strings.Join(candidates, ", "))
}

// Store satisfies both resolver policies.
type Store interface {
	DeviceStore
	SensorFinder
}

// NewResolver builds the resolver for policy. table and fallback only apply to the
// name-pattern policy.
func NewResolver(policy string, store Store, table map[int][]string, fallback string) (Resolver, error) {
	switch policy {
	case "", PolicyPositional:
		return NewPositionalResolver(store), nil
	case PolicyNamePattern:
		return NewNamePatternResolver(store, table, fallback), nil
	default:
		return nil, fmt.Errorf("unknown device resolver policy %q", policy)
	}
}
