package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// FieldType is the closed set of declared field types a sensor field can carry.
type FieldType int

const (
	// FieldOpaque values are stored as received.
	FieldOpaque FieldType = iota
	FieldBoolean
	FieldFloat
	FieldInteger
)

// ParseFieldType maps a declared type string to its FieldType. Unknown names are opaque.
func ParseFieldType(name string) FieldType {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "boolean":
		return FieldBoolean
	case "float", "double":
		return FieldFloat
	case "integer", "int":
		return FieldInteger
	default:
		return FieldOpaque
	}
}

func (t FieldType) String() string {
	switch t {
	case FieldBoolean:
		return "boolean"
	case FieldFloat:
		return "float"
	case FieldInteger:
		return "integer"
	default:
		return "opaque"
	}
}

// Field is a named, typed value slot nested in a sensor.
type Field struct {
	ID     uuid.UUID `json:"campo_id"`
	Name   string    `json:"nombre_campo"`
	Type   string    `json:"tipo_campo"`
	Active bool      `json:"activo"`
}

// Kind returns the interpreted declared type.
func (f Field) Kind() FieldType {
	return ParseFieldType(f.Type)
}

// Sensor represents a registered data source and its ordered fields.
type Sensor struct {
	ID        uuid.UUID  `json:"sensor_id"`
	Name      string     `json:"sensor"`
	Type      string     `json:"tipo_sensor"`
	Active    bool       `json:"activo"`
	DeviceID  *uuid.UUID `json:"dispositivo_id"`
	Fields    []Field    `json:"campos"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ActiveFields returns the fields with the active flag set, in declaration order.
func (s Sensor) ActiveFields() []Field {
	out := make([]Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.Active {
			out = append(out, f)
		}
	}
	return out
}

// FieldInput describes a field in a registration or edit request. ID is only set on edits
// that address an existing field directly.
type FieldInput struct {
	ID     *uuid.UUID
	Name   string
	Type   string
	Active bool
}

// SensorInput carries the writable attributes of a sensor.
type SensorInput struct {
	Name   string
	Type   string
	Active bool
	Fields []FieldInput
}

// Device is a physical grouping that sensors can be linked to.
type Device struct {
	ID        uuid.UUID `json:"_id"`
	Name      string    `json:"nombre"`
	Location  *string   `json:"ubicacion"`
	CreatedAt time.Time `json:"created_at"`
}

// Measurement is one timestamped value for a (sensor, field) pair.
type Measurement struct {
	ID        uuid.UUID `json:"_id"`
	SensorID  uuid.UUID `json:"sensor_id"`
	FieldID   uuid.UUID `json:"campo_id"`
	Value     any       `json:"valor"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryFilter selects measurements for the history view.
type HistoryFilter struct {
	Limit    int
	SensorID *uuid.UUID
	FieldID  *uuid.UUID
	From     *time.Time
	To       *time.Time
}

// HistoryRecord is a measurement joined with its sensor and field names.
type HistoryRecord struct {
	ID         uuid.UUID
	SensorName string
	FieldName  string
	Value      any
	Timestamp  time.Time
}

// HistoryRow is the wire form of a HistoryRecord.
type HistoryRow struct {
	ID        string `json:"_id"`
	Sensor    string `json:"sensor"`
	FieldName string `json:"nombre_campo"`
	Value     any    `json:"valor"`
	Timestamp string `json:"timestamp"`
}

// StoreStats summarizes store contents for the status endpoint.
type StoreStats struct {
	Sensors         int64
	Measurements    int64
	LastMeasurement *time.Time
}

// Vote is a user satisfaction rating.
type Vote struct {
	ID     uuid.UUID `json:"_id"`
	Rating int       `json:"rating"`
	Device *int      `json:"dispositivo"`
	Crop   *string   `json:"cultivo"`
	Medium *string   `json:"medio"`
	Date   time.Time `json:"fecha"`
}

// VoteFilter narrows a vote listing.
type VoteFilter struct {
	Rating *int
	Device *int
	Crop   *string
	Medium *string
	Limit  int
}

// VoteStats aggregates ratings.
type VoteStats struct {
	Total        int64
	Average      float64
	Distribution [5]int64
}

// DisplayValue renders a stored value for output. Booleans become "true"/"false" so they
// read the same as textual values; everything else passes through.
func DisplayValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return "true"
		}
		return "false"
	}
	return v
}

// FormatTimestamp renders a timestamp in a round-trippable textual form.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
