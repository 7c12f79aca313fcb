// Package readings turns feed stations into sensor registrations and measurement candidates.
package readings

import (
	"fmt"
	"math"
	"time"

	"github.com/02loveslollipop/iot-sensor-hub/services/bridge/internal/feed"
	"github.com/02loveslollipop/iot-sensor-hub/services/bridge/internal/state"
)

// Registration constants for every station sensor.
const (
	SensorType = "pluviometro"
	FieldName  = "precipitacion"
	FieldType  = "float"
)

// Candidate is a normalized reading ready to be forwarded.
type Candidate struct {
	Sensor string
	Value  *float64
	TS     time.Time
}

// SensorName is the registry name of a station.
func SensorName(code int) string {
	return fmt.Sprintf("pluvio_%d", code)
}

// SensorNames lists the registry names of stations in feed order.
func SensorNames(stations []feed.Station) []string {
	names := make([]string, 0, len(stations))
	for _, st := range stations {
		names = append(names, SensorName(st.Code))
	}
	return names
}

// BuildCandidates normalizes station values into candidates stamped with retrievalTS.
func BuildCandidates(stations []feed.Station, retrievalTS time.Time) []Candidate {
	candidates := make([]Candidate, 0, len(stations))
	for _, st := range stations {
		candidates = append(candidates, Candidate{
			Sensor: SensorName(st.Code),
			Value:  NormalizeValue(st.Value),
			TS:     retrievalTS,
		})
	}
	return candidates
}

// NormalizeValue cleans raw values; the -999 sentinel family becomes nil.
func NormalizeValue(v *float64) *float64 {
	if v == nil || *v <= -900 || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	val := *v
	return &val
}

// FilterNew selects candidates worth forwarding: first readings, readings older than
// minInterval since the last one, and changed values.
func FilterNew(candidates []Candidate, last state.State, minInterval time.Duration, epsilon float64) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, cand := range candidates {
		prev, ok := last[cand.Sensor]
		if !ok || prev.TS.IsZero() {
			out = append(out, cand)
			continue
		}
		if cand.TS.Sub(prev.TS) >= minInterval {
			out = append(out, cand)
			continue
		}
		if !ValuesEqual(prev.Value, cand.Value, epsilon) {
			out = append(out, cand)
		}
	}
	return out
}

// ValuesEqual compares two optional values with tolerance.
func ValuesEqual(a, b *float64, epsilon float64) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	default:
		return math.Abs(*a-*b) <= epsilon
	}
}

// ValueString prints optional values for logging.
func ValueString(v *float64) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%.3f", *v)
}
