package db

import (
	"bytes"

	json "github.com/goccy/go-json"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/models"
)

// encodeValue renders a coerced measurement value as jsonb text. nil becomes SQL NULL.
func encodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// decodeValue reverses encodeValue for a field of the given kind. Float fields always come
// back as float64 and integer fields as int64. Opaque numbers are int64 when integral,
// float64 otherwise.
func decodeValue(raw []byte, kind models.FieldType) (any, error) {
	if raw == nil {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if n, ok := v.(json.Number); ok {
		switch kind {
		case models.FieldFloat:
			return n.Float64()
		case models.FieldInteger:
			return n.Int64()
		}
	}
	return normalizeNumbers(v), nil
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, inner := range t {
			t[k] = normalizeNumbers(inner)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = normalizeNumbers(inner)
		}
		return t
	default:
		return v
	}
}
