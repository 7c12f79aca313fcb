package ingest

import (
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/apperr"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/models"
)

// Coerce converts raw into the declared kind. A nil raw value is legal for every kind and
// yields nil. Errors are validation errors naming field.
func Coerce(raw any, kind models.FieldType, field string) (any, error) {
	if raw == nil {
		return nil, nil
	}

	switch kind {
	case models.FieldBoolean:
		return coerceBool(raw, field)
	case models.FieldFloat:
		f, ok := toFloat(raw)
		if !ok {
			return nil, apperr.Validation("El campo '%s' debe ser un número decimal válido", field)
		}
		return f, nil
	case models.FieldInteger:
		i, ok := toInt(raw)
		if !ok {
			return nil, apperr.Validation("El campo '%s' debe ser un número entero válido", field)
		}
		return i, nil
	default:
		return raw, nil
	}
}

// ParseBool applies the boolean coercion rules to a flag, returning def for nil.
func ParseBool(raw any, field string, def bool) (bool, error) {
	if raw == nil {
		return def, nil
	}
	v, err := coerceBool(raw, field)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func coerceBool(raw any, field string) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(v) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		}
		return nil, apperr.Validation("El campo '%s' debe ser un booleano válido (true/false)", field)
	}
	if i, ok := integral(raw); ok {
		return i != 0, nil
	}
	return nil, apperr.Validation("El campo '%s' debe ser un booleano válido", field)
}

// integral reports raw as an int64 when it is an integer-typed value or an integer JSON literal.
func integral(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint:
		return fromUint64(uint64(v))
	case uint64:
		return fromUint64(v)
	case json.Number:
		i, err := strconv.ParseInt(v.String(), 10, 64)
		return i, err == nil
	}
	return 0, false
}

func fromUint64(v uint64) (int64, bool) {
	if v > math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

func toFloat(raw any) (float64, bool) {
	var f float64
	switch v := raw.(type) {
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case float32:
		f = float64(v)
	case float64:
		f = v
	case json.Number:
		parsed, err := strconv.ParseFloat(v.String(), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		i, ok := integral(raw)
		if !ok {
			return 0, false
		}
		f = float64(i)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toInt(raw any) (int64, bool) {
	switch v := raw.(type) {
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return i, err == nil
	case float32:
		return truncate(float64(v))
	case float64:
		return truncate(v)
	case json.Number:
		if i, err := strconv.ParseInt(v.String(), 10, 64); err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(v.String(), 64)
		if err != nil {
			return 0, false
		}
		return truncate(f)
	}
	return integral(raw)
}

// truncate drops the fractional part toward zero, rejecting values outside int64.
func truncate(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	t := math.Trunc(f)
	if t < math.MinInt64 || t >= math.MaxInt64 {
		return 0, false
	}
	return int64(t), true
}
