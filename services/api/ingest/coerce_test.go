package ingest

import (
	"math"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/apperr"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/models"
)

func TestCoerce_Boolean(t *testing.T) {
	tests := []struct {
		name     string
		raw      any
		expected any
	}{
		{"literal true", true, true},
		{"literal false", false, false},
		{"string true", "true", true},
		{"string TRUE", "TRUE", true},
		{"string false", "false", false},
		{"string 1", "1", true},
		{"string 0", "0", false},
		{"string yes", "yes", true},
		{"string no", "No", false},
		{"string on", "on", true},
		{"string off", "OFF", false},
		{"int 0", 0, false},
		{"int 1", 1, true},
		{"int 7", 7, true},
		{"json 1", json.Number("1"), true},
		{"json 0", json.Number("0"), false},
		{"null", nil, nil},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := Coerce(test.raw, models.FieldBoolean, "relay")
			require.NoError(t, err)
			assert.Equal(t, test.expected, got)
		})
	}
}

func TestCoerce_BooleanRejects(t *testing.T) {
	for _, raw := range []any{"maybe", "", json.Number("1.5"), 1.5, []any{true}, map[string]any{}} {
		_, err := Coerce(raw, models.FieldBoolean, "relay")
		require.Error(t, err, "input %#v", raw)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		assert.Contains(t, err.Error(), "'relay'")
	}
}

func TestCoerce_Float(t *testing.T) {
	tests := []struct {
		name     string
		raw      any
		expected float64
	}{
		{"string integer", "42", 42},
		{"string decimal", "55.3", 55.3},
		{"padded string", " 12.5 ", 12.5},
		{"float", 42.5, 42.5},
		{"int", 3, 3},
		{"json number", json.Number("-0.25"), -0.25},
		{"exponent", "1e3", 1000},
		{"bool", true, 1},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := Coerce(test.raw, models.FieldFloat, "humidity")
			require.NoError(t, err)
			assert.Equal(t, test.expected, got)
		})
	}
}

func TestCoerce_FloatRejects(t *testing.T) {
	for _, raw := range []any{"abc", "", "12,5", "NaN", "inf", math.Inf(1), []any{1.0}} {
		_, err := Coerce(raw, models.FieldFloat, "humidity")
		require.Error(t, err, "input %#v", raw)
		assert.Equal(t, "El campo 'humidity' debe ser un número decimal válido", err.Error())
	}
}

func TestCoerce_Integer(t *testing.T) {
	tests := []struct {
		name     string
		raw      any
		expected int64
	}{
		{"string", "42", 42},
		{"signed string", "-7", -7},
		{"padded string", " 8 ", 8},
		{"int", 42, 42},
		{"uint", uint(42), 42},
		{"uint64", uint64(7), 7},
		{"json integer", json.Number("42"), 42},
		{"json fraction truncates", json.Number("42.9"), 42},
		{"negative fraction truncates", -3.7, -3},
		{"bool", false, 0},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := Coerce(test.raw, models.FieldInteger, "count")
			require.NoError(t, err)
			assert.Equal(t, test.expected, got)
		})
	}
}

func TestCoerce_IntegerRejects(t *testing.T) {
	for _, raw := range []any{"abc", "42.5", "", "99999999999999999999", uint64(math.MaxUint64), math.NaN(), map[string]any{"a": 1}} {
		_, err := Coerce(raw, models.FieldInteger, "count")
		require.Error(t, err, "input %#v", raw)
		assert.Equal(t, "El campo 'count' debe ser un número entero válido", err.Error())
	}
}

func TestCoerce_OpaquePassesThrough(t *testing.T) {
	raw := map[string]any{"lat": 6.2, "lon": -75.5}
	got, err := Coerce(raw, models.FieldOpaque, "gps")
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = Coerce("maybe", models.ParseFieldType("texto"), "note")
	require.NoError(t, err)
	assert.Equal(t, "maybe", got)
}

func TestCoerce_NilIsLegalForEveryKind(t *testing.T) {
	for _, kind := range []models.FieldType{models.FieldOpaque, models.FieldBoolean, models.FieldFloat, models.FieldInteger} {
		got, err := Coerce(nil, kind, "x")
		require.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestParseBool(t *testing.T) {
	v, err := ParseBool(nil, "activo", true)
	require.NoError(t, err)
	assert.True(t, v)

	v, err = ParseBool("off", "activo", true)
	require.NoError(t, err)
	assert.False(t, v)

	_, err = ParseBool("quizas", "activo", true)
	require.Error(t, err)
	assert.Equal(t, "El campo 'activo' debe ser un booleano válido (true/false)", err.Error())
}

func TestParseFieldType(t *testing.T) {
	assert.Equal(t, models.FieldBoolean, models.ParseFieldType("Boolean"))
	assert.Equal(t, models.FieldFloat, models.ParseFieldType("double"))
	assert.Equal(t, models.FieldFloat, models.ParseFieldType("FLOAT"))
	assert.Equal(t, models.FieldInteger, models.ParseFieldType("int"))
	assert.Equal(t, models.FieldInteger, models.ParseFieldType("integer"))
	assert.Equal(t, models.FieldOpaque, models.ParseFieldType("string"))
	assert.Equal(t, models.FieldOpaque, models.ParseFieldType("bool"))
}
