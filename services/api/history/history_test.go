package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/apperr"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/db/memstore"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/history"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/models"
)

type fixture struct {
	store    *memstore.Store
	sensorID uuid.UUID
	fields   map[string]uuid.UUID
	base     time.Time
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	id, _, err := store.UpsertSensor(ctx, models.SensorInput{
		Name:   "tempA",
		Type:   "ambiente",
		Active: true,
		Fields: []models.FieldInput{
			{Name: "humidity", Type: "float", Active: true},
			{Name: "relay", Type: "boolean", Active: true},
		},
	})
	require.NoError(t, err)

	sensors, err := store.ListSensors(ctx, false)
	require.NoError(t, err)
	fields := map[string]uuid.UUID{}
	for _, f := range sensors[0].Fields {
		fields[f.Name] = f.ID
	}

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var batch []models.Measurement
	for i := 0; i < 5; i++ {
		batch = append(batch, models.Measurement{
			ID:        uuid.New(),
			SensorID:  id,
			FieldID:   fields["humidity"],
			Value:     float64(50 + i),
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
	}
	batch = append(batch, models.Measurement{ID: uuid.New(), SensorID: id, FieldID: fields["relay"], Value: false, Timestamp: base.Add(10 * time.Hour)})
	require.NoError(t, store.InsertMeasurements(ctx, batch))
	return fixture{store: store, sensorID: id, fields: fields, base: base}
}

func TestQuery_NewestFirstWithDefaultLimit(t *testing.T) {
	fx := newFixture(t)
	svc := history.NewService(fx.store, 3)

	rows, err := svc.Query(context.Background(), history.Params{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "relay", rows[0].FieldName)
	assert.Equal(t, "false", rows[0].Value)
	assert.Equal(t, "tempA", rows[0].Sensor)
	assert.Equal(t, "2025-03-01T22:00:00Z", rows[0].Timestamp)
	assert.Equal(t, 54.0, rows[1].Value)
	assert.Equal(t, 53.0, rows[2].Value)
}

func TestQuery_FiltersAndInclusiveRange(t *testing.T) {
	fx := newFixture(t)
	svc := history.NewService(fx.store, 0)

	rows, err := svc.Query(context.Background(), history.Params{
		FieldID: fx.fields["humidity"].String(),
		From:    "2025-03-01T13:00:00Z",
		To:      "2025-03-01T15:00:00",
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 53.0, rows[0].Value)
	assert.Equal(t, 51.0, rows[2].Value)

	rows, err = svc.Query(context.Background(), history.Params{SensorID: uuid.New().String()})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestQuery_IsIdempotent(t *testing.T) {
	fx := newFixture(t)
	svc := history.NewService(fx.store, 100)
	p := history.Params{Limit: "4"}

	first, err := svc.Query(context.Background(), p)
	require.NoError(t, err)
	second, err := svc.Query(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParseParams_Rejects(t *testing.T) {
	cases := map[string]history.Params{
		"zero limit":     {Limit: "0"},
		"negative limit": {Limit: "-5"},
		"text limit":     {Limit: "diez"},
		"bad sensor":     {SensorID: "abc"},
		"bad field":      {FieldID: "123"},
		"bad from":       {From: "ayer"},
		"bad to":         {To: "2025-13-45"},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := history.ParseParams(p, 100)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2025-03-01T12:00:00Z", time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
		{"2025-03-01T12:00:00+02:00", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"2025-03-01T12:00:00.5", time.Date(2025, 3, 1, 12, 0, 0, 500000000, time.UTC)},
		{"2025-03-01 08:30:00", time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)},
		{"2025-03-01", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := history.ParseTimestamp(tc.in)
		require.NoError(t, err, tc.in)
		assert.True(t, tc.want.Equal(got), "%s: got %s", tc.in, got)
	}
}
