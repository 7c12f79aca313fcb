// Package history answers filtered, newest-first measurement queries joined with sensor and
// field names.
package history

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/apperr"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/models"
)

// DefaultLimit is used when neither the request nor the service sets one.
const DefaultLimit = 100

// Source runs the filtered query against the store.
type Source interface {
	QueryHistory(ctx context.Context, f models.HistoryFilter) ([]models.HistoryRecord, error)
}

// Params are the raw query-string values. Empty strings mean "not given".
type Params struct {
	Limit    string
	SensorID string
	FieldID  string
	From     string
	To       string
}

// Service formats history rows.
type Service struct {
	src          Source
	defaultLimit int
}

// NewService constructs a Service. A non-positive defaultLimit falls back to DefaultLimit.
func NewService(src Source, defaultLimit int) *Service {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	return &Service{src: src, defaultLimit: defaultLimit}
}

// Query parses p, runs the filtered query and renders the rows.
func (s *Service) Query(ctx context.Context, p Params) ([]models.HistoryRow, error) {
	filter, err := ParseParams(p, s.defaultLimit)
	if err != nil {
		return nil, err
	}
	records, err := s.src.QueryHistory(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	rows := make([]models.HistoryRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, models.HistoryRow{
			ID:        r.ID.String(),
			Sensor:    r.SensorName,
			FieldName: r.FieldName,
			Value:     models.DisplayValue(r.Value),
			Timestamp: models.FormatTimestamp(r.Timestamp),
		})
	}
	return rows, nil
}

// ParseParams validates the raw parameters into a store filter.
func ParseParams(p Params, defaultLimit int) (models.HistoryFilter, error) {
	f := models.HistoryFilter{Limit: defaultLimit}

	if v := strings.TrimSpace(p.Limit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, apperr.Validation("El parámetro 'limite' debe ser un entero positivo")
		}
		f.Limit = n
	}
	if v := strings.TrimSpace(p.SensorID); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, apperr.Validation("sensor_id inválido: %s", v)
		}
		f.SensorID = &id
	}
	if v := strings.TrimSpace(p.FieldID); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, apperr.Validation("campo_id inválido: %s", v)
		}
		f.FieldID = &id
	}
	if v := strings.TrimSpace(p.From); v != "" {
		t, err := ParseTimestamp(v)
		if err != nil {
			return f, apperr.Validation("Fecha 'desde' inválida: %s", v)
		}
		f.From = &t
	}
	if v := strings.TrimSpace(p.To); v != "" {
		t, err := ParseTimestamp(v)
		if err != nil {
			return f, apperr.Validation("Fecha 'hasta' inválida: %s", v)
		}
		f.To = &t
	}
	return f, nil
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 timestamps, offset-less date-times (read as UTC) and
// plain dates (midnight UTC).
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
