// Package memstore is an in-memory implementation of the sensor hub store. It backs the
// STORE_DRIVER=memory development mode and the package tests.
package memstore

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/apperr"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/models"
)

// Store keeps every collection in maps guarded by one lock.
type Store struct {
	mu           sync.RWMutex
	now          func() time.Time
	sensors      map[uuid.UUID]*models.Sensor
	devices      map[uuid.UUID]models.Device
	measurements []models.Measurement
	votes        map[uuid.UUID]models.Vote
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		now:     func() time.Time { return time.Now().UTC() },
		sensors: make(map[uuid.UUID]*models.Sensor),
		devices: make(map[uuid.UUID]models.Device),
		votes:   make(map[uuid.UUID]models.Vote),
	}
}

// SetClock overrides the timestamp source used for created/updated dates.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Connected always reports true.
func (s *Store) Connected() bool { return true }

// Ping reports the store flavour in place of a server version.
func (s *Store) Ping(ctx context.Context) (string, error) {
	return "memory", ctx.Err()
}

// Close is a no-op.
func (s *Store) Close() {}

func cloneSensor(src *models.Sensor) models.Sensor {
	out := *src
	out.Fields = append(make([]models.Field, 0, len(src.Fields)), src.Fields...)
	if src.DeviceID != nil {
		id := *src.DeviceID
		out.DeviceID = &id
	}
	return out
}

func (s *Store) sensorByName(name string) *models.Sensor {
	for _, sensor := range s.sensors {
		if sensor.Name == name {
			return sensor
		}
	}
	return nil
}

// mergeField updates the field matching in by id (when given and present) or by name, or
// appends a new one.
func mergeField(sensor *models.Sensor, in models.FieldInput) error {
	idx := -1
	if in.ID != nil {
		for i, f := range sensor.Fields {
			if f.ID == *in.ID {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		for i, f := range sensor.Fields {
			if f.Name == in.Name {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		sensor.Fields = append(sensor.Fields, models.Field{ID: uuid.New(), Name: in.Name, Type: in.Type, Active: in.Active})
		return nil
	}
	for i, f := range sensor.Fields {
		if i != idx && f.Name == in.Name {
			return apperr.Conflict(nil, "El campo '%s' ya existe en el sensor", in.Name)
		}
	}
	sensor.Fields[idx].Name = in.Name
	sensor.Fields[idx].Type = in.Type
	sensor.Fields[idx].Active = in.Active
	return nil
}

// UpsertSensor creates the sensor named in.Name or updates it in place.
func (s *Store) UpsertSensor(ctx context.Context, in models.SensorInput) (uuid.UUID, bool, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	created := false
	sensor := s.sensorByName(in.Name)
	if sensor == nil {
		sensor = &models.Sensor{ID: uuid.New(), Name: in.Name, CreatedAt: now}
		created = true
	}
	work := cloneSensor(sensor)
	work.Type = in.Type
	work.Active = in.Active
	work.UpdatedAt = now
	for _, f := range in.Fields {
		f.ID = nil
		if err := mergeField(&work, f); err != nil {
			return uuid.Nil, false, err
		}
	}
	s.sensors[work.ID] = &work
	return work.ID, created, nil
}

// SetSensorActive toggles the active flag.
func (s *Store) SetSensorActive(ctx context.Context, id uuid.UUID, active bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sensor, ok := s.sensors[id]
	if !ok {
		return apperr.NotFound("Sensor no encontrado")
	}
	sensor.Active = active
	sensor.UpdatedAt = s.now()
	return nil
}

// UpdateSensor replaces name, type and flag and merges fields.
func (s *Store) UpdateSensor(ctx context.Context, id uuid.UUID, in models.SensorInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sensor, ok := s.sensors[id]
	if !ok {
		return apperr.NotFound("Sensor no encontrado")
	}
	if other := s.sensorByName(in.Name); other != nil && other.ID != id {
		return apperr.Conflict(nil, "Ya existe un sensor con nombre '%s'", in.Name)
	}
	work := cloneSensor(sensor)
	work.Name = in.Name
	work.Type = in.Type
	work.Active = in.Active
	work.UpdatedAt = s.now()
	for _, f := range in.Fields {
		if err := mergeField(&work, f); err != nil {
			return err
		}
	}
	s.sensors[id] = &work
	return nil
}

// DeleteSensor removes the sensor and its measurements.
func (s *Store) DeleteSensor(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sensors[id]; !ok {
		return apperr.NotFound("Sensor no encontrado")
	}
	kept := s.measurements[:0]
	for _, m := range s.measurements {
		if m.SensorID != id {
			kept = append(kept, m)
		}
	}
	s.measurements = kept
	delete(s.sensors, id)
	return nil
}

// ListSensors returns sensors ordered by creation date.
func (s *Store) ListSensors(ctx context.Context, activeOnly bool) ([]models.Sensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Sensor, 0, len(s.sensors))
	for _, sensor := range s.sensors {
		if activeOnly && !sensor.Active {
			continue
		}
		out = append(out, cloneSensor(sensor))
	}
	sortSensors(out)
	return out, nil
}

func sortSensors(sensors []models.Sensor) {
	sort.Slice(sensors, func(i, j int) bool {
		if !sensors[i].CreatedAt.Equal(sensors[j].CreatedAt) {
			return sensors[i].CreatedAt.Before(sensors[j].CreatedAt)
		}
		return bytes.Compare(sensors[i].ID[:], sensors[j].ID[:]) < 0
	})
}

// SensorsByDevice returns the active sensors linked to deviceID.
func (s *Store) SensorsByDevice(ctx context.Context, deviceID uuid.UUID) ([]models.Sensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Sensor, 0)
	for _, sensor := range s.sensors {
		if sensor.Active && sensor.DeviceID != nil && *sensor.DeviceID == deviceID {
			out = append(out, cloneSensor(sensor))
		}
	}
	sortSensors(out)
	return out, nil
}

// ActiveSensorByName returns the active sensor called name, or nil.
func (s *Store) ActiveSensorByName(ctx context.Context, name string) (*models.Sensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sensor := s.sensorByName(name)
	if sensor == nil || !sensor.Active {
		return nil, nil
	}
	out := cloneSensor(sensor)
	return &out, nil
}

// LinkSensor sets the sensor's device reference.
func (s *Store) LinkSensor(ctx context.Context, sensorID, deviceID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sensor, ok := s.sensors[sensorID]
	if !ok {
		return apperr.NotFound("Sensor no encontrado")
	}
	if _, ok := s.devices[deviceID]; !ok {
		return apperr.NotFound("Dispositivo no encontrado")
	}
	id := deviceID
	sensor.DeviceID = &id
	sensor.UpdatedAt = s.now()
	return nil
}

// UnlinkSensor clears the sensor's device reference.
func (s *Store) UnlinkSensor(ctx context.Context, sensorID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sensor, ok := s.sensors[sensorID]
	if !ok {
		return apperr.NotFound("Sensor no encontrado")
	}
	sensor.DeviceID = nil
	sensor.UpdatedAt = s.now()
	return nil
}

// CreateDevice registers a device.
func (s *Store) CreateDevice(ctx context.Context, name string, location *string) (models.Device, error) {
	if err := ctx.Err(); err != nil {
		return models.Device{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d := models.Device{ID: uuid.New(), Name: name, Location: location, CreatedAt: s.now()}
	s.devices[d.ID] = d
	return d, nil
}

// ListDevices returns devices oldest first.
func (s *Store) ListDevices(ctx context.Context) ([]models.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out, nil
}

// InsertMeasurements appends all measurements at once.
func (s *Store) InsertMeasurements(ctx context.Context, measurements []models.Measurement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.measurements = append(s.measurements, measurements...)
	return nil
}

// Measurements returns a copy of every stored measurement.
func (s *Store) Measurements() []models.Measurement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Measurement(nil), s.measurements...)
}

// newestFirst orders by timestamp descending, then id descending.
func newestFirst(a, b models.Measurement) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) > 0
}

// LatestMeasurement returns the newest measurement for the slot, or nil.
func (s *Store) LatestMeasurement(ctx context.Context, sensorID, fieldID uuid.UUID) (*models.Measurement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.Measurement
	for i := range s.measurements {
		m := s.measurements[i]
		if m.SensorID != sensorID || m.FieldID != fieldID {
			continue
		}
		if latest == nil || newestFirst(m, *latest) {
			latest = &m
		}
	}
	return latest, nil
}

// QueryHistory filters, sorts and limits measurements, then joins sensor and field names.
func (s *Store) QueryHistory(ctx context.Context, f models.HistoryFilter) ([]models.HistoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]models.Measurement, 0)
	for _, m := range s.measurements {
		if f.SensorID != nil && m.SensorID != *f.SensorID {
			continue
		}
		if f.FieldID != nil && m.FieldID != *f.FieldID {
			continue
		}
		if f.From != nil && m.Timestamp.Before(*f.From) {
			continue
		}
		if f.To != nil && m.Timestamp.After(*f.To) {
			continue
		}
		matched = append(matched, m)
	}
	sort.Slice(matched, func(i, j int) bool { return newestFirst(matched[i], matched[j]) })
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}

	out := make([]models.HistoryRecord, 0, len(matched))
	for _, m := range matched {
		sensor, ok := s.sensors[m.SensorID]
		if !ok {
			continue
		}
		for _, field := range sensor.Fields {
			if field.ID != m.FieldID {
				continue
			}
			out = append(out, models.HistoryRecord{
				ID:         m.ID,
				SensorName: sensor.Name,
				FieldName:  field.Name,
				Value:      m.Value,
				Timestamp:  m.Timestamp,
			})
			break
		}
	}
	return out, nil
}

// PurgeMeasurements deletes measurements taken at or before until.
func (s *Store) PurgeMeasurements(ctx context.Context, until time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	kept := s.measurements[:0]
	for _, m := range s.measurements {
		if m.Timestamp.After(until) {
			kept = append(kept, m)
			continue
		}
		removed++
	}
	s.measurements = kept
	return removed, nil
}

// Stats counts sensors and measurements.
func (s *Store) Stats(ctx context.Context) (models.StoreStats, error) {
	if err := ctx.Err(); err != nil {
		return models.StoreStats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.StoreStats{Sensors: int64(len(s.sensors)), Measurements: int64(len(s.measurements))}
	for _, m := range s.measurements {
		if stats.LastMeasurement == nil || m.Timestamp.After(*stats.LastMeasurement) {
			ts := m.Timestamp
			stats.LastMeasurement = &ts
		}
	}
	return stats, nil
}

// InsertVote stores v.
func (s *Store) InsertVote(ctx context.Context, v models.Vote) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.votes[v.ID] = v
	return nil
}

// ListVotes returns matching votes, newest first.
func (s *Store) ListVotes(ctx context.Context, f models.VoteFilter) ([]models.Vote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Vote, 0)
	for _, v := range s.votes {
		if f.Rating != nil && v.Rating != *f.Rating {
			continue
		}
		if f.Device != nil && (v.Device == nil || *v.Device != *f.Device) {
			continue
		}
		if f.Crop != nil && (v.Crop == nil || *v.Crop != *f.Crop) {
			continue
		}
		if f.Medium != nil && (v.Medium == nil || *v.Medium != *f.Medium) {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) > 0
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// VoteStats aggregates all ratings.
func (s *Store) VoteStats(ctx context.Context) (models.VoteStats, error) {
	if err := ctx.Err(); err != nil {
		return models.VoteStats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats models.VoteStats
	var sum int64
	for _, v := range s.votes {
		stats.Total++
		sum += int64(v.Rating)
		if v.Rating >= 1 && v.Rating <= 5 {
			stats.Distribution[v.Rating-1]++
		}
	}
	if stats.Total > 0 {
		stats.Average = float64(sum) / float64(stats.Total)
	}
	return stats, nil
}

// DeleteVote removes one vote.
func (s *Store) DeleteVote(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.votes[id]; !ok {
		return apperr.NotFound("Votación no encontrada")
	}
	delete(s.votes, id)
	return nil
}

// DeleteAllVotes removes every vote and reports how many were deleted.
func (s *Store) DeleteAllVotes(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.votes))
	s.votes = make(map[uuid.UUID]models.Vote)
	return n, nil
}
