package db

import (
	"context"

	"github.com/google/uuid"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/apperr"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/models"
)

const upsertSensorSQL = `
INSERT INTO iotdb.sensores (id, sensor, tipo_sensor, activo, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW())
ON CONFLICT (sensor) DO UPDATE
SET tipo_sensor = EXCLUDED.tipo_sensor,
    activo = EXCLUDED.activo,
    updated_at = NOW()
RETURNING id, (xmax = 0) AS created`

const upsertFieldByNameSQL = `
INSERT INTO iotdb.sensor_campos (id, sensor_id, posicion, nombre_campo, tipo_campo, activo)
VALUES ($1, $2, (SELECT COALESCE(MAX(posicion), 0) + 1 FROM iotdb.sensor_campos WHERE sensor_id = $2), $3, $4, $5)
ON CONFLICT (sensor_id, nombre_campo) DO UPDATE
SET tipo_campo = EXCLUDED.tipo_campo,
    activo = EXCLUDED.activo`

const updateFieldByIDSQL = `
UPDATE iotdb.sensor_campos
SET nombre_campo = $3, tipo_campo = $4, activo = $5
WHERE id = $1 AND sensor_id = $2`

const updateSensorSQL = `
UPDATE iotdb.sensores
SET sensor = $2, tipo_sensor = $3, activo = $4, updated_at = NOW()
WHERE id = $1`

const selectSensorsSQL = `
SELECT id, sensor, tipo_sensor, activo, dispositivo_id, created_at, updated_at
FROM iotdb.sensores`

const selectFieldsSQL = `
SELECT id, sensor_id, nombre_campo, tipo_campo, activo
FROM iotdb.sensor_campos
WHERE sensor_id = ANY($1)
ORDER BY sensor_id, posicion`

// UpsertSensor creates the sensor named in.Name or updates it in place, merging fields by
// name. It reports whether the sensor was created.
func (s *Store) UpsertSensor(ctx context.Context, in models.SensorInput) (uuid.UUID, bool, error) {
	if err := s.ready(); err != nil {
		return uuid.Nil, false, err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, false, translate(err)
	}
	defer tx.Rollback(ctx)

	var id uuid.UUID
	var created bool
	if err := tx.QueryRow(ctx, upsertSensorSQL, uuid.New(), in.Name, in.Type, in.Active).Scan(&id, &created); err != nil {
		return uuid.Nil, false, translate(err)
	}
	for _, f := range in.Fields {
		if _, err := tx.Exec(ctx, upsertFieldByNameSQL, uuid.New(), id, f.Name, f.Type, f.Active); err != nil {
			return uuid.Nil, false, translate(err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, false, translate(err)
	}
	return id, created, nil
}

// SetSensorActive toggles the active flag.
func (s *Store) SetSensorActive(ctx context.Context, id uuid.UUID, active bool) error {
	if err := s.ready(); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE iotdb.sensores SET activo = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Sensor no encontrado")
	}
	return nil
}

// UpdateSensor replaces name, type and flag, then merges fields by id and then by name.
func (s *Store) UpdateSensor(ctx context.Context, id uuid.UUID, in models.SensorInput) error {
	if err := s.ready(); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return translate(err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, updateSensorSQL, id, in.Name, in.Type, in.Active)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return apperr.Conflict(err, "Ya existe un sensor con nombre '%s'", in.Name)
		}
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Sensor no encontrado")
	}

	for _, f := range in.Fields {
		if f.ID != nil {
			tag, err := tx.Exec(ctx, updateFieldByIDSQL, *f.ID, id, f.Name, f.Type, f.Active)
			if err != nil {
				if pgCode(err) == codeUniqueViolation {
					return apperr.Conflict(err, "El campo '%s' ya existe en el sensor", f.Name)
				}
				return translate(err)
			}
			if tag.RowsAffected() > 0 {
				continue
			}
		}
		if _, err := tx.Exec(ctx, upsertFieldByNameSQL, uuid.New(), id, f.Name, f.Type, f.Active); err != nil {
			return translate(err)
		}
	}
	return translate(tx.Commit(ctx))
}

// DeleteSensor removes the sensor's measurements, then the sensor and its fields, in one
// transaction.
func (s *Store) DeleteSensor(ctx context.Context, id uuid.UUID) error {
	if err := s.ready(); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return translate(err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM iotdb.medidas WHERE sensor_id = $1`, id); err != nil {
		return translate(err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM iotdb.sensores WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Sensor no encontrado")
	}
	return translate(tx.Commit(ctx))
}

// ListSensors returns sensors with their fields, oldest first.
func (s *Store) ListSensors(ctx context.Context, activeOnly bool) ([]models.Sensor, error) {
	if activeOnly {
		return s.querySensors(ctx, " WHERE activo")
	}
	return s.querySensors(ctx, "")
}

// SensorsByDevice returns the active sensors linked to deviceID.
func (s *Store) SensorsByDevice(ctx context.Context, deviceID uuid.UUID) ([]models.Sensor, error) {
	return s.querySensors(ctx, " WHERE activo AND dispositivo_id = $1", deviceID)
}

// ActiveSensorByName returns the active sensor called name, or nil.
func (s *Store) ActiveSensorByName(ctx context.Context, name string) (*models.Sensor, error) {
	sensors, err := s.querySensors(ctx, " WHERE activo AND sensor = $1", name)
	if err != nil || len(sensors) == 0 {
		return nil, err
	}
	return &sensors[0], nil
}

func (s *Store) querySensors(ctx context.Context, where string, args ...any) ([]models.Sensor, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, selectSensorsSQL+where+" ORDER BY created_at, id", args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	sensors := make([]models.Sensor, 0)
	index := make(map[uuid.UUID]int)
	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var sensor models.Sensor
		if err := rows.Scan(
			&sensor.ID,
			&sensor.Name,
			&sensor.Type,
			&sensor.Active,
			&sensor.DeviceID,
			&sensor.CreatedAt,
			&sensor.UpdatedAt,
		); err != nil {
			return nil, err
		}
		sensor.Fields = make([]models.Field, 0)
		index[sensor.ID] = len(sensors)
		ids = append(ids, sensor.ID)
		sensors = append(sensors, sensor)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	rows.Close()
	if len(ids) == 0 {
		return sensors, nil
	}

	if err := s.attachFields(ctx, sensors, index, ids); err != nil {
		return nil, err
	}
	return sensors, nil
}

func (s *Store) attachFields(ctx context.Context, sensors []models.Sensor, index map[uuid.UUID]int, ids []uuid.UUID) error {
	rows, err := s.pool.Query(ctx, selectFieldsSQL, ids)
	if err != nil {
		return translate(err)
	}
	defer rows.Close()

	for rows.Next() {
		var f models.Field
		var sensorID uuid.UUID
		if err := rows.Scan(&f.ID, &sensorID, &f.Name, &f.Type, &f.Active); err != nil {
			return err
		}
		if i, ok := index[sensorID]; ok {
			sensors[i].Fields = append(sensors[i].Fields, f)
		}
	}
	return translate(rows.Err())
}

// LinkSensor sets the sensor's device reference.
func (s *Store) LinkSensor(ctx context.Context, sensorID, deviceID uuid.UUID) error {
	if err := s.ready(); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE iotdb.sensores SET dispositivo_id = $2, updated_at = NOW() WHERE id = $1`, sensorID, deviceID)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return apperr.NotFound("Dispositivo no encontrado")
		}
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Sensor no encontrado")
	}
	return nil
}

// UnlinkSensor clears the sensor's device reference.
func (s *Store) UnlinkSensor(ctx context.Context, sensorID uuid.UUID) error {
	if err := s.ready(); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE iotdb.sensores SET dispositivo_id = NULL, updated_at = NOW() WHERE id = $1`, sensorID)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Sensor no encontrado")
	}
	return nil
}
