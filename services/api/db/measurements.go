package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/models"
)

const insertMeasurementSQL = `
INSERT INTO iotdb.medidas (id, sensor_id, campo_id, valor, timestamp)
VALUES ($1, $2, $3, $4::jsonb, $5)`

const latestMeasurementSQL = `
SELECT m.id, m.sensor_id, m.campo_id, m.valor, m.timestamp, c.tipo_campo
FROM iotdb.medidas m
LEFT JOIN iotdb.sensor_campos c ON c.id = m.campo_id
WHERE m.sensor_id = $1 AND m.campo_id = $2
ORDER BY m.timestamp DESC, m.id DESC
LIMIT 1`

const statsSQL = `
SELECT
  (SELECT COUNT(*) FROM iotdb.sensores),
  (SELECT COUNT(*) FROM iotdb.medidas),
  (SELECT MAX(timestamp) FROM iotdb.medidas)`

// InsertMeasurements writes all measurements in one transaction.
func (s *Store) InsertMeasurements(ctx context.Context, measurements []models.Measurement) error {
	if err := s.ready(); err != nil {
		return err
	}
	if len(measurements) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range measurements {
		raw, err := encodeValue(m.Value)
		if err != nil {
			return fmt.Errorf("encode value for %s: %w", m.ID, err)
		}
		batch.Queue(insertMeasurementSQL, m.ID, m.SensorID, m.FieldID, raw, m.Timestamp)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return translate(err)
	}
	defer tx.Rollback(ctx)

	res := tx.SendBatch(ctx, batch)
	for range measurements {
		if _, err := res.Exec(); err != nil {
			res.Close()
			return translate(err)
		}
	}
	if err := res.Close(); err != nil {
		return translate(err)
	}
	return translate(tx.Commit(ctx))
}

// LatestMeasurement returns the newest measurement for the slot, or nil.
func (s *Store) LatestMeasurement(ctx context.Context, sensorID, fieldID uuid.UUID) (*models.Measurement, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var m models.Measurement
	var raw []byte
	var fieldType *string
	err := s.pool.QueryRow(ctx, latestMeasurementSQL, sensorID, fieldID).Scan(&m.ID, &m.SensorID, &m.FieldID, &raw, &m.Timestamp, &fieldType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err)
	}
	kind := models.FieldOpaque
	if fieldType != nil {
		kind = models.ParseFieldType(*fieldType)
	}
	if m.Value, err = decodeValue(raw, kind); err != nil {
		return nil, fmt.Errorf("decode value of %s: %w", m.ID, err)
	}
	return &m, nil
}

// QueryHistory filters, sorts and limits measurements, then joins sensor and field names.
// Rows whose field is not in the sensor's field list drop out of the join.
func (s *Store) QueryHistory(ctx context.Context, f models.HistoryFilter) ([]models.HistoryRecord, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	conditions := []string{}
	args := []any{}
	if f.SensorID != nil {
		args = append(args, *f.SensorID)
		conditions = append(conditions, "sensor_id = $"+strconv.Itoa(len(args)))
	}
	if f.FieldID != nil {
		args = append(args, *f.FieldID)
		conditions = append(conditions, "campo_id = $"+strconv.Itoa(len(args)))
	}
	if f.From != nil {
		args = append(args, *f.From)
		conditions = append(conditions, "timestamp >= $"+strconv.Itoa(len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		conditions = append(conditions, "timestamp <= $"+strconv.Itoa(len(args)))
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ") + " "
	}
	limitClause := ""
	if f.Limit > 0 {
		args = append(args, f.Limit)
		limitClause = "LIMIT $" + strconv.Itoa(len(args))
	}

	query := strings.Builder{}
	query.WriteString("WITH m AS (SELECT id, sensor_id, campo_id, valor, timestamp FROM iotdb.medidas ")
	query.WriteString(whereClause)
	query.WriteString("ORDER BY timestamp DESC, id DESC ")
	query.WriteString(limitClause)
	query.WriteString(") SELECT m.id, s.sensor, c.nombre_campo, c.tipo_campo, m.valor, m.timestamp FROM m ")
	query.WriteString("JOIN iotdb.sensores s ON s.id = m.sensor_id ")
	query.WriteString("JOIN iotdb.sensor_campos c ON c.id = m.campo_id AND c.sensor_id = m.sensor_id ")
	query.WriteString("ORDER BY m.timestamp DESC, m.id DESC")

	rows, err := s.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	out := make([]models.HistoryRecord, 0)
	for rows.Next() {
		var r models.HistoryRecord
		var raw []byte
		var fieldType string
		if err := rows.Scan(&r.ID, &r.SensorName, &r.FieldName, &fieldType, &raw, &r.Timestamp); err != nil {
			return nil, err
		}
		if r.Value, err = decodeValue(raw, models.ParseFieldType(fieldType)); err != nil {
			return nil, fmt.Errorf("decode value of %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, translate(rows.Err())
}

// PurgeMeasurements deletes measurements taken at or before until.
func (s *Store) PurgeMeasurements(ctx context.Context, until time.Time) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM iotdb.medidas WHERE timestamp <= $1`, until)
	if err != nil {
		return 0, translate(err)
	}
	return tag.RowsAffected(), nil
}

// Stats counts sensors and measurements.
func (s *Store) Stats(ctx context.Context) (models.StoreStats, error) {
	if err := s.ready(); err != nil {
		return models.StoreStats{}, err
	}
	var st models.StoreStats
	if err := s.pool.QueryRow(ctx, statsSQL).Scan(&st.Sensors, &st.Measurements, &st.LastMeasurement); err != nil {
		return models.StoreStats{}, translate(err)
	}
	return st, nil
}
