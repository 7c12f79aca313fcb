package db

import (
	"context"

	"github.com/google/uuid"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/models"
)

const insertDeviceSQL = `
INSERT INTO iotdb.dispositivos (id, nombre, ubicacion, created_at)
VALUES ($1, $2, $3, NOW())
RETURNING created_at`

const listDevicesSQL = `
SELECT id, nombre, ubicacion, created_at
FROM iotdb.dispositivos
ORDER BY created_at, id`

// CreateDevice registers a device.
func (s *Store) CreateDevice(ctx context.Context, name string, location *string) (models.Device, error) {
	if err := s.ready(); err != nil {
		return models.Device{}, err
	}
	d := models.Device{ID: uuid.New(), Name: name, Location: location}
	if err := s.pool.QueryRow(ctx, insertDeviceSQL, d.ID, d.Name, d.Location).Scan(&d.CreatedAt); err != nil {
		return models.Device{}, translate(err)
	}
	return d, nil
}

// ListDevices returns devices oldest first.
func (s *Store) ListDevices(ctx context.Context) ([]models.Device, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, listDevicesSQL)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	devices := make([]models.Device, 0)
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.ID, &d.Name, &d.Location, &d.CreatedAt); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, translate(rows.Err())
}
