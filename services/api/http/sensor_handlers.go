package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/apperr"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/ingest"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/models"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/schema"
)

// sensorInput extracts name, type, flag and fields from a registration or edit body.
// Fields without a name or type are ignored. withIDs accepts campo_id on fields.
func sensorInput(body map[string]any, withIDs bool) (models.SensorInput, error) {
	in := models.SensorInput{
		Name: stringField(body, "sensor"),
		Type: stringField(body, "tipo_sensor"),
	}
	if in.Name == "" || in.Type == "" {
		return in, apperr.Validation("Se requiere 'sensor' y 'tipo_sensor'")
	}
	active, err := ingest.ParseBool(body["activo"], "activo", true)
	if err != nil {
		return in, err
	}
	in.Active = active

	raw, _ := body["campos"].([]any)
	for _, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		f := models.FieldInput{
			Name: stringField(obj, "nombre_campo"),
			Type: stringField(obj, "tipo_campo"),
		}
		if f.Name == "" || f.Type == "" {
			continue
		}
		if f.Active, err = ingest.ParseBool(obj["activo"], fmt.Sprintf("activo del campo '%s'", f.Name), true); err != nil {
			return in, err
		}
		if withIDs {
			if rawID := stringField(obj, "campo_id"); rawID != "" {
				id, err := parseID(rawID, "campo_id")
				if err != nil {
					return in, err
				}
				f.ID = &id
			}
		}
		in.Fields = append(in.Fields, f)
	}
	return in, nil
}

func (s *Server) handleAddSensor(c *gin.Context) {
	body, err := s.readObject(c, schema.Sensor)
	if err != nil {
		respondError(c, "agregar_sensor", err)
		return
	}
	in, err := sensorInput(body, false)
	if err != nil {
		respondError(c, "agregar_sensor", err)
		return
	}

	ctx, cancel := s.storeContext(c)
	defer cancel()

	id, created, err := s.store.UpsertSensor(ctx, in)
	if err != nil {
		respondError(c, "agregar_sensor", err)
		return
	}

	msg := fmt.Sprintf("Sensor '%s' actualizado", in.Name)
	if created {
		msg = fmt.Sprintf("Sensor '%s' agregado correctamente", in.Name)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mensaje": msg, "sensor_id": id})
}

func (s *Server) handleEditSensor(c *gin.Context) {
	id, err := parseID(c.Param("id"), "sensor_id")
	if err != nil {
		respondError(c, "editar_sensor", err)
		return
	}
	body, err := s.readObject(c, schema.Sensor)
	if err != nil {
		respondError(c, "editar_sensor", err)
		return
	}

	ctx, cancel := s.storeContext(c)
	defer cancel()

	if _, ok := body["activo"]; ok && len(body) == 1 {
		active, err := ingest.ParseBool(body["activo"], "activo", true)
		if err != nil {
			respondError(c, "editar_sensor", err)
			return
		}
		if err := s.store.SetSensorActive(ctx, id, active); err != nil {
			respondError(c, "editar_sensor", err)
			return
		}
		state := "desactivado"
		if active {
			state = "activado"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mensaje": fmt.Sprintf("Sensor %s correctamente", state)})
		return
	}

	in, err := sensorInput(body, true)
	if err != nil {
		respondError(c, "editar_sensor", err)
		return
	}
	if err := s.store.UpdateSensor(ctx, id, in); err != nil {
		respondError(c, "editar_sensor", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mensaje": fmt.Sprintf("Sensor %s actualizado", id)})
}

func (s *Server) handleDeleteSensor(c *gin.Context) {
	id, err := parseID(c.Param("id"), "sensor_id")
	if err != nil {
		respondError(c, "eliminar_sensor_definitivo", err)
		return
	}

	ctx, cancel := s.storeContext(c)
	defer cancel()

	if err := s.store.DeleteSensor(ctx, id); err != nil {
		respondError(c, "eliminar_sensor_definitivo", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"mensaje": fmt.Sprintf("Sensor %s y sus medidas eliminados definitivamente", id),
	})
}

func (s *Server) handleListSensors(c *gin.Context) {
	ctx, cancel := s.storeContext(c)
	defer cancel()

	sensors, err := s.store.ListSensors(ctx, false)
	if err != nil {
		respondError(c, "listar_sensores_campos", err)
		return
	}
	c.JSON(http.StatusOK, sensors)
}

func (s *Server) handleLinkSensor(c *gin.Context) {
	sensorID, err := parseID(c.Param("id"), "sensor_id")
	if err != nil {
		respondError(c, "vincular_sensor", err)
		return
	}
	body, err := s.readObject(c, schema.Link)
	if err != nil {
		respondError(c, "vincular_sensor", err)
		return
	}
	raw := stringField(body, "dispositivo_id")
	if raw == "" {
		respondError(c, "vincular_sensor", apperr.Validation("El campo 'dispositivo_id' es requerido"))
		return
	}
	deviceID, err := parseID(raw, "dispositivo_id")
	if err != nil {
		respondError(c, "vincular_sensor", err)
		return
	}

	ctx, cancel := s.storeContext(c)
	defer cancel()

	if err := s.store.LinkSensor(ctx, sensorID, deviceID); err != nil {
		respondError(c, "vincular_sensor", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mensaje": "Sensor vinculado correctamente"})
}

func (s *Server) handleUnlinkSensor(c *gin.Context) {
	sensorID, err := parseID(c.Param("id"), "sensor_id")
	if err != nil {
		respondError(c, "desvincular_sensor", err)
		return
	}

	ctx, cancel := s.storeContext(c)
	defer cancel()

	if err := s.store.UnlinkSensor(ctx, sensorID); err != nil {
		respondError(c, "desvincular_sensor", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mensaje": "Sensor desvinculado correctamente"})
}
