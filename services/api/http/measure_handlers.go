package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/apperr"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/history"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/ingest"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/logging"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/schema"
)

// toBatch converts the decoded measures object. A sensor whose value is not a list gets no
// readings, items that are not objects are dropped, and a non-string detail matches no field.
func toBatch(measures map[string]any) ingest.Batch {
	batch := make(ingest.Batch, len(measures))
	for sensor, raw := range measures {
		items, _ := raw.([]any)
		readings := make([]ingest.Reading, 0, len(items))
		for _, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			readings = append(readings, ingest.Reading{Detail: stringField(obj, "detail"), Value: obj["value"]})
		}
		batch[sensor] = readings
	}
	return batch
}

func (s *Server) handleIngest(c *gin.Context) {
	body, err := s.readObject(c, schema.Measures)
	if err != nil {
		respondError(c, "guardar_medidas", err)
		return
	}
	measures, ok := body["measures"].(map[string]any)
	if !ok {
		respondError(c, "guardar_medidas", apperr.Validation("El JSON debe contener 'measures'"))
		return
	}

	ctx, cancel := s.storeContext(c)
	defer cancel()

	res, err := s.pipeline.Ingest(ctx, toBatch(measures))
	if err != nil {
		if apperr.KindOf(err) == apperr.KindValidation {
			s.metrics.BatchesRejected.Inc()
		}
		respondError(c, "guardar_medidas", err)
		return
	}

	s.metrics.ReadingsIngested.Add(float64(res.Inserted))
	s.metrics.ReadingsSkipped.Add(float64(res.SkippedReadings))
	if res.SkippedReadings > 0 {
		logging.FromContext(c.Request.Context()).WithFields(logrus.Fields{
			"skipped_sensors":  res.SkippedSensors,
			"skipped_readings": res.SkippedReadings,
		}).Debug("readings for unknown or inactive sensors dropped")
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mensaje": "Medidas procesadas correctamente", "insertadas": res.Inserted})
}

func (s *Server) handleHistory(c *gin.Context) {
	ctx, cancel := s.storeContext(c)
	defer cancel()

	rows, err := s.history.Query(ctx, history.Params{
		Limit:    c.Query("limite"),
		SensorID: c.Query("sensor_id"),
		FieldID:  c.Query("campo_id"),
		From:     c.Query("desde"),
		To:       c.Query("hasta"),
	})
	if err != nil {
		respondError(c, "obtener_medidas", err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) handlePurge(c *gin.Context) {
	raw := c.Query("hasta")
	if raw == "" {
		respondError(c, "purgar_medidas", apperr.Validation("El parámetro 'hasta' es requerido"))
		return
	}
	until, err := history.ParseTimestamp(raw)
	if err != nil {
		respondError(c, "purgar_medidas", apperr.Validation("Fecha 'hasta' inválida: %s", raw))
		return
	}

	ctx, cancel := s.storeContext(c)
	defer cancel()

	removed, err := s.store.PurgeMeasurements(ctx, until)
	if err != nil {
		respondError(c, "purgar_medidas", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "mensaje": "Medidas eliminadas", "eliminadas": removed})
}
