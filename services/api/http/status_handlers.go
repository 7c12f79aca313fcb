package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/models"
)

func (s *Server) handleTestDB(c *gin.Context) {
	if !s.store.Connected() {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "No hay conexión a la base de datos",
		})
		return
	}

	ctx, cancel := s.storeContext(c)
	defer cancel()

	version, err := s.store.Ping(ctx)
	s.metrics.SetStoreUp(err == nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": "Error en la conexión: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"message":    "Conexión a la base de datos establecida correctamente",
		"db_version": version,
	})
}

// handleStatus answers even in degraded mode so operators can tell the store is missing.
func (s *Server) handleStatus(c *gin.Context) {
	if !s.store.Connected() {
		c.JSON(http.StatusOK, gin.H{
			"estado":         "desconectado",
			"total_sensores": 0,
			"total_medidas":  0,
			"ultima_medida":  nil,
		})
		return
	}

	ctx, cancel := s.storeContext(c)
	defer cancel()

	stats, err := s.store.Stats(ctx)
	if err != nil {
		respondError(c, "estado_sistema", err)
		return
	}
	var last *string
	if stats.LastMeasurement != nil {
		ts := models.FormatTimestamp(*stats.LastMeasurement)
		last = &ts
	}
	c.JSON(http.StatusOK, gin.H{
		"estado":         "conectado",
		"total_sensores": stats.Sensors,
		"total_medidas":  stats.Measurements,
		"ultima_medida":  last,
	})
}
