package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) registerRoutes() {
	s.engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Servidor de sensores IoT")
	})
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/test-db", s.handleTestDB)
	s.engine.GET("/estado", s.handleStatus)
	s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	data := s.engine.Group("/", s.requireStore())

	// sensor registry
	data.POST("/agregar_sensor", s.handleAddSensor)
	data.PUT("/editar_sensor/:id", s.handleEditSensor)
	data.DELETE("/eliminar_sensor_definitivo/:id", s.handleDeleteSensor)
	data.GET("/listar_sensores_campos", s.handleListSensors)

	// measurements
	data.POST("/guardar", s.handleIngest)
	data.GET("/medidas", s.handleHistory)
	data.DELETE("/medidas", s.handlePurge)

	// devices
	data.GET("/dispositivo/:n", s.handleDeviceSlot)
	data.GET("/dispositivos", s.handleListDevices)
	data.POST("/dispositivos", s.handleCreateDevice)
	data.PUT("/sensores/:id/vincular", s.handleLinkSensor)
	data.PUT("/sensores/:id/desvincular", s.handleUnlinkSensor)

	// votes
	data.POST("/votacion", s.handleCreateVote)
	data.GET("/votaciones", s.handleListVotes)
	data.GET("/votaciones/estadisticas", s.handleVoteStats)
	data.DELETE("/votaciones/:id", s.handleDeleteVote)
	data.DELETE("/votaciones", s.handleDeleteAllVotes)
}
