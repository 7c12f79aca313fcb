package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/apperr"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/schema"
)

func (s *Server) handleDeviceSlot(c *gin.Context) {
	slot, err := strconv.Atoi(c.Param("n"))
	if err != nil {
		respondError(c, "dispositivo", apperr.NotFound("Dispositivo %s no encontrado", c.Param("n")))
		return
	}

	ctx, cancel := s.storeContext(c)
	defer cancel()

	res, err := s.resolver.Resolve(ctx, slot)
	if err != nil {
		respondError(c, "dispositivo", err)
		return
	}
	proj, err := s.projector.Project(ctx, res.Sensors)
	if err != nil {
		respondError(c, "dispositivo", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"dispositivo":        slot,
		"dispositivo_id":     res.DeviceID,
		"dispositivo_nombre": res.DeviceName,
		"datos":              proj.Data,
		"sensores":           proj.Sensors,
	})
}

func (s *Server) handleListDevices(c *gin.Context) {
	ctx, cancel := s.storeContext(c)
	defer cancel()

	devices, err := s.store.ListDevices(ctx)
	if err != nil {
		respondError(c, "listar_dispositivos", err)
		return
	}
	c.JSON(http.StatusOK, devices)
}

func (s *Server) handleCreateDevice(c *gin.Context) {
	body, err := s.readObject(c, schema.Device)
	if err != nil {
		respondError(c, "crear_dispositivo", err)
		return
	}
	name := strings.TrimSpace(stringField(body, "nombre"))
	if name == "" {
		respondError(c, "crear_dispositivo", apperr.Validation("El campo 'nombre' es requerido"))
		return
	}

	ctx, cancel := s.storeContext(c)
	defer cancel()

	d, err := s.store.CreateDevice(ctx, name, optionalString(body, "ubicacion"))
	if err != nil {
		respondError(c, "crear_dispositivo", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"mensaje": "Dispositivo creado", "id": d.ID})
}
