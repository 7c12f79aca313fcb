package http

import (
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/apperr"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/models"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/schema"
)

// parseRating accepts JSON integers 1..5 only. Decimals, strings and booleans are rejected.
func parseRating(raw any) (int, error) {
	n, ok := raw.(json.Number)
	if !ok {
		return 0, apperr.Validation("El rating debe ser un número entre 1 y 5")
	}
	v, err := n.Int64()
	if err != nil || v < 1 || v > 5 {
		return 0, apperr.Validation("El rating debe ser un número entre 1 y 5")
	}
	return int(v), nil
}

func (s *Server) handleCreateVote(c *gin.Context) {
	body, err := s.readObject(c, schema.Vote)
	if err != nil {
		respondError(c, "guardar_votacion", err)
		return
	}
	raw, ok := body["rating"]
	if !ok {
		respondError(c, "guardar_votacion", apperr.Validation("El campo rating es obligatorio"))
		return
	}
	rating, err := parseRating(raw)
	if err != nil {
		respondError(c, "guardar_votacion", err)
		return
	}

	vote := models.Vote{
		ID:     uuid.New(),
		Rating: rating,
		Crop:   optionalString(body, "cultivo"),
		Medium: optionalString(body, "medio"),
		Date:   s.now(),
	}
	if n, ok := body["dispositivo"].(json.Number); ok {
		d, err := n.Int64()
		if err != nil {
			respondError(c, "guardar_votacion", apperr.Validation("El campo 'dispositivo' debe ser un entero"))
			return
		}
		device := int(d)
		vote.Device = &device
	}

	ctx, cancel := s.storeContext(c)
	defer cancel()

	if err := s.store.InsertVote(ctx, vote); err != nil {
		respondError(c, "guardar_votacion", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"mensaje": "Votación guardada exitosamente",
		"id":      vote.ID,
		"votacion": gin.H{
			"rating":      vote.Rating,
			"dispositivo": vote.Device,
			"cultivo":     vote.Crop,
			"medio":       vote.Medium,
			"timestamp":   models.FormatTimestamp(vote.Date),
		},
	})
}

func (s *Server) handleListVotes(c *gin.Context) {
	var (
		f   models.VoteFilter
		err error
	)
	if f.Rating, err = queryInt(c, "rating"); err != nil {
		respondError(c, "obtener_votaciones", err)
		return
	}
	if f.Device, err = queryInt(c, "dispositivo"); err != nil {
		respondError(c, "obtener_votaciones", err)
		return
	}
	if v := c.Query("cultivo"); v != "" {
		f.Crop = &v
	}
	if v := c.Query("medio"); v != "" {
		f.Medium = &v
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		respondError(c, "obtener_votaciones", err)
		return
	}
	f.Limit = s.cfg.DefaultLimit
	if limit != nil {
		if *limit <= 0 {
			respondError(c, "obtener_votaciones", apperr.Validation("El parámetro 'limit' debe ser un entero positivo"))
			return
		}
		f.Limit = *limit
	}

	ctx, cancel := s.storeContext(c)
	defer cancel()

	votes, err := s.store.ListVotes(ctx, f)
	if err != nil {
		respondError(c, "obtener_votaciones", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": len(votes), "votaciones": votes})
}

func (s *Server) handleVoteStats(c *gin.Context) {
	ctx, cancel := s.storeContext(c)
	defer cancel()

	stats, err := s.store.VoteStats(ctx)
	if err != nil {
		respondError(c, "estadisticas_votaciones", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_votaciones": stats.Total,
		"promedio_rating":  math.Round(stats.Average*100) / 100,
		"distribucion": gin.H{
			"1": stats.Distribution[0],
			"2": stats.Distribution[1],
			"3": stats.Distribution[2],
			"4": stats.Distribution[3],
			"5": stats.Distribution[4],
		},
	})
}

func (s *Server) handleDeleteVote(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		// an id that cannot exist is reported like a missing one
		respondError(c, "eliminar_votacion", apperr.NotFound("Votación no encontrada"))
		return
	}

	ctx, cancel := s.storeContext(c)
	defer cancel()

	if err := s.store.DeleteVote(ctx, id); err != nil {
		respondError(c, "eliminar_votacion", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mensaje": "Votación eliminada exitosamente"})
}

func (s *Server) handleDeleteAllVotes(c *gin.Context) {
	ctx, cancel := s.storeContext(c)
	defer cancel()

	n, err := s.store.DeleteAllVotes(ctx)
	if err != nil {
		respondError(c, "eliminar_votaciones", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"mensaje":    "Todas las votaciones fueron eliminadas exitosamente",
		"eliminadas": n,
	})
}
