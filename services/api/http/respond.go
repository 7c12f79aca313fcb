package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/apperr"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/logging"
)

// respondError logs err under op and writes {"error": msg} with the mapped status.
func respondError(c *gin.Context, op string, err error) {
	if errors.Is(err, context.DeadlineExceeded) && apperr.KindOf(err) == apperr.KindUnexpected {
		err = apperr.Unavailable(err)
	}
	status := apperr.HTTPStatus(err)
	log := logging.FromContext(c.Request.Context()).WithField("op", op).WithError(err)
	switch {
	case status >= http.StatusInternalServerError:
		log.Error("request failed")
	default:
		log.Debug("request rejected")
	}

	// classified errors answer with their own message, without the wrapping context
	msg := err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) {
		msg = ae.Error()
	}
	if status == http.StatusServiceUnavailable {
		msg = apperr.ErrStoreUnavailable.Error()
	}
	c.JSON(status, gin.H{"error": msg})
}

// readObject reads the body as a JSON object with numbers kept as json.Number, then checks
// it against schemaID when one is given.
func (s *Server) readObject(c *gin.Context, schemaID string) (map[string]any, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, apperr.Validation("No se pudo leer el cuerpo de la petición")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, apperr.Validation("Se requiere un cuerpo JSON")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, apperr.Validation("JSON inválido: %s", err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, apperr.Validation("El cuerpo debe ser un objeto JSON")
	}
	if schemaID != "" {
		if err := s.validator.Validate(schemaID, body); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// stringField returns obj[key] when it is a string.
func stringField(obj map[string]any, key string) string {
	if v, ok := obj[key].(string); ok {
		return v
	}
	return ""
}

// optionalString returns obj[key] as a pointer, nil when absent, null or empty.
func optionalString(obj map[string]any, key string) *string {
	v := stringField(obj, key)
	if v == "" {
		return nil
	}
	return &v
}

func parseID(raw, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation("%s inválido: %s", what, raw)
	}
	return id, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(c *gin.Context, key string) (*int, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, apperr.Validation("El parámetro '%s' debe ser un entero", key)
	}
	return &n, nil
}
