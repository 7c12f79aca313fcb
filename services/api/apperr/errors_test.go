package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", Validation("bad %s", "value"), http.StatusBadRequest},
		{"not found", NotFound("missing"), http.StatusNotFound},
		{"conflict", Conflict(errors.New("dup"), "duplicate"), http.StatusConflict},
		{"unavailable", Unavailable(errors.New("dial tcp: refused")), http.StatusServiceUnavailable},
		{"sentinel", ErrStoreUnavailable, http.StatusServiceUnavailable},
		{"wrapped sentinel", fmt.Errorf("list sensors: %w", ErrStoreUnavailable), http.StatusServiceUnavailable},
		{"wrapped validation", fmt.Errorf("ingest: %w", Validation("x")), http.StatusBadRequest},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, HTTPStatus(test.err))
		})
	}
}

func TestUnavailableHidesCause(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.1:5432: connection refused")
	err := Unavailable(cause)

	assert.Equal(t, ErrStoreUnavailable.Error(), err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindUnavailable, KindOf(err))
}

func TestPrefixKeepsKind(t *testing.T) {
	err := Prefix(Validation("El campo 'x' debe ser un número entero válido"), "Sensor '%s', campo '%s': ", "s1", "x")

	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, "Sensor 's1', campo 'x': El campo 'x' debe ser un número entero válido", err.Error())

	plain := Prefix(errors.New("boom"), "op: ")
	assert.Equal(t, KindUnexpected, KindOf(plain))
	assert.Equal(t, "op: boom", plain.Error())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "validation", KindValidation.String())
	assert.Equal(t, "unexpected", Kind(99).String())
}
