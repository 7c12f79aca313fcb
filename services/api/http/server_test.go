package http_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/config"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/db"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/db/memstore"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/device"
	httpserver "github.com/02loveslollipop/iot-sensor-hub/services/api/http"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/metrics"
)

func testConfig() config.Config {
	return config.Config{
		DefaultLimit:         100,
		StoreTimeout:         time.Second,
		ProjectorConcurrency: 2,
	}
}

type harness struct {
	t       *testing.T
	metrics *metrics.Metrics
	handler http.Handler
}

func newHarness(t *testing.T, cfg config.Config, store httpserver.Store, resolver device.Resolver) *harness {
	t.Helper()
	m := metrics.New()
	srv, err := httpserver.New(cfg, store, resolver, m)
	require.NoError(t, err)
	return &harness{t: t, metrics: m, handler: srv.Engine()}
}

func (h *harness) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const tempASensor = `{"sensor":"tempA","tipo_sensor":"dht22","campos":[{"nombre_campo":"humidity","tipo_campo":"float"}]}`

func TestIngestAndProjectByName(t *testing.T) {
	store := memstore.New()
	resolver := device.NewNamePatternResolver(store, map[int][]string{1: {"tempA"}}, "")
	h := newHarness(t, testConfig(), store, resolver)

	rec := h.do(http.MethodPost, "/agregar_sensor", tempASensor)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Sensor 'tempA' agregado correctamente", decode(t, rec)["mensaje"])

	rec = h.do(http.MethodPost, "/guardar", `{"measures":{"tempA":[{"detail":"humidity","value":"55.3"}]}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ok", decode(t, rec)["status"])

	stored := store.Measurements()
	require.Len(t, stored, 1)
	assert.Equal(t, 55.3, stored[0].Value)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.ReadingsIngested))

	rec = h.do(http.MethodGet, "/dispositivo/1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, map[string]any{"humidity": 55.3}, body["datos"])
	assert.Equal(t, "tempA", body["dispositivo_nombre"])
	assert.Nil(t, body["dispositivo_id"])

	rec = h.do(http.MethodGet, "/dispositivo/2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegisterSensorTwiceUpdates(t *testing.T) {
	h := newHarness(t, testConfig(), memstore.New(), nil)

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/agregar_sensor", tempASensor).Code)
	rec := h.do(http.MethodPost, "/agregar_sensor", `{"sensor":"tempA","tipo_sensor":"dht22","campos":[{"nombre_campo":"temp","tipo_campo":"float"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Sensor 'tempA' actualizado", decode(t, rec)["mensaje"])

	rec = h.do(http.MethodGet, "/listar_sensores_campos", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sensors []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sensors))
	require.Len(t, sensors, 1)
	assert.Len(t, sensors[0]["campos"], 2)
}

func TestRegisterSensorRequiresNameAndType(t *testing.T) {
	h := newHarness(t, testConfig(), memstore.New(), nil)

	rec := h.do(http.MethodPost, "/agregar_sensor", `{"sensor":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Se requiere 'sensor' y 'tipo_sensor'", decode(t, rec)["error"])

	rec = h.do(http.MethodPost, "/agregar_sensor", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/agregar_sensor", `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestRejectsWholeBatch(t *testing.T) {
	store := memstore.New()
	h := newHarness(t, testConfig(), store, nil)

	rec := h.do(http.MethodPost, "/agregar_sensor",
		`{"sensor":"s1","tipo_sensor":"x","campos":[{"nombre_campo":"t","tipo_campo":"float"},{"nombre_campo":"n","tipo_campo":"integer"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodPost, "/guardar", `{"measures":{"s1":[{"detail":"t","value":"1.5"},{"detail":"n","value":"abc"}]}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "'n'")
	assert.Empty(t, store.Measurements())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.BatchesRejected))
}

func TestIngestSkipsUnknownSilently(t *testing.T) {
	store := memstore.New()
	h := newHarness(t, testConfig(), store, nil)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/agregar_sensor", tempASensor).Code)

	rec := h.do(http.MethodPost, "/guardar", `{"measures":{"ghost":[{"detail":"x","value":1}],"tempA":[{"detail":"nope","value":2}]}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, store.Measurements())
	assert.Equal(t, float64(2), testutil.ToFloat64(h.metrics.ReadingsSkipped))
}

func TestIngestRequiresMeasures(t *testing.T) {
	h := newHarness(t, testConfig(), memstore.New(), nil)

	rec := h.do(http.MethodPost, "/guardar", `{"otra":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "El JSON debe contener 'measures'", decode(t, rec)["error"])

	rec = h.do(http.MethodPost, "/guardar", `{"measures":["tempA"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestSkipsMalformedReadings(t *testing.T) {
	store := memstore.New()
	h := newHarness(t, testConfig(), store, nil)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/agregar_sensor", tempASensor).Code)

	for _, body := range []string{
		`{"measures":{"ghost":[42]}}`,
		`{"measures":{"ghost":[{"detail":5,"value":1}]}}`,
		`{"measures":{"tempA":[{"detail":5,"value":1}]}}`,
		`{"measures":{"s":"notalist"}}`,
		`{"measures":{"tempA":"notalist"}}`,
	} {
		rec := h.do(http.MethodPost, "/guardar", body)
		assert.Equal(t, http.StatusOK, rec.Code, body)
	}
	assert.Empty(t, store.Measurements())

	rec := h.do(http.MethodPost, "/guardar", `{"measures":{"tempA":[7,{"detail":"humidity","value":2}]}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, store.Measurements(), 1)
}

func TestDeactivatedSensorIsSkipped(t *testing.T) {
	store := memstore.New()
	h := newHarness(t, testConfig(), store, nil)

	rec := h.do(http.MethodPost, "/agregar_sensor", tempASensor)
	require.Equal(t, http.StatusOK, rec.Code)
	id := decode(t, rec)["sensor_id"].(string)

	rec = h.do(http.MethodPut, "/editar_sensor/"+id, `{"activo":"false"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Sensor desactivado correctamente", decode(t, rec)["mensaje"])

	rec = h.do(http.MethodPost, "/guardar", `{"measures":{"tempA":[{"detail":"humidity","value":1}]}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, store.Measurements())

	rec = h.do(http.MethodPut, "/editar_sensor/"+id, `{"activo":"quizas"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPut, "/editar_sensor/not-a-uuid", `{"activo":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteSensorRemovesMeasurements(t *testing.T) {
	store := memstore.New()
	h := newHarness(t, testConfig(), store, nil)

	rec := h.do(http.MethodPost, "/agregar_sensor", tempASensor)
	id := decode(t, rec)["sensor_id"].(string)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/guardar", `{"measures":{"tempA":[{"detail":"humidity","value":3}]}}`).Code)
	require.Len(t, store.Measurements(), 1)

	rec = h.do(http.MethodDelete, "/eliminar_sensor_definitivo/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, store.Measurements())

	rec = h.do(http.MethodDelete, "/eliminar_sensor_definitivo/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	h := newHarness(t, testConfig(), memstore.New(), nil)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/agregar_sensor", tempASensor).Code)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/guardar", `{"measures":{"tempA":[{"detail":"humidity","value":"12.5"}]}}`).Code)

	rec := h.do(http.MethodGet, "/medidas?limite=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "tempA", rows[0]["sensor"])
	assert.Equal(t, "humidity", rows[0]["nombre_campo"])
	assert.Equal(t, 12.5, rows[0]["valor"])

	rec = h.do(http.MethodGet, "/medidas?limite=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/medidas?desde=ayer", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPurgeMeasurements(t *testing.T) {
	store := memstore.New()
	h := newHarness(t, testConfig(), store, nil)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/agregar_sensor", tempASensor).Code)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/guardar", `{"measures":{"tempA":[{"detail":"humidity","value":1}]}}`).Code)

	rec := h.do(http.MethodDelete, "/medidas", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	until := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	rec = h.do(http.MethodDelete, "/medidas?hasta="+until, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1), decode(t, rec)["eliminadas"])
	assert.Empty(t, store.Measurements())
}

func TestPositionalDevices(t *testing.T) {
	h := newHarness(t, testConfig(), memstore.New(), nil)

	rec := h.do(http.MethodPost, "/dispositivos", `{"ubicacion":"invernadero"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "El campo 'nombre' es requerido", decode(t, rec)["error"])

	rec = h.do(http.MethodPost, "/dispositivos", `{"nombre":"maceta","ubicacion":"invernadero"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	deviceID := decode(t, rec)["id"].(string)

	rec = h.do(http.MethodPost, "/agregar_sensor", tempASensor)
	sensorID := decode(t, rec)["sensor_id"].(string)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/guardar", `{"measures":{"tempA":[{"detail":"humidity","value":"40"}]}}`).Code)

	rec = h.do(http.MethodPut, "/sensores/"+sensorID+"/vincular", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPut, "/sensores/"+sensorID+"/vincular", `{"dispositivo_id":"`+deviceID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/dispositivo/1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, deviceID, body["dispositivo_id"])
	assert.Equal(t, "maceta", body["dispositivo_nombre"])
	assert.Equal(t, map[string]any{"humidity": float64(40)}, body["datos"])

	for _, path := range []string{"/dispositivo/0", "/dispositivo/2", "/dispositivo/x"} {
		assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, path, "").Code, path)
	}

	rec = h.do(http.MethodPut, "/sensores/"+sensorID+"/desvincular", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(http.MethodGet, "/dispositivo/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["datos"])

	rec = h.do(http.MethodGet, "/dispositivos", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var devices []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &devices))
	assert.Len(t, devices, 1)
}

func TestVotes(t *testing.T) {
	h := newHarness(t, testConfig(), memstore.New(), nil)

	rec := h.do(http.MethodPost, "/votacion", `{"rating":6}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "El rating debe ser un número entre 1 y 5", decode(t, rec)["error"])

	for _, body := range []string{`{"rating":0}`, `{"rating":4.5}`, `{"rating":"4"}`, `{"rating":true}`} {
		assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/votacion", body).Code, body)
	}

	rec = h.do(http.MethodPost, "/votacion", `{"cultivo":"tomate"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "El campo rating es obligatorio", decode(t, rec)["error"])

	rec = h.do(http.MethodPost, "/votacion", `{"rating":5,"dispositivo":1,"cultivo":"tomate","medio":"aire"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	voteID := created["id"].(string)
	assert.Equal(t, float64(5), created["votacion"].(map[string]any)["rating"])

	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/votacion", `{"rating":4}`).Code)
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/votacion", `{"rating":4}`).Code)

	rec = h.do(http.MethodGet, "/votaciones?rating=4", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["total"])

	rec = h.do(http.MethodGet, "/votaciones?cultivo=tomate&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["total"])

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/votaciones?limit=0", "").Code)

	rec = h.do(http.MethodGet, "/votaciones/estadisticas", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode(t, rec)
	assert.Equal(t, float64(3), stats["total_votaciones"])
	assert.Equal(t, 4.33, stats["promedio_rating"])
	assert.Equal(t, map[string]any{"1": 0.0, "2": 0.0, "3": 0.0, "4": 2.0, "5": 1.0}, stats["distribucion"])

	require.Equal(t, http.StatusOK, h.do(http.MethodDelete, "/votaciones/"+voteID, "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, "/votaciones/"+voteID, "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, "/votaciones/xyz", "").Code)

	rec = h.do(http.MethodDelete, "/votaciones", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["eliminadas"])
}

func TestDegradedStore(t *testing.T) {
	h := newHarness(t, testConfig(), db.Degraded(), nil)

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/medidas", ""},
		{http.MethodGet, "/listar_sensores_campos", ""},
		{http.MethodPost, "/agregar_sensor", tempASensor},
		{http.MethodPost, "/guardar", `{"measures":{}}`},
		{http.MethodGet, "/dispositivo/1", ""},
		{http.MethodGet, "/votaciones", ""},
		{http.MethodPost, "/guardar", `{}`},
		{http.MethodPost, "/agregar_sensor", `{"sensor":"x"}`},
		{http.MethodGet, "/medidas?limite=abc", ""},
		{http.MethodPost, "/votacion", `{"rating":9}`},
		{http.MethodDelete, "/medidas", ""},
	} {
		rec := h.do(tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, tc.path)
		assert.Equal(t, "Conexión a la base de datos no disponible", decode(t, rec)["error"], tc.path)
	}

	rec := h.do(http.MethodGet, "/estado", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode(t, rec)
	assert.Equal(t, "desconectado", status["estado"])
	assert.Nil(t, status["ultima_medida"])

	rec = h.do(http.MethodGet, "/test-db", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "No hay conexión a la base de datos", decode(t, rec)["message"])

	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.StoreUp))
}

func TestStatusAndTestDB(t *testing.T) {
	h := newHarness(t, testConfig(), memstore.New(), nil)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/agregar_sensor", tempASensor).Code)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/guardar", `{"measures":{"tempA":[{"detail":"humidity","value":1}]}}`).Code)

	rec := h.do(http.MethodGet, "/estado", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode(t, rec)
	assert.Equal(t, "conectado", status["estado"])
	assert.Equal(t, float64(1), status["total_sensores"])
	assert.Equal(t, float64(1), status["total_medidas"])
	assert.NotNil(t, status["ultima_medida"])

	rec = h.do(http.MethodGet, "/test-db", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", decode(t, rec)["status"])

	rec = h.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Servidor de sensores IoT", rec.Body.String())
}

func TestBearerAuth(t *testing.T) {
	cfg := testConfig()
	cfg.BearerToken = "secreto"
	h := newHarness(t, cfg, memstore.New(), nil)

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/estado", "").Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/estado", "", "Authorization", "Bearer otro").Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/estado", "", "Authorization", "Bearer secreto").Code)

	// preflight never needs a token
	rec := h.do(http.MethodOptions, "/guardar", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequestIDEchoed(t *testing.T) {
	h := newHarness(t, testConfig(), memstore.New(), nil)

	rec := h.do(http.MethodGet, "/healthz", "", "X-Request-ID", "abc-123")
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = h.do(http.MethodGet, "/healthz", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, testConfig(), memstore.New(), nil)
	h.do(http.MethodGet, "/healthz", "")

	rec := h.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "iothub_http_requests_total")
}
