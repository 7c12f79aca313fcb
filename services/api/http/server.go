package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/apperr"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/config"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/device"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/history"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/ingest"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/logging"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/metrics"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/models"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/schema"
)

// Store is everything the handlers need from persistence. db.Store and memstore.Store
// both satisfy it.
type Store interface {
	ingest.SensorSource
	ingest.MeasurementWriter
	device.Store
	device.LatestFinder
	history.Source

	Connected() bool
	Ping(ctx context.Context) (string, error)

	UpsertSensor(ctx context.Context, in models.SensorInput) (uuid.UUID, bool, error)
	SetSensorActive(ctx context.Context, id uuid.UUID, active bool) error
	UpdateSensor(ctx context.Context, id uuid.UUID, in models.SensorInput) error
	DeleteSensor(ctx context.Context, id uuid.UUID) error
	LinkSensor(ctx context.Context, sensorID, deviceID uuid.UUID) error
	UnlinkSensor(ctx context.Context, sensorID uuid.UUID) error
	CreateDevice(ctx context.Context, name string, location *string) (models.Device, error)

	PurgeMeasurements(ctx context.Context, until time.Time) (int64, error)
	Stats(ctx context.Context) (models.StoreStats, error)

	InsertVote(ctx context.Context, v models.Vote) error
	ListVotes(ctx context.Context, f models.VoteFilter) ([]models.Vote, error)
	VoteStats(ctx context.Context) (models.VoteStats, error)
	DeleteVote(ctx context.Context, id uuid.UUID) error
	DeleteAllVotes(ctx context.Context) (int64, error)
}

// Server bundles router and dependencies for the REST API.
type Server struct {
	cfg       config.Config
	store     Store
	engine    *gin.Engine
	pipeline  *ingest.Pipeline
	resolver  device.Resolver
	projector *device.Projector
	history   *history.Service
	validator *schema.Validator
	metrics   *metrics.Metrics
	now       func() time.Time
}

// New constructs a server with routes and middleware. A nil resolver uses the positional
// policy and a nil m gets a private metrics registry.
func New(cfg config.Config, store Store, resolver device.Resolver, m *metrics.Metrics) (*Server, error) {
	validator, err := schema.NewValidator()
	if err != nil {
		return nil, err
	}
	if resolver == nil {
		resolver = device.NewPositionalResolver(store)
	}
	if m == nil {
		m = metrics.New()
	}
	m.SetStoreUp(store.Connected())

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logging.Middleware())
	engine.Use(m.Middleware())
	engine.Use(corsMiddleware())

	if cfg.BearerToken != "" {
		engine.Use(bearerAuthMiddleware(cfg.BearerToken))
	}

	server := &Server{
		cfg:       cfg,
		store:     store,
		engine:    engine,
		pipeline:  ingest.NewPipeline(store, store),
		resolver:  resolver,
		projector: device.NewProjector(store, cfg.ProjectorConcurrency),
		history:   history.NewService(store, cfg.DefaultLimit),
		validator: validator,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
	server.registerRoutes()
	return server, nil
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// storeContext bounds a store call by STORE_TIMEOUT.
func (s *Server) storeContext(c *gin.Context) (context.Context, context.CancelFunc) {
	timeout := s.cfg.StoreTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}

// requireStore answers 503 before any request parsing when the store connection is absent.
func (s *Server) requireStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.store.Connected() {
			respondError(c, c.FullPath(), apperr.Unavailable(nil))
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearerAuthMiddleware(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if token != expected {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
