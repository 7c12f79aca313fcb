package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/config"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/db"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/db/memstore"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/device"
	httpserver "github.com/02loveslollipop/iot-sensor-hub/services/api/http"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/logging"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config error: %v", err)
	}
	if err := logging.Init(cfg.LogLevel); err != nil {
		logrus.Fatalf("config error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		logging.Default().WithError(err).Fatal("api failed")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	log := logging.Default()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	var table map[int][]string
	if cfg.DeviceResolver == device.PolicyNamePattern && cfg.DevicePatternsFile != "" {
		if table, err = device.LoadPatterns(cfg.DevicePatternsFile); err != nil {
			return err
		}
	}
	resolver, err := device.NewResolver(cfg.DeviceResolver, store, table, cfg.DeviceFallbackPattern)
	if err != nil {
		return err
	}

	srv, err := httpserver.New(cfg, store, resolver, metrics.New())
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"addr":     cfg.ListenAddr(),
		"driver":   cfg.StoreDriver,
		"resolver": cfg.DeviceResolver,
		"degraded": !store.Connected(),
	}).Info("REST API listening")
	return srv.Run(ctx)
}

// openStore picks the persistence backend. Without a reachable database the API starts in
// degraded mode when ALLOW_START_WITHOUT_DB permits it.
func openStore(ctx context.Context, cfg config.Config, log *logrus.Entry) (httpserver.Store, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn("using in-memory store, data is lost on exit")
		s := memstore.New()
		return s, s.Close, nil
	}

	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, starting in degraded mode")
		s := db.Degraded()
		return s, s.Close, nil
	}

	s, err := db.Connect(ctx, db.ConnectOptions{
		URL:        cfg.DatabaseURL,
		Attempts:   cfg.RetryAttempts,
		RetryDelay: cfg.RetryDelay,
	}, log)
	if err != nil {
		if !cfg.AllowStartWithoutDB {
			return nil, nil, err
		}
		log.WithError(err).Warn("database unreachable, starting in degraded mode; data endpoints answer 503")
		s = db.Degraded()
	}
	return s, s.Close, nil
}
