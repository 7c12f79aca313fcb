package main

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/logging"
	"github.com/02loveslollipop/iot-sensor-hub/services/bridge/internal/apiclient"
	"github.com/02loveslollipop/iot-sensor-hub/services/bridge/internal/config"
	"github.com/02loveslollipop/iot-sensor-hub/services/bridge/internal/feed"
	"github.com/02loveslollipop/iot-sensor-hub/services/bridge/internal/readings"
	"github.com/02loveslollipop/iot-sensor-hub/services/bridge/internal/state"
)

func main() {
	if err := run(); err != nil {
		logging.Default().WithError(err).Fatal("bridge failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logging.Init(cfg.LogLevel); err != nil {
		logging.Default().WithError(err).Warn("unknown LOG_LEVEL, using info")
	}
	log := logging.Default().WithField("component", "bridge")

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.RequestTimeout+10*time.Second)
	defer cancel()

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	retrievalTS := time.Now().UTC().Truncate(time.Second)

	payload, err := feed.FetchCurrentStations(ctx, httpClient, cfg.FeedURL)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"stations": len(payload.Stations), "network": payload.Network}).Info("fetched feed")

	last, err := state.Load(cfg.StateFile)
	if err != nil {
		return err
	}

	api := apiclient.New(cfg.APIBaseURL, cfg.APIToken, httpClient, apiclient.WithRetry(cfg.PostAttempts, time.Second))

	registered := 0
	for _, name := range readings.SensorNames(payload.Stations) {
		if _, known := last[name]; known {
			continue
		}
		if cfg.DryRun {
			log.WithField("sensor", name).Info("dry-run: would register sensor")
			continue
		}
		err := api.RegisterSensor(ctx, apiclient.Sensor{
			Name:   name,
			Type:   readings.SensorType,
			Fields: []apiclient.Field{{Name: readings.FieldName, Type: readings.FieldType}},
		})
		if err != nil {
			return err
		}
		last[name] = state.Entry{}
		registered++
	}
	if registered > 0 {
		log.WithField("count", registered).Info("registered new sensors")
	}

	candidates := readings.BuildCandidates(payload.Stations, retrievalTS)
	pending := readings.FilterNew(candidates, last, cfg.MinInterval, cfg.ValueEpsilon)

	if len(pending) == 0 {
		log.WithField("retrieval", retrievalTS.Format(time.RFC3339)).Info("no new measurements to forward")
		return saveState(cfg, last)
	}

	log.WithFields(logrus.Fields{"pending": len(pending), "dry_run": cfg.DryRun}).Info("prepared new measurements")

	if cfg.DryRun {
		for _, cand := range pending {
			log.WithFields(logrus.Fields{
				"sensor": cand.Sensor,
				"ts":     cand.TS.Format(time.RFC3339),
				"value":  readings.ValueString(cand.Value),
			}).Info("dry-run: would forward")
		}
		return nil
	}

	batch := make(map[string][]apiclient.Reading, len(pending))
	for _, cand := range pending {
		batch[cand.Sensor] = append(batch[cand.Sensor], apiclient.Reading{Detail: readings.FieldName, Value: cand.Value})
	}
	if err := api.PostMeasures(ctx, batch); err != nil {
		return err
	}
	for _, cand := range pending {
		last[cand.Sensor] = state.Entry{Value: cand.Value, TS: cand.TS}
	}

	log.WithField("count", len(pending)).Info("forwarded measurements")
	return saveState(cfg, last)
}

func saveState(cfg config.Config, st state.State) error {
	if cfg.DryRun {
		return nil
	}
	return st.Save(cfg.StateFile)
}
