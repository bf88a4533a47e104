package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/adaptive-climate/db"
	"github.com/thatsimonsguy/adaptive-climate/internal/api"
	"github.com/thatsimonsguy/adaptive-climate/internal/config"
	"github.com/thatsimonsguy/adaptive-climate/internal/datadog"
	"github.com/thatsimonsguy/adaptive-climate/internal/device"
	"github.com/thatsimonsguy/adaptive-climate/internal/env"
	"github.com/thatsimonsguy/adaptive-climate/internal/logging"
	"github.com/thatsimonsguy/adaptive-climate/internal/mqttbridge"
	"github.com/thatsimonsguy/adaptive-climate/internal/notifications"
	"github.com/thatsimonsguy/adaptive-climate/internal/registry"
	"github.com/thatsimonsguy/adaptive-climate/internal/supervisor"
)

func main() {
	cfg := config.Load()
	env.Cfg = &cfg
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Int("devices", len(cfg.Devices)).
		Float64("latitude", cfg.Latitude).
		Msg("Starting adaptive climate controller")

	datadog.InitMetrics()
	notifications.Init()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("Failed to open database")
	}
	defer database.Close()
	store := db.NewStore(database)

	bridge, err := mqttbridge.New(cfg.MQTT, cfg.Devices)
	if err != nil {
		log.Fatal().Err(err).Str("broker", cfg.MQTT.Broker).Msg("Failed to connect to MQTT broker")
	}
	defer bridge.Close()

	areas := registry.NewAreaMap(cfg.Devices)
	reg := registry.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, dev := range cfg.Devices {
		sup := supervisor.New(dev, cfg, supervisor.Deps{
			Sensors: bridge,
			States:  bridge,
			Sink:    bridge,
			Areas:   areas,
			Store:   store,
		})
		reg.Add(sup)
		sup.Start(ctx)
	}

	bridge.OnStateChange(func(change device.StateChange) {
		sup, ok := reg.Get(change.DeviceID)
		if !ok {
			return
		}
		sup.HandleStateChange(change)
	})

	scheduler := cron.New()
	scheduler.AddFunc("0 * * * *", func() {
		for _, sup := range reg.All() {
			sup.RecordOutdoorSample()
		}
	})
	scheduler.AddFunc("5 0 * * *", func() {
		for _, sup := range reg.All() {
			sup.RecomputeRunningMean()
		}
	})
	scheduler.AddFunc("*/10 * * * *", func() {
		for _, sup := range reg.All() {
			sup.Flush()
		}
	})
	scheduler.Start()
	defer scheduler.Stop()

	server := api.NewServer(reg, &cfg)
	go func() {
		if err := server.Start(cfg.HTTPAddr); err != nil {
			log.Fatal().Err(err).Str("address", cfg.HTTPAddr).Msg("API server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	for _, sup := range reg.All() {
		sup.Stop()
		sup.Flush()
	}
}
