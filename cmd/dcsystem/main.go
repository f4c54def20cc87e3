package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/dcsystem/internal/balance"
	"codeberg.org/mutker/dcsystem/internal/config"
	"codeberg.org/mutker/dcsystem/internal/errors"
	"codeberg.org/mutker/dcsystem/internal/history"
	"codeberg.org/mutker/dcsystem/internal/logger"
	"codeberg.org/mutker/dcsystem/internal/pid"
	"codeberg.org/mutker/dcsystem/internal/publisher"
	"codeberg.org/mutker/dcsystem/internal/service"
	"codeberg.org/mutker/dcsystem/internal/telemetry"
	"codeberg.org/mutker/dcsystem/internal/venus"
	"codeberg.org/mutker/dcsystem/internal/version"
	"github.com/benbjohnson/clock"
	"github.com/spf13/pflag"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	if cfg.ShowVersion {
		fmt.Printf("%s %s\n", version.ProcessName, version.Version)
		return
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	logger.Init(level, logger.IsService())
	logger.Debug().
		Str("version", version.Version).
		Str("broker", cfg.MQTT.Broker).
		Msg("Config loaded")

	pidFile, err := pid.Acquire("")
	if err != nil {
		fatal(err, "Failed to acquire PID file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go handleSignals(cancel)

	err = run(ctx, cfg)
	cancel()

	if releaseErr := pidFile.Release(); releaseErr != nil {
		logger.Error().Err(releaseErr).Msg("Failed to remove PID file")
	}
	if err != nil {
		fatal(err, "Service stopped")
	}

	logger.Info().Msg("Exiting...")
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Default()

	cache := telemetry.NewCache()
	source := venus.NewSource(venus.Config{
		Broker:    cfg.MQTT.Broker,
		ClientID:  cfg.MQTT.ClientID,
		User:      cfg.MQTT.User,
		Password:  cfg.MQTT.Password,
		PortalID:  cfg.MQTT.PortalID,
		Keepalive: cfg.MQTT.Keepalive,
		Timeout:   cfg.MQTT.Timeout,
	}, cache, log)
	if err := source.Start(ctx); err != nil {
		return err
	}
	defer source.Close()

	pubs, err := newPublishers(cfg, source, log)
	if err != nil {
		return err
	}
	defer cleanup(pubs)

	svc := service.New(service.Config{
		ComputeInterval: cfg.ComputeInterval,
		PublishInterval: cfg.PublishInterval,
		Identity: publisher.NewIdentity(
			cfg.DeviceInstance, cfg.CustomName, version.ProcessName, version.Version,
		),
		Clock: clock.New(),
	}, balance.NewEngine(cache), balance.NewStore(), pubs, log)

	return svc.Run(ctx)
}

func newPublishers(cfg *config.Config, source *venus.Source, log logger.Logger) (publisher.Multi, error) {
	mqttPub := publisher.NewMQTT(source.Client(), cfg.MQTT.Topic, cfg.DeviceInstance, cfg.MQTT.Timeout, log)
	source.OnConnect(mqttPub.Reset)

	pubs := publisher.Multi{mqttPub, publisher.NewLog(log)}

	if cfg.Metrics.Listen != "" {
		prom := publisher.NewPrometheus(log)
		if err := prom.Serve(cfg.Metrics.Listen); err != nil {
			cleanup(pubs)
			return nil, err
		}
		pubs = append(pubs, prom)
	}

	if cfg.History.Enabled {
		collector, err := history.NewService(history.Config{
			Enabled:      cfg.History.Enabled,
			DBPath:       cfg.History.DBPath,
			BatchSize:    cfg.History.BatchSize,
			BatchTimeout: cfg.History.BatchTimeout,
		}, log)
		if err != nil {
			cleanup(pubs)
			return nil, err
		}
		pubs = append(pubs, publisher.NewHistory(collector))
	}

	return pubs, nil
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

// cleanup marks the device disconnected and flushes pending history
func cleanup(pubs publisher.Multi) {
	if err := pubs.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close publishers")
	}
}

func fatal(err error, msg string) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		logger.FatalWithCode(appErr).Msg(msg)
		return
	}
	logger.Fatal().Err(err).Msg(msg)
}
