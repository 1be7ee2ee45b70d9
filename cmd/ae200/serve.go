package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zberg/go-ae200/internal/climate"
	"github.com/zberg/go-ae200/internal/config"
	mqttbridge "github.com/zberg/go-ae200/internal/mqtt"
	"github.com/zberg/go-ae200/internal/store"
	"github.com/zberg/go-ae200/internal/telemetry"
	"github.com/zberg/go-ae200/pkg/ae200"
)

func init() {
	serveCmd.Flags().String("config", "config.yaml", "Path to the configuration file")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MQTT bridge for Home Assistant",
	Run: func(cmd *cobra.Command, args []string) {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}

		logger := newLogger(cfg.Log.Level, cfg.Log.Format)
		slog.SetDefault(logger)

		if err := serve(cmd.Context(), cfg, logger); err != nil {
			logger.Error("bridge failed", "err", err)
			os.Exit(1)
		}
	},
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	opts := []ae200.ClientOption{ae200.WithLogger(logger.With("component", "ae200"))}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, ae200.WithTimeout(cfg.RequestTimeout))
	}
	client, err := ae200.NewClient(opts...)
	if err != nil {
		return err
	}

	entities, loaded, err := loadEntities(ctx, client, cfg.Controllers, logger)
	if err != nil {
		return err
	}

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	bridgeOpts := []mqttbridge.Option{
		mqttbridge.WithStore(db),
		mqttbridge.WithControllers(loaded...),
		mqttbridge.WithLogger(logger),
	}

	writer, err := telemetry.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, telemetry.ErrDisabled):
		logger.Info("telemetry disabled")
	case err != nil:
		logger.Warn("telemetry unavailable", "err", err)
	default:
		defer writer.Close()
		bridgeOpts = append(bridgeOpts, mqttbridge.WithRecorder(writer))
	}

	bridge := mqttbridge.NewBridge(mqttbridge.Config{
		Broker:          cfg.MQTT.Broker,
		Username:        cfg.MQTT.Username,
		Password:        cfg.MQTT.Password,
		ClientID:        cfg.MQTT.ClientID,
		TopicPrefix:     cfg.MQTT.TopicPrefix,
		DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
		PollInterval:    cfg.PollInterval,
	}, entities, bridgeOpts...)

	if err := bridge.Connect(); err != nil {
		return err
	}
	defer bridge.Stop()

	err = bridge.Run(ctx)
	logger.Info("shutting down")
	return err
}

// loadEntities enumerates every controller concurrently and also returns the
// ids of the controllers that answered. A controller that cannot be reached
// is skipped; having no devices left is an error.
func loadEntities(ctx context.Context, client *ae200.Client, controllers []config.ControllerConfig, logger *slog.Logger) ([]*climate.Entity, []string, error) {
	perController := make([][]*climate.Entity, len(controllers))
	answered := make([]bool, len(controllers))

	g, gctx := errgroup.WithContext(ctx)
	for i, ctrl := range controllers {
		g.Go(func() error {
			devices, err := ae200.NewController(client, ctrl.Address, ae200.WithDeviceLogger(logger)).ListDevices(gctx)
			if err != nil {
				logger.Error("controller unavailable", "controller", ctrl.ID, "address", ctrl.Address, "err", err)
				return nil
			}
			facades := make([]climate.Facade, 0, len(devices))
			for _, d := range devices {
				facades = append(facades, d)
			}
			answered[i] = true
			perController[i] = climate.NewEntities(facades, ctrl.ID, logger.With("component", "climate"))
			logger.Info("controller loaded", "controller", ctrl.ID, "address", ctrl.Address, "devices", len(devices))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var (
		entities []*climate.Entity
		loaded   []string
	)
	for i, list := range perController {
		entities = append(entities, list...)
		if answered[i] {
			loaded = append(loaded, controllers[i].ID)
		}
	}
	if len(entities) == 0 {
		return nil, nil, fmt.Errorf("no devices found on %d controller(s)", len(controllers))
	}
	return entities, loaded, nil
}
