package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jkaberg/juntek-hass/internal/config"
	"github.com/jkaberg/juntek-hass/internal/decoder"
	"github.com/jkaberg/juntek-hass/internal/device"
	"github.com/jkaberg/juntek-hass/internal/metrics"
	"github.com/jkaberg/juntek-hass/internal/sensors"
	"github.com/jkaberg/juntek-hass/internal/session"
	"github.com/jkaberg/juntek-hass/internal/transmission"
)

// NewTransport returns the device transport selected by cfg.
func NewTransport(cfg *config.Config, logger *logrus.Logger) session.Transport {
	if cfg.Transport() == config.TransportBLE {
		return device.NewBLE(cfg.BLEAddress, cfg.DiscoveryTimeout, cfg.ReadTimeout, logger)
	}
	return device.NewSerial(cfg.RS485Device, cfg.DiscoveryTimeout, cfg.ReadTimeout, logger)
}

// NewDecoder returns the decoder matching the configured transport.
func NewDecoder(cfg *config.Config, logger *logrus.Logger) decoder.Decoder {
	fields := sensors.RS485Fields
	if cfg.Transport() == config.TransportBLE {
		fields = sensors.BLEFields
	}
	if cfg.HumanDurations {
		fields = sensors.WithHumanDurations(fields)
	}

	if cfg.Transport() == config.TransportBLE {
		return decoder.NewBLE(fields, cfg.BatteryCapacity, logger)
	}
	return decoder.NewRS485(fields, cfg.BatteryCapacity, logger)
}

// NewTransmitter builds the MQTT publisher from the Home Assistant settings
// in cfg.
func NewTransmitter(cfg *config.Config, client transmission.Client, logger *logrus.Logger) (*transmission.MQTTTransmitter, error) {
	defs, err := sensors.LoadDefinitions()
	if err != nil {
		return nil, fmt.Errorf("failed to load sensor definitions: %w", err)
	}
	return transmission.NewMQTTTransmitter(client, transmission.Settings{
		Namespace:          cfg.Namespace,
		DiscoveryPrefix:    cfg.DiscoveryPrefix,
		DeviceName:         cfg.DeviceName,
		DeviceIdentifier:   cfg.DeviceIdentifier,
		ExpireAfter:        cfg.ExpireAfter,
		AnnounceEveryCycle: cfg.AnnounceEveryCycle,
		HumanDurations:     cfg.HumanDurations,
	}, defs, logger), nil
}

// Run drives the device session and, when configured, the metrics server.
// It blocks until ctx is cancelled or a single poll completes, and returns
// the session's fatal error if any.
func Run(
	parentCtx context.Context,
	cfg *config.Config,
	transport session.Transport,
	client transmission.Client,
	logger *logrus.Logger,
) error {
	tx, err := NewTransmitter(cfg, client, logger)
	if err != nil {
		return err
	}
	dec := NewDecoder(cfg, logger)

	sess := session.New(transport, dec, sensors.NewState(sensors.AllFields), tx, session.Config{
		PollInterval: cfg.PollInterval,
	}, logger)

	grp, ctx := errgroup.WithContext(parentCtx)
	// Stops the metrics server once the session is done.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.HasMetrics() {
		sess.SetObserver(metrics.NewPromObs())
		grp.Go(func() error {
			return metrics.Serve(ctx, cfg.MetricsAddr, logger)
		})
	}

	grp.Go(func() error {
		defer cancel()
		if err := sess.Run(ctx); err != nil {
			return fmt.Errorf("%s session: %w", transport.Name(), err)
		}
		return nil
	})

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
