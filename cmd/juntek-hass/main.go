package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jkaberg/juntek-hass/internal/app"
	"github.com/jkaberg/juntek-hass/internal/config"
	"github.com/jkaberg/juntek-hass/internal/mqtt"
)

// version is injected at build time via ldflags
var version = "dev"

func main() {
	args := os.Args[1:]

	// The env file only fills variables that are not already set, so the
	// real environment and then flags still win.
	envFile := config.EnvFilePath(args, os.Getenv)
	envLoaded, envErr := config.LoadEnvFile(envFile)

	cfg, err := config.Load("juntek-hass", args, os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if cfg.ShowVersion {
		fmt.Printf("juntek-hass %s\n", version)
		return
	}

	logger := setupLogger(cfg.Verbose)
	if envErr != nil {
		logger.WithError(envErr).Fatal("Failed to read env file")
	}
	if envLoaded {
		logger.WithField("path", envFile).Debug("Env file loaded")
	}
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	if cfg.BLEAddress != "" && cfg.RS485Device != "" {
		logger.Warn("Both JUNTEK_ADDR and RS485 are set; using BLE")
	}

	logFields := logrus.Fields{
		"version":   version,
		"transport": cfg.Transport(),
		"capacity":  cfg.BatteryCapacity,
		"poll":      cfg.PollInterval,
		"broker":    cfg.MQTTBroker,
	}
	if cfg.HasMetrics() {
		logFields["metrics"] = cfg.MetricsAddr
	}
	logger.WithFields(logFields).Info("Starting juntek-hass")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("Shutdown signal received")
		cancel()
	}()

	// Core clients ---------------------------------------------------------------
	mqttClient, err := mqtt.NewClient(mqtt.Options{
		Broker:   cfg.MQTTBroker,
		Port:     cfg.MQTTPort,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
		ClientID: "juntek-hass-" + strings.ToLower(cfg.DeviceIdentifier),
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create MQTT client")
	}
	defer mqttClient.Disconnect(250)

	transport := app.NewTransport(cfg, logger)

	// Run application ------------------------------------------------------------
	if err := app.Run(ctx, cfg, transport, mqttClient, logger); err != nil {
		mqttClient.Disconnect(250)
		logger.WithError(err).Fatal("juntek-hass stopped")
	}
	logger.Info("juntek-hass stopped")
}

func setupLogger(verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}
