package config

import (
	"errors"
	"flag"
	"fmt"
	"strconv"
	"time"
)

// Load builds the configuration from command line flags, falling back to
// environment variables read through lookup and then to defaults. The
// result is not validated.
func Load(name string, args []string, lookup func(string) string) (*Config, error) {
	cfg := GetDefaultConfig()
	env := &envReader{lookup: lookup}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version and exit")
	fs.StringVar(&cfg.EnvFile, "env-file", env.str(EnvFileVar, DefaultEnvFilePath()), "KEY=VALUE file read before flags")

	fs.StringVar(&cfg.MQTTBroker, "mqtt-broker", env.str("MQTT_BROKER", cfg.MQTTBroker), "MQTT broker host or URL")
	fs.IntVar(&cfg.MQTTPort, "mqtt-port", env.int("MQTT_PORT", cfg.MQTTPort), "MQTT broker port")
	fs.StringVar(&cfg.MQTTUsername, "mqtt-username", env.str("MQTT_USERNAME", cfg.MQTTUsername), "MQTT username")
	fs.StringVar(&cfg.MQTTPassword, "mqtt-password", env.str("MQTT_PASSWORD", cfg.MQTTPassword), "MQTT password")

	fs.StringVar(&cfg.Namespace, "mqtt-namespace", env.str("MQTT_NAMESPACE", cfg.Namespace), "State topic prefix")
	fs.StringVar(&cfg.DiscoveryPrefix, "discovery-prefix", env.str("DISCOVERY_PREFIX", cfg.DiscoveryPrefix), "HA discovery prefix")
	fs.StringVar(&cfg.DeviceIdentifier, "device-identifier", env.str("DEVICE_IDENTIFIER", cfg.DeviceIdentifier), "HA device identifier")
	fs.IntVar(&cfg.ExpireAfter, "expire-after", env.int("EXPIRE_AFTER", cfg.ExpireAfter), "HA expire_after in seconds")
	fs.BoolVar(&cfg.AnnounceEveryCycle, "announce-every-cycle", env.bool("ANNOUNCE_EVERY_CYCLE", false), "Republish discovery configs on every poll")
	fs.BoolVar(&cfg.HumanDurations, "human-durations", env.bool("HUMAN_DURATIONS", false), "Publish run times as \"1d 02:03:04\"")

	fs.IntVar(&cfg.BatteryCapacity, "battery-capacity", env.int("BATTERY_CAPACITY", cfg.BatteryCapacity), "Battery capacity in Ah (required)")
	fs.StringVar(&cfg.BLEAddress, "juntek-addr", env.str("JUNTEK_ADDR", cfg.BLEAddress), "BLE address of the monitor")
	fs.StringVar(&cfg.RS485Device, "rs485", env.str("RS485", cfg.RS485Device), "RS-485 serial device path")

	pollStr := fs.String("poll-interval", env.str("POLL_INTERVAL", ""), "Poll interval (e.g. 60 or 1m, 0 = poll once)")
	discoveryStr := fs.String("discovery-timeout", env.str("DISCOVERY_TIMEOUT", ""), "Device discovery timeout (e.g. 60s)")
	readStr := fs.String("read-timeout", env.str("READ_TIMEOUT", ""), "Device read timeout (e.g. 30s)")

	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", env.str("METRICS_ADDR", cfg.MetricsAddr), "Prometheus listen address (empty = disabled)")
	fs.BoolVar(&cfg.Verbose, "verbose", env.bool("VERBOSE", false), "Verbose logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	errs := env.errs
	// Duration overrides
	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"poll interval", *pollStr, &cfg.PollInterval},
		{"discovery timeout", *discoveryStr, &cfg.DiscoveryTimeout},
		{"read timeout", *readStr, &cfg.ReadTimeout},
	} {
		if d.raw == "" {
			continue
		}
		v, err := ParseDuration(d.raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.name, err))
			continue
		}
		*d.dst = v
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseDuration accepts a Go duration ("90s", "1m") or a plain number of
// seconds. Negative values are rejected.
func ParseDuration(s string) (time.Duration, error) {
	if v, err := strconv.Atoi(s); err == nil {
		if v < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return time.Duration(v) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

// envReader reads typed flag defaults from the environment and remembers
// values that did not parse.
type envReader struct {
	lookup func(string) string
	errs   []error
}

func (e *envReader) str(key, fallback string) string {
	if v := e.lookup(key); v != "" {
		return v
	}
	return fallback
}

func (e *envReader) int(key string, fallback int) int {
	v := e.lookup(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return fallback
	}
	return n
}

func (e *envReader) bool(key string, fallback bool) bool {
	v := e.lookup(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return fallback
	}
	return b
}
