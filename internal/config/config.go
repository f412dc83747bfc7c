package config

import (
	"errors"
	"fmt"
	"time"
)

// Transport names
const (
	TransportBLE   = "ble"
	TransportRS485 = "rs485"
)

// Config holds all configuration options for juntek-hass
type Config struct {
	// MQTT Configuration
	MQTTBroker   string `json:"mqtt_broker"` // host name or mqtt://, mqtts://, ws://, wss:// URL
	MQTTPort     int    `json:"mqtt_port"`
	MQTTUsername string `json:"mqtt_username"`
	MQTTPassword string `json:"-"`

	// Home Assistant Configuration
	Namespace          string `json:"namespace"`        // state topic prefix
	DiscoveryPrefix    string `json:"discovery_prefix"` // Home Assistant discovery prefix
	DeviceName         string `json:"device_name"`
	DeviceIdentifier   string `json:"device_identifier"`
	ExpireAfter        int    `json:"expire_after"` // seconds
	AnnounceEveryCycle bool   `json:"announce_every_cycle"`
	HumanDurations     bool   `json:"human_durations"` // publish run times as "1d 02:03:04"

	// Device Configuration
	BatteryCapacity  int           `json:"battery_capacity"` // Ah, required
	BLEAddress       string        `json:"ble_address"`
	RS485Device      string        `json:"rs485_device"`
	PollInterval     time.Duration `json:"poll_interval"` // 0 polls once and exits
	DiscoveryTimeout time.Duration `json:"discovery_timeout"`
	ReadTimeout      time.Duration `json:"read_timeout"`

	// Application Configuration
	MetricsAddr string `json:"metrics_addr"` // empty disables the metrics endpoint
	Verbose     bool   `json:"verbose"`
	EnvFile     string `json:"env_file"`
	ShowVersion bool   `json:"-"`
}

// GetDefaultConfig returns a configuration with sensible defaults
func GetDefaultConfig() *Config {
	return &Config{
		MQTTBroker:       DefaultMQTTBroker,
		MQTTPort:         DefaultMQTTPort,
		Namespace:        DefaultNamespace,
		DiscoveryPrefix:  DefaultDiscoveryPrefix,
		DeviceName:       DefaultDeviceName,
		DeviceIdentifier: DefaultDeviceIdentifier,
		ExpireAfter:      DefaultExpireAfter,
		PollInterval:     DefaultPollInterval,
		DiscoveryTimeout: DefaultDiscoveryTimeout,
		ReadTimeout:      DefaultReadTimeout,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.BatteryCapacity <= 0 {
		errs = append(errs, fmt.Errorf("battery capacity is required and must be positive (got %d)", c.BatteryCapacity))
	}
	if c.BLEAddress == "" && c.RS485Device == "" {
		errs = append(errs, fmt.Errorf("a BLE address or an RS-485 device is required"))
	}
	if c.MQTTBroker == "" {
		errs = append(errs, fmt.Errorf("MQTT broker is required"))
	}
	if c.MQTTPort <= 0 || c.MQTTPort > 65535 {
		errs = append(errs, fmt.Errorf("MQTT port %d out of range", c.MQTTPort))
	}
	if c.MQTTPassword != "" && c.MQTTUsername == "" {
		errs = append(errs, fmt.Errorf("MQTT username is required when a password is provided"))
	}
	if c.Namespace == "" {
		errs = append(errs, fmt.Errorf("MQTT namespace is required"))
	}
	if c.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("poll interval must not be negative"))
	}
	if c.DiscoveryTimeout <= 0 || c.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("discovery and read timeouts must be positive"))
	}
	if c.ExpireAfter < 0 {
		errs = append(errs, fmt.Errorf("expire_after must not be negative"))
	}

	return errors.Join(errs...)
}

// Transport returns the transport selected by the configured addresses.
// BLE wins when both are set.
func (c *Config) Transport() string {
	if c.BLEAddress != "" {
		return TransportBLE
	}
	return TransportRS485
}

// HasMetrics returns true if the metrics endpoint is enabled
func (c *Config) HasMetrics() bool {
	return c.MetricsAddr != ""
}
