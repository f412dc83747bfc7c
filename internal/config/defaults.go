package config

import "time"

// Central place for all application-wide defaults.

const (
	DefaultMQTTBroker = "localhost"
	DefaultMQTTPort   = 1883

	// Home Assistant discovery
	DefaultNamespace        = "Juntek-Monitor"
	DefaultDiscoveryPrefix  = "homeassistant"
	DefaultDeviceName       = "Juntek Monitor"
	DefaultDeviceIdentifier = "BTG065"
	DefaultExpireAfter      = 180 // seconds

	// Device session timing
	DefaultPollInterval     = 60 * time.Second
	DefaultDiscoveryTimeout = 60 * time.Second
	DefaultReadTimeout      = 30 * time.Second

	// Env file read before flags, relative to the user's home directory
	DefaultEnvFile = ".config/juntek-hass/config.env"
)
