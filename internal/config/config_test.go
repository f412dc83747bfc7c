package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func validConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.BatteryCapacity = 100
	cfg.RS485Device = "/dev/ttyUSB0"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing capacity", func(c *Config) { c.BatteryCapacity = 0 }, "battery capacity"},
		{"missing transport", func(c *Config) { c.RS485Device = "" }, "BLE address or an RS-485 device"},
		{"bad port", func(c *Config) { c.MQTTPort = 70000 }, "out of range"},
		{"password without user", func(c *Config) { c.MQTTPassword = "secret" }, "username is required"},
		{"negative poll", func(c *Config) { c.PollInterval = -time.Second }, "poll interval"},
		{"zero read timeout", func(c *Config) { c.ReadTimeout = 0 }, "timeouts must be positive"},
		{"one-shot", func(c *Config) { c.PollInterval = 0 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := GetDefaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "battery capacity")
	assert.Contains(t, err.Error(), "RS-485 device")
}

func TestTransport(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, TransportRS485, cfg.Transport())

	cfg.BLEAddress = "38:3B:26:79:6F:C5"
	assert.Equal(t, TransportBLE, cfg.Transport())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("juntek-hass", nil, lookupMap(nil))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.MQTTBroker)
	assert.Equal(t, 1883, cfg.MQTTPort)
	assert.Equal(t, "Juntek-Monitor", cfg.Namespace)
	assert.Equal(t, "homeassistant", cfg.DiscoveryPrefix)
	assert.Equal(t, "BTG065", cfg.DeviceIdentifier)
	assert.Equal(t, 180, cfg.ExpireAfter)
	assert.Equal(t, 60*time.Second, cfg.PollInterval)
	assert.Equal(t, 60*time.Second, cfg.DiscoveryTimeout)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.False(t, cfg.HasMetrics())
}

func TestLoadFromEnv(t *testing.T) {
	cfg, err := Load("juntek-hass", nil, lookupMap(map[string]string{
		"MQTT_BROKER":          "mqtts://broker.lan",
		"MQTT_PORT":            "8883",
		"MQTT_USERNAME":        "ha",
		"MQTT_PASSWORD":        "secret",
		"BATTERY_CAPACITY":     "280",
		"POLL_INTERVAL":        "0",
		"JUNTEK_ADDR":          "38:3B:26:79:6F:C5",
		"ANNOUNCE_EVERY_CYCLE": "true",
		"HUMAN_DURATIONS":      "1",
		"METRICS_ADDR":         ":9108",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "mqtts://broker.lan", cfg.MQTTBroker)
	assert.Equal(t, 8883, cfg.MQTTPort)
	assert.Equal(t, "ha", cfg.MQTTUsername)
	assert.Equal(t, 280, cfg.BatteryCapacity)
	assert.Equal(t, time.Duration(0), cfg.PollInterval)
	assert.Equal(t, TransportBLE, cfg.Transport())
	assert.True(t, cfg.AnnounceEveryCycle)
	assert.True(t, cfg.HumanDurations)
	assert.True(t, cfg.HasMetrics())
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	cfg, err := Load("juntek-hass",
		[]string{"--battery-capacity", "100", "--poll-interval", "2m", "--rs485", "/dev/ttyUSB1"},
		lookupMap(map[string]string{"BATTERY_CAPACITY": "50", "POLL_INTERVAL": "30"}))
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.BatteryCapacity)
	assert.Equal(t, 2*time.Minute, cfg.PollInterval)
	assert.Equal(t, "/dev/ttyUSB1", cfg.RS485Device)
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, err := Load("juntek-hass", []string{"--read-timeout", "soon"},
		lookupMap(map[string]string{"MQTT_PORT": "abc", "VERBOSE": "maybe"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MQTT_PORT")
	assert.Contains(t, err.Error(), "VERBOSE")
	assert.Contains(t, err.Error(), "read timeout")
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"60", time.Minute, false},
		{"0", 0, false},
		{"90s", 90 * time.Second, false},
		{"1m30s", 90 * time.Second, false},
		{"-5", 0, true},
		{"-1s", 0, true},
		{"often", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnvFilePath(t *testing.T) {
	env := lookupMap(map[string]string{EnvFileVar: "/etc/juntek.env"})

	assert.Equal(t, "/tmp/a.env", EnvFilePath([]string{"--env-file=/tmp/a.env"}, env))
	assert.Equal(t, "/tmp/b.env", EnvFilePath([]string{"-verbose", "-env-file", "/tmp/b.env"}, env))
	assert.Equal(t, "/etc/juntek.env", EnvFilePath([]string{"--verbose"}, env))
	assert.Equal(t, DefaultEnvFilePath(), EnvFilePath(nil, lookupMap(nil)))
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.env")
	require.NoError(t, os.WriteFile(path, []byte("BATTERY_CAPACITY=120\nMQTT_BROKER=file-broker\n"), 0o600))

	t.Setenv("MQTT_BROKER", "env-broker")
	t.Setenv("BATTERY_CAPACITY", "")
	os.Unsetenv("BATTERY_CAPACITY")

	loaded, err := LoadEnvFile(path)
	require.NoError(t, err)
	assert.True(t, loaded)
	t.Cleanup(func() { os.Unsetenv("BATTERY_CAPACITY") })

	cfg, err := Load("juntek-hass", nil, os.Getenv)
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.BatteryCapacity)
	assert.Equal(t, "env-broker", cfg.MQTTBroker)
}

func TestLoadEnvFileMissing(t *testing.T) {
	loaded, err := LoadEnvFile(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
	assert.False(t, loaded)

	loaded, err = LoadEnvFile("")
	assert.NoError(t, err)
	assert.False(t, loaded)
}
