package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jkaberg/juntek-hass/internal/config"
	"github.com/jkaberg/juntek-hass/internal/decoder"
	"github.com/jkaberg/juntek-hass/internal/device"
)

const answer = ":R50=1,\n:r50=1,83,1334,120,297385,91985,739573,14353,123,4112,99,1,3426,769,\r\n"

type fakeTransport struct {
	discoverErr error
	polls       int
}

func (f *fakeTransport) Name() string                       { return "fake" }
func (f *fakeTransport) Discover(ctx context.Context) error { return f.discoverErr }
func (f *fakeTransport) Connect(ctx context.Context) error  { return nil }
func (f *fakeTransport) Close() error                       { return nil }

func (f *fakeTransport) Poll(ctx context.Context) ([]byte, error) {
	f.polls++
	return []byte(answer), nil
}

type fakeClient struct {
	mu       sync.Mutex
	messages map[string]string
}

func (c *fakeClient) Publish(topic string, payload []byte, retained bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.messages == nil {
		c.messages = make(map[string]string)
	}
	c.messages[topic] = string(payload)
	return nil
}

func (c *fakeClient) IsConnected() bool { return true }

func oneShotConfig() *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.BatteryCapacity = 300
	cfg.RS485Device = "/dev/ttyUSB0"
	cfg.PollInterval = 0
	return cfg
}

func TestRunSinglePoll(t *testing.T) {
	logger, _ := test.NewNullLogger()
	transport := &fakeTransport{}
	client := &fakeClient{}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, Run(ctx, oneShotConfig(), transport, client, logger))

	assert.Equal(t, 1, transport.polls)
	assert.Equal(t, "13.34", client.messages["Juntek-Monitor/jt_batt_v"])
	assert.Equal(t, "99.2", client.messages["Juntek-Monitor/jt_soc"])
	assert.Equal(t, "Charging", client.messages["Juntek-Monitor/jt_batt_charging"])
	assert.Contains(t, client.messages, "homeassistant/sensor/jt_batt_v/config")
}

func TestRunHumanDurations(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := oneShotConfig()
	cfg.HumanDurations = true
	client := &fakeClient{}

	require.NoError(t, Run(context.Background(), cfg, &fakeTransport{}, client, logger))
	assert.Equal(t, "0d 00:57:06", client.messages["Juntek-Monitor/jt_sec_remaining"])
}

func TestRunDiscoveryFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	transport := &fakeTransport{discoverErr: device.ErrDeviceNotFound}

	err := Run(context.Background(), oneShotConfig(), transport, &fakeClient{}, logger)
	require.Error(t, err)
	assert.True(t, errors.Is(err, device.ErrDeviceNotFound))
	assert.Contains(t, err.Error(), "fake session")
	assert.Zero(t, transport.polls)
}

func TestNewDecoderFollowsTransport(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := oneShotConfig()

	assert.IsType(t, &decoder.RS485{}, NewDecoder(cfg, logger))

	cfg.BLEAddress = "38:3B:26:79:6F:C5"
	assert.IsType(t, &decoder.BLE{}, NewDecoder(cfg, logger))
}

func TestNewTransportFollowsConfig(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := oneShotConfig()
	assert.Equal(t, "rs485", NewTransport(cfg, logger).Name())

	cfg.BLEAddress = "38:3B:26:79:6F:C5"
	assert.Equal(t, "ble", NewTransport(cfg, logger).Name())
}
