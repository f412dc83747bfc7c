package device

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

var (
	serviceUUID = bluetooth.New16BitUUID(0xfff0)
	notifyUUID  = bluetooth.New16BitUUID(0xfff1)
)

// BLE receives frames from the monitor's notify characteristic. The monitor
// pushes a frame about once a second; Poll hands out the next one.
type BLE struct {
	address          string
	discoveryTimeout time.Duration
	readTimeout      time.Duration
	logger           *logrus.Logger

	adapter   *bluetooth.Adapter
	addr      bluetooth.Address
	device    bluetooth.Device
	connected bool

	// holds at most the newest frame
	frames chan []byte
}

// NewBLE returns a BLE transport for the monitor at address.
func NewBLE(address string, discoveryTimeout, readTimeout time.Duration, logger *logrus.Logger) *BLE {
	return &BLE{
		address:          address,
		discoveryTimeout: discoveryTimeout,
		readTimeout:      readTimeout,
		logger:           logger,
		adapter:          bluetooth.DefaultAdapter,
		frames:           make(chan []byte, 1),
	}
}

// Name identifies the transport in logs.
func (b *BLE) Name() string { return "ble" }

// Discover scans until the configured address advertises.
func (b *BLE) Discover(ctx context.Context) error {
	if err := b.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable BLE adapter: %w", err)
	}

	b.logger.WithFields(logrus.Fields{
		"address": b.address,
		"timeout": b.discoveryTimeout,
	}).Info("Scanning for Juntek monitor")

	found := make(chan bluetooth.Address, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- b.adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !strings.EqualFold(result.Address.String(), b.address) {
				return
			}
			select {
			case found <- result.Address:
			default:
			}
			a.StopScan()
		})
	}()

	timer := time.NewTimer(b.discoveryTimeout)
	defer timer.Stop()

	select {
	case addr := <-found:
		b.addr = addr
	case err := <-errc:
		// Scan may return right after the callback stopped it.
		select {
		case addr := <-found:
			b.addr = addr
		default:
			if err != nil {
				return fmt.Errorf("BLE scan failed: %w", err)
			}
			return fmt.Errorf("%w: scan ended without %s", ErrDeviceNotFound, b.address)
		}
	case <-timer.C:
		_ = b.adapter.StopScan()
		return fmt.Errorf("%w: %s not seen within %s; is it in range or is another client connected?",
			ErrDeviceNotFound, b.address, b.discoveryTimeout)
	case <-ctx.Done():
		_ = b.adapter.StopScan()
		return ctx.Err()
	}

	b.logger.WithField("address", b.addr.String()).Info("Located Juntek monitor")
	return nil
}

// Connect subscribes to the notify characteristic.
func (b *BLE) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dev, err := b.adapter.Connect(b.addr, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", b.address, err)
	}
	b.device = dev
	b.connected = true

	srvs, err := dev.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil || len(srvs) == 0 {
		return fmt.Errorf("failed to discover service %s: %w", serviceUUID, orMissing(err))
	}
	chars, err := srvs[0].DiscoverCharacteristics([]bluetooth.UUID{notifyUUID})
	if err != nil || len(chars) == 0 {
		return fmt.Errorf("failed to discover characteristic %s: %w", notifyUUID, orMissing(err))
	}

	b.drain()
	if err := chars[0].EnableNotifications(b.onNotify); err != nil {
		return fmt.Errorf("failed to enable notifications: %w", err)
	}

	b.logger.WithField("address", b.address).Info("Subscribed to Juntek notifications")
	return nil
}

// Poll waits for the next notification.
func (b *BLE) Poll(ctx context.Context) ([]byte, error) {
	if !b.connected {
		return nil, errNotConnected
	}
	b.drain()

	timer := time.NewTimer(b.readTimeout)
	defer timer.Stop()

	select {
	case frame := <-b.frames:
		return frame, nil
	case <-timer.C:
		return nil, fmt.Errorf("no notification within %s", b.readTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close disconnects from the monitor.
func (b *BLE) Close() error {
	if !b.connected {
		return nil
	}
	b.connected = false
	if err := b.device.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect from %s: %w", b.address, err)
	}
	b.logger.Debug("BLE device disconnected")
	return nil
}

// onNotify runs on the BLE stack's goroutine. The buffer is reused by the
// stack, so it is copied.
func (b *BLE) onNotify(buf []byte) {
	frame := make([]byte, len(buf))
	copy(frame, buf)

	select {
	case <-b.frames:
	default:
	}
	select {
	case b.frames <- frame:
	default:
	}
}

func (b *BLE) drain() {
	for {
		select {
		case <-b.frames:
		default:
			return
		}
	}
}

func orMissing(err error) error {
	if err != nil {
		return err
	}
	return errNotFound
}
