// Package device provides the transports that carry raw frames from a Juntek
// monitor: BLE notifications and an RS-485 serial line.
package device

import (
	"context"
	"errors"
	"time"
)

// ErrDeviceNotFound is returned by Discover when the monitor did not show up
// within the discovery timeout.
var ErrDeviceNotFound = errors.New("device not found")

var (
	errNotConnected = errors.New("not connected")
	errNotFound     = errors.New("not found")
)

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
