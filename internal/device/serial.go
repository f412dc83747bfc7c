package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/jkaberg/juntek-hass/internal/decoder"
)

const (
	baudRate = 115200

	// a read that stays quiet this long ends the answer
	interByteTimeout = 200 * time.Millisecond
	statInterval     = time.Second
)

// Port is the part of a serial port the transport uses.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Opener opens the serial device at path.
type Opener func(path string, mode *serial.Mode) (Port, error)

func openSerial(path string, mode *serial.Mode) (Port, error) {
	return serial.Open(path, mode)
}

// Serial queries the monitor over an RS-485 adapter: every poll writes the
// ":R50" query and collects the answer until the line goes quiet.
type Serial struct {
	path             string
	discoveryTimeout time.Duration
	readTimeout      time.Duration
	logger           *logrus.Logger

	open Opener
	stat func(string) (fs.FileInfo, error)
	port Port
}

// NewSerial returns a serial transport for the character device at path.
func NewSerial(path string, discoveryTimeout, readTimeout time.Duration, logger *logrus.Logger) *Serial {
	return &Serial{
		path:             path,
		discoveryTimeout: discoveryTimeout,
		readTimeout:      readTimeout,
		logger:           logger,
		open:             openSerial,
		stat:             os.Stat,
	}
}

// Name identifies the transport in logs.
func (s *Serial) Name() string { return "rs485" }

// Discover waits for the device node to appear. A node that is not a group
// read/write character device is a configuration error.
func (s *Serial) Discover(ctx context.Context) error {
	deadline := time.Now().Add(s.discoveryTimeout)
	for {
		fi, err := s.stat(s.path)
		if err == nil {
			return checkCharDevice(s.path, fi.Mode())
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to stat %s: %w", s.path, err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%w: %s did not appear within %s", ErrDeviceNotFound, s.path, s.discoveryTimeout)
		}
		s.logger.WithField("path", s.path).Debug("Waiting for serial device")
		if err := sleep(ctx, min(statInterval, remaining)); err != nil {
			return err
		}
	}
}

func checkCharDevice(path string, mode fs.FileMode) error {
	if mode&fs.ModeCharDevice == 0 || mode.Perm()&0o060 != 0o060 {
		return fmt.Errorf("rs485 device %s must be a group R/W char device (mode %s)", path, mode)
	}
	return nil
}

// Connect opens the port at 115200 8N1.
func (s *Serial) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	port, err := s.open(s.path, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.path, err)
	}
	if err := port.SetReadTimeout(interByteTimeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout on %s: %w", s.path, err)
	}
	s.port = port
	s.logger.WithField("path", s.path).Info("Opened serial port")
	return nil
}

// Poll writes the query and returns everything read until the line goes
// quiet. No answer within the read timeout is a transport error.
func (s *Serial) Poll(ctx context.Context) ([]byte, error) {
	port := s.port
	if port == nil {
		return nil, errNotConnected
	}
	// Closing the port is the only way to interrupt a pending read.
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer stop()

	if _, err := port.Write(decoder.Query); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to write query: %w", err)
	}

	var answer bytes.Buffer
	chunk := make([]byte, 256)
	deadline := time.Now().Add(s.readTimeout)
	for {
		n, err := port.Read(chunk)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read answer: %w", err)
		}
		if n > 0 {
			answer.Write(chunk[:n])
			continue
		}
		if answer.Len() > 0 {
			return answer.Bytes(), nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("no answer within %s", s.readTimeout)
		}
	}
}

// Close closes the port.
func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	port := s.port
	s.port = nil
	if err := port.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", s.path, err)
	}
	return nil
}
