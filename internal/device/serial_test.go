package device

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/jkaberg/juntek-hass/internal/decoder"
)

// fakePort replays chunks on Read. Once they run out it reports read
// timeouts, or blocks until closed when block is set.
type fakePort struct {
	mu      sync.Mutex
	chunks  [][]byte
	written []byte
	block   bool
	closed  chan struct{}
	once    sync.Once
	timeout time.Duration
}

func newFakePort(chunks ...string) *fakePort {
	p := &fakePort{closed: make(chan struct{})}
	for _, c := range chunks {
		p.chunks = append(p.chunks, []byte(c))
	}
	return p
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.chunks) > 0 {
		n := copy(b, p.chunks[0])
		p.chunks = p.chunks[1:]
		p.mu.Unlock()
		return n, nil
	}
	p.mu.Unlock()

	if p.block {
		<-p.closed
		return 0, errors.New("port closed")
	}
	select {
	case <-p.closed:
		return 0, errors.New("port closed")
	case <-time.After(time.Millisecond):
		return 0, nil
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

func newTestSerial(t *testing.T, port *fakePort) *Serial {
	t.Helper()
	logger, _ := test.NewNullLogger()
	s := NewSerial("/dev/ttyUSB0", 50*time.Millisecond, 20*time.Millisecond, logger)
	s.open = func(path string, mode *serial.Mode) (Port, error) {
		assert.Equal(t, 115200, mode.BaudRate)
		assert.Equal(t, 8, mode.DataBits)
		assert.Equal(t, serial.NoParity, mode.Parity)
		assert.Equal(t, serial.OneStopBit, mode.StopBits)
		return port, nil
	}
	return s
}

func TestSerialPollCollectsAnswer(t *testing.T) {
	port := newFakePort(":r50=1,83,1334,", "120,297385\r\n")
	s := newTestSerial(t, port)
	ctx := context.Background()

	require.NoError(t, s.Connect(ctx))
	assert.Equal(t, interByteTimeout, port.timeout)

	raw, err := s.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, ":r50=1,83,1334,120,297385\r\n", string(raw))
	assert.Equal(t, decoder.Query, port.written)

	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestSerialPollTimesOut(t *testing.T) {
	s := newTestSerial(t, newFakePort())
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))

	_, err := s.Poll(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no answer")
}

func TestSerialPollNotConnected(t *testing.T) {
	s := newTestSerial(t, newFakePort())
	_, err := s.Poll(context.Background())
	assert.ErrorIs(t, err, errNotConnected)
}

func TestSerialPollCancelInterruptsRead(t *testing.T) {
	port := newFakePort()
	port.block = true
	s := newTestSerial(t, port)
	require.NoError(t, s.Connect(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	start := time.Now()
	_, err := s.Poll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSerialConnectOpenError(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := NewSerial("/dev/ttyUSB0", time.Second, time.Second, logger)
	s.open = func(string, *serial.Mode) (Port, error) {
		return nil, errors.New("permission denied")
	}
	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestSerialDiscover(t *testing.T) {
	logger, _ := test.NewNullLogger()

	t.Run("char device", func(t *testing.T) {
		s := NewSerial(os.DevNull, time.Second, time.Second, logger)
		assert.NoError(t, s.Discover(context.Background()))
	})

	t.Run("regular file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ttyUSB0")
		require.NoError(t, os.WriteFile(path, nil, 0o660))

		s := NewSerial(path, time.Second, time.Second, logger)
		err := s.Discover(context.Background())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrDeviceNotFound)
		assert.Contains(t, err.Error(), "group R/W char device")
	})

	t.Run("never appears", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing")
		s := NewSerial(path, 20*time.Millisecond, time.Second, logger)
		assert.ErrorIs(t, s.Discover(context.Background()), ErrDeviceNotFound)
	})

	t.Run("cancelled", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing")
		s := NewSerial(path, time.Hour, time.Second, logger)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, s.Discover(ctx), context.Canceled)
	})
}

func TestCheckCharDevice(t *testing.T) {
	assert.NoError(t, checkCharDevice("tty", os.ModeDevice|os.ModeCharDevice|0o660))
	assert.Error(t, checkCharDevice("tty", os.ModeDevice|os.ModeCharDevice|0o600))
	assert.Error(t, checkCharDevice("tty", 0o666))
}
