// Package session runs the poll cycle for one Juntek monitor: it keeps the
// transport connected, decodes every frame into the telemetry state and hands
// the readings to the publisher.
package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jkaberg/juntek-hass/internal/decoder"
	"github.com/jkaberg/juntek-hass/internal/sensors"
)

// State is the lifecycle stage of a session.
type State int32

const (
	Idle State = iota
	Discovering
	Connected
	Polling
	Reconnecting
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Discovering:
		return "discovering"
	case Connected:
		return "connected"
	case Polling:
		return "polling"
	case Reconnecting:
		return "reconnecting"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Transport delivers raw frames from the monitor. Every error from Connect
// or Poll is treated as a transport fault and leads to a reconnect.
type Transport interface {
	Name() string
	Discover(ctx context.Context) error
	Connect(ctx context.Context) error
	Poll(ctx context.Context) ([]byte, error)
	Close() error
}

// Publisher forwards readings and discovery metadata downstream. Announce
// is called before every poll; the publisher decides what still needs to be
// sent.
type Publisher interface {
	Announce(ctx context.Context) error
	Publish(ctx context.Context, readings []sensors.Reading) error
}

// DefaultRetryDelay is used between reconnect attempts when neither
// RetryDelay nor PollInterval is set.
const DefaultRetryDelay = 10 * time.Second

// Config tunes the poll loop.
type Config struct {
	// PollInterval is the pause between cycles. Zero stops after the first
	// cycle that reached the device.
	PollInterval time.Duration
	// RetryDelay is the pause before each reconnect attempt; defaults to
	// PollInterval.
	RetryDelay time.Duration
}

// Session owns one transport, its decoder and its telemetry state. It is
// not safe to Run the same Session twice.
type Session struct {
	transport Transport
	decoder   decoder.Decoder
	state     *sensors.State
	publisher Publisher
	observer  Observer
	cfg       Config
	logger    *logrus.Logger

	current atomic.Int32
}

// New wires a session together. The observer defaults to a no-op.
func New(t Transport, d decoder.Decoder, st *sensors.State, p Publisher, cfg Config, logger *logrus.Logger) *Session {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = cfg.PollInterval
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &Session{
		transport: t,
		decoder:   d,
		state:     st,
		publisher: p,
		observer:  NoopObserver{},
		cfg:       cfg,
		logger:    logger,
	}
}

// SetObserver replaces the observer. Call it before Run.
func (s *Session) SetObserver(o Observer) {
	if o == nil {
		o = NoopObserver{}
	}
	s.observer = o
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	return State(s.current.Load())
}

func (s *Session) setState(st State) {
	if State(s.current.Swap(int32(st))) == st {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"transport": s.transport.Name(),
		"state":     st.String(),
	}).Debug("Session state changed")
	s.observer.StateChanged(st)
}

// Run discovers the monitor and polls it until ctx is cancelled, or once
// when PollInterval is zero. Only discovery errors are returned; transport
// faults are retried forever, even in single poll mode, and cancellation
// returns nil.
func (s *Session) Run(ctx context.Context) error {
	defer s.setState(Stopped)

	s.setState(Discovering)
	if err := s.transport.Discover(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer s.closeTransport()

	connected := true
	if err := s.transport.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		s.logger.WithError(err).Warn("Failed to connect to Juntek monitor")
		s.observer.TransportFailed()
		connected = false
	} else {
		s.setState(Connected)
	}

	for {
		if !connected {
			if !s.reconnect(ctx) {
				return nil
			}
			connected = true
		}

		s.setState(Polling)
		if err := s.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.WithError(err).WithField("transport", s.transport.Name()).Warn("Transport error, reconnecting")
			s.observer.TransportFailed()
			connected = false
			continue
		}

		if s.cfg.PollInterval <= 0 {
			s.logger.Debug("Single poll finished")
			return nil
		}
		if err := sleep(ctx, s.cfg.PollInterval); err != nil {
			return nil
		}
	}
}

// cycle runs one poll. The returned error is always a transport fault;
// decode and publish failures are handled here.
func (s *Session) cycle(ctx context.Context) error {
	if err := s.publisher.Announce(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to announce sensors")
		s.observer.PublishFailed()
	}

	raw, err := s.transport.Poll(ctx)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := s.decoder.Decode(raw, s.state); err != nil {
		// The decoder logged the details; the link itself is fine.
		s.observer.DecodeFailed()
		return nil
	}
	s.observer.FrameDecoded()

	readings := s.state.Values()
	if err := s.publisher.Publish(ctx, readings); err != nil {
		s.logger.WithError(err).Warn("Failed to publish readings")
		s.observer.PublishFailed()
		return nil
	}
	s.logger.WithField("count", len(readings)).Debug("Published readings")
	return nil
}

// reconnect retries Connect every RetryDelay until it succeeds. It returns
// false when ctx is cancelled first.
func (s *Session) reconnect(ctx context.Context) bool {
	s.setState(Reconnecting)
	for attempt := 1; ; attempt++ {
		s.closeTransport()
		if err := sleep(ctx, s.cfg.RetryDelay); err != nil {
			return false
		}

		s.observer.Reconnecting()
		err := s.transport.Connect(ctx)
		if err == nil {
			s.logger.WithField("attempts", attempt).Info("Reconnected to Juntek monitor")
			s.setState(Connected)
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		s.logger.WithError(err).WithField("attempt", attempt).Warn("Reconnect failed")
		s.observer.TransportFailed()
	}
}

func (s *Session) closeTransport() {
	if err := s.transport.Close(); err != nil {
		s.logger.WithError(err).Debug("Failed to close transport")
	}
}

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
