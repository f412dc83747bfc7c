// Package metrics exposes session progress as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jkaberg/juntek-hass/internal/session"
)

const (
	framesDecoded   = "juntek_frames_decoded_total"
	decodeErrors    = "juntek_decode_errors_total"
	transportErrors = "juntek_transport_errors_total"
	reconnects      = "juntek_reconnect_attempts_total"
	publishFailures = "juntek_publish_failures_total"
)

var states = []session.State{
	session.Idle,
	session.Discovering,
	session.Connected,
	session.Polling,
	session.Reconnecting,
	session.Stopped,
}

var _ session.Observer = (*PromObs)(nil)

// PromObs is a session.Observer backed by Prometheus collectors registered
// on the default registerer.
type PromObs struct {
	counters map[string]prometheus.Counter
	state    *prometheus.GaugeVec
}

// NewPromObs creates and registers the collectors. It panics when called
// twice against the same registry.
func NewPromObs() *PromObs {
	newCounter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	counters := map[string]prometheus.Counter{
		framesDecoded:   newCounter(framesDecoded, "Frames decoded into the telemetry state."),
		decodeErrors:    newCounter(decodeErrors, "Frames rejected as malformed."),
		transportErrors: newCounter(transportErrors, "Connect or poll failures of the device transport."),
		reconnects:      newCounter(reconnects, "Reconnect attempts to the device."),
		publishFailures: newCounter(publishFailures, "Failed MQTT announce or publish calls."),
	}
	state := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "juntek_session_state",
		Help: "1 for the current device session state, 0 otherwise.",
	}, []string{"state"})

	prometheus.MustRegister(state)
	for _, c := range counters {
		prometheus.MustRegister(c)
	}

	p := &PromObs{counters: counters, state: state}
	p.StateChanged(session.Idle)
	return p
}

func (p *PromObs) inc(name string) {
	if c, ok := p.counters[name]; ok {
		c.Inc()
	}
}

func (p *PromObs) StateChanged(s session.State) {
	for _, st := range states {
		v := 0.0
		if st == s {
			v = 1
		}
		p.state.WithLabelValues(st.String()).Set(v)
	}
}

func (p *PromObs) FrameDecoded()    { p.inc(framesDecoded) }
func (p *PromObs) DecodeFailed()    { p.inc(decodeErrors) }
func (p *PromObs) TransportFailed() { p.inc(transportErrors) }
func (p *PromObs) Reconnecting()    { p.inc(reconnects) }
func (p *PromObs) PublishFailed()   { p.inc(publishFailures) }
