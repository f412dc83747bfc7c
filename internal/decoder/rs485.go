package decoder

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/jkaberg/juntek-hass/internal/sensors"
	"github.com/sirupsen/logrus"
)

// Query asks the monitor at address 1 for its measured values.
var Query = []byte(":R50=1,2,1,\n")

var answerPrefix = []byte(":r50=")

// RS485 decodes the ":r50=" answer of the serial monitor. Values are
// positional, comma separated.
type RS485 struct {
	fields   []sensors.Field
	capacity int
	logger   *logrus.Logger
}

// NewRS485 returns an RS-485 decoder for fields. capacity is the battery
// capacity in Ah used to derive jt_soc.
func NewRS485(fields []sensors.Field, capacity int, logger *logrus.Logger) *RS485 {
	return &RS485{
		fields:   fields,
		capacity: capacity,
		logger:   logger,
	}
}

// Decode writes every field found in the last answer line of raw into st.
// A field that is missing or does not parse is logged and cleared, so only
// values from this answer are published. Fields the answer never carries
// keep their values.
func (d *RS485) Decode(raw []byte, st *sensors.State) error {
	d.logger.WithField("raw", string(raw)).Debug("RS-485 answer received")

	idx := bytes.LastIndex(asciiLower(raw), answerPrefix)
	if idx < 0 {
		d.logger.Error("missing Start of Stream")
		return fmt.Errorf("%w: missing %s", ErrMalformedFrame, answerPrefix)
	}
	line := raw[idx+len(answerPrefix):]
	if end := bytes.IndexAny(line, "\r\n"); end >= 0 {
		line = line[:end]
	}
	p := &positions{values: strings.Split(string(line), ","), d: d}

	written := 0
	set := func(id string, v any, ok bool) error {
		if !ok {
			return st.Set(id, nil)
		}
		written++
		return st.Set(id, v)
	}

	for _, f := range d.fields {
		n, ok := p.get(f.Position, f.ID)
		var v any
		if ok {
			var err error
			if v, err = f.Transform.Apply(n); err != nil {
				d.logger.WithError(err).WithField("field", f.ID).Error("Invalid RS-485 value")
				ok = false
			}
		}
		if err := set(f.ID, v, ok); err != nil {
			return err
		}
	}

	// Capacities round up before scaling.
	n, ok := p.get(sensors.RS485AhPosition, sensors.SOC)
	var soc any
	if ok = ok && d.capacity > 0; ok {
		soc, _ = sensors.Scale(10).Apply(sensors.CeilDiv(n, int64(d.capacity)))
	}
	if err := set(sensors.SOC, soc, ok); err != nil {
		return err
	}

	n, ok = p.get(sensors.RS485AccCapPosition, sensors.AccCapacity)
	var acc any
	if ok {
		acc, _ = sensors.Scale(100).Apply(sensors.CeilDiv(n, 1000))
	}
	if err := set(sensors.AccCapacity, acc, ok); err != nil {
		return err
	}

	if written == 0 {
		return fmt.Errorf("%w: no usable values in %q", ErrMalformedFrame, line)
	}
	return nil
}

// positions parses each answer position at most once, so a bad value shared
// by two fields is logged once.
type positions struct {
	values []string
	d      *RS485
	seen   map[int]parsedPosition
}

type parsedPosition struct {
	n  int64
	ok bool
}

func (p *positions) get(pos int, id string) (int64, bool) {
	if r, ok := p.seen[pos]; ok {
		return r.n, r.ok
	}
	if p.seen == nil {
		p.seen = make(map[int]parsedPosition)
	}
	n, ok := p.d.position(p.values, pos, id)
	p.seen[pos] = parsedPosition{n: n, ok: ok}
	return n, ok
}

func (d *RS485) position(values []string, pos int, id string) (int64, bool) {
	logger := d.logger.WithFields(logrus.Fields{
		"field":    id,
		"position": pos,
	})
	if pos < 0 || pos >= len(values) {
		logger.Error("Missing RS-485 value")
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(values[pos]), 10, 64)
	if err != nil {
		logger.WithError(err).Error("Invalid RS-485 value")
		return 0, false
	}
	return n, true
}

func asciiLower(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return out
}
