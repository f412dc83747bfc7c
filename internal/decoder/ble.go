package decoder

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/jkaberg/juntek-hass/internal/sensors"
	"github.com/sirupsen/logrus"
)

const (
	startOfStream = "BB"
	endOfStream   = "EE"

	// int64 holds any 18 digit decimal
	maxDigits = 18
)

type scanState uint8

const (
	seekTagOrTerminator scanState = iota
	accumulateDigits
)

// BLE decodes the notification payloads of the BLE monitor.
//
// A payload is rendered as uppercase hex byte pairs and scanned from the end
// toward the start marker. Each tag is preceded by its value digits, one
// decimal digit per nibble; checksum and end marker pairs between
// concatenated frames are skipped.
type BLE struct {
	tags     map[string]sensors.Field
	capacity int
	logger   *logrus.Logger
}

// NewBLE returns a BLE decoder for fields. capacity is the battery capacity
// in Ah used to derive jt_soc.
func NewBLE(fields []sensors.Field, capacity int, logger *logrus.Logger) *BLE {
	return &BLE{
		tags:     sensors.ByTag(fields),
		capacity: capacity,
		logger:   logger,
	}
}

// Decode replaces the content of st with the values in raw. On error st is
// left untouched.
func (d *BLE) Decode(raw []byte, st *sensors.State) error {
	data := strings.ToUpper(hex.EncodeToString(raw))
	d.logger.WithField("data", data).Debug("BLE payload received")

	if !strings.HasPrefix(data, startOfStream) {
		d.logger.Error("missing Start of Stream")
		return fmt.Errorf("%w: missing start of stream", ErrMalformedFrame)
	}
	if !strings.HasSuffix(data, endOfStream) {
		d.logger.Error("missing End of Stream")
		return fmt.Errorf("%w: missing end of stream", ErrMalformedFrame)
	}

	scratch := sensors.NewState(st.Fields())
	if err := d.scan(bytePairs(data), scratch); err != nil {
		d.logger.WithError(err).WithField("data", data).Error("Failed to decode BLE payload")
		return err
	}
	sensors.DeriveBLE(scratch, d.capacity)

	st.Reset()
	for _, f := range st.Fields() {
		if v, ok := scratch.Get(f.ID); ok {
			_ = st.Set(f.ID, v)
		}
	}
	return nil
}

// cursor walks a byte pair list from the end toward index 0, which always
// holds the start marker.
type cursor struct {
	pairs []string
	pos   int
}

func (c *cursor) done() bool   { return c.pos <= 0 }
func (c *cursor) peek() string { return c.pairs[c.pos] }
func (c *cursor) back(n int)   { c.pos -= n }

func (d *BLE) scan(pairs []string, st *sensors.State) error {
	c := &cursor{pairs: pairs, pos: len(pairs) - 1}
	state := seekTagOrTerminator

	var (
		field  sensors.Field
		digits []string // nearest pair first
	)

	for {
		switch state {
		case seekTagOrTerminator:
			if c.done() {
				return nil
			}
			pair := c.peek()
			if f, ok := d.tags[pair]; ok {
				field = f
				digits = digits[:0]
				c.back(1)
				state = accumulateDigits
			} else if pair == endOfStream {
				// concatenated frame: skip the marker and the checksum before it
				c.back(2)
			} else {
				c.back(1)
			}

		case accumulateDigits:
			if !c.done() && isDigitPair(c.peek()) {
				digits = append(digits, c.peek())
				c.back(1)
				continue
			}
			if err := d.record(field, digits, st); err != nil {
				return err
			}
			state = seekTagOrTerminator
		}
	}
}

// record stores the value of one tag. The scan meets the last sub-frame
// first, so a field already present keeps its value.
func (d *BLE) record(field sensors.Field, digits []string, st *sensors.State) error {
	if st.Has(field.ID) {
		d.logger.WithField("field", field.ID).Debug("Ignoring repeated BLE tag")
		return nil
	}

	raw, err := parseDigits(digits)
	if err != nil {
		return fmt.Errorf("%w: tag %s: %v", ErrMalformedFrame, field.Tag, err)
	}
	value, err := field.Transform.Apply(raw)
	if err != nil {
		return fmt.Errorf("%w: tag %s: %v", ErrMalformedFrame, field.Tag, err)
	}

	d.logger.WithFields(logrus.Fields{
		"field": field.ID,
		"value": value,
	}).Debug("Decoded BLE value")
	return st.Set(field.ID, value)
}

// parseDigits joins the pairs most significant first. No pairs means 0.
func parseDigits(digits []string) (int64, error) {
	if len(digits) == 0 {
		return 0, nil
	}
	if 2*len(digits) > maxDigits {
		return 0, fmt.Errorf("%d digits exceed %d", 2*len(digits), maxDigits)
	}
	var b strings.Builder
	for i := len(digits) - 1; i >= 0; i-- {
		b.WriteString(digits[i])
	}
	return strconv.ParseInt(b.String(), 10, 64)
}

func bytePairs(data string) []string {
	pairs := make([]string, 0, len(data)/2)
	for i := 0; i+2 <= len(data); i += 2 {
		pairs = append(pairs, data[i:i+2])
	}
	return pairs
}

func isDigitPair(p string) bool {
	return len(p) == 2 && isDigit(p[0]) && isDigit(p[1])
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
