// Package decoder turns raw buffers read from a Juntek monitor into sensor
// values.
package decoder

import (
	"errors"

	"github.com/jkaberg/juntek-hass/internal/sensors"
)

// ErrMalformedFrame is returned when a buffer does not follow the wire format.
// The transport that delivered it is still healthy.
var ErrMalformedFrame = errors.New("malformed frame")

// Decoder writes the values found in one raw buffer into st.
type Decoder interface {
	Decode(raw []byte, st *sensors.State) error
}
