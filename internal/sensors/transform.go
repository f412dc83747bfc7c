package sensors

import "fmt"

// Kind selects the conversion a Transform applies.
type Kind uint8

const (
	KindIdentity Kind = iota
	KindScale
	KindOffset
	KindEnumerate
	KindDuration
)

// ChargeLabels are the two states of the charge-direction flag, indexed by
// the raw value the device sends.
var ChargeLabels = []string{"Discharging", "Charging"}

// Transform converts a raw non-negative integer reconstructed from the
// device stream into the value that is published. The zero value is Identity.
type Transform struct {
	Kind   Kind
	Factor int64    // divisor for Scale, subtrahend for Offset
	Labels []string // Enumerate only
}

func Identity() Transform             { return Transform{Kind: KindIdentity} }
func Scale(divisor int64) Transform   { return Transform{Kind: KindScale, Factor: divisor} }
func Offset(subtract int64) Transform { return Transform{Kind: KindOffset, Factor: subtract} }
func Duration() Transform             { return Transform{Kind: KindDuration} }

func Enumerate(labels ...string) Transform {
	return Transform{Kind: KindEnumerate, Labels: labels}
}

// Apply returns int64 for Identity and Offset, float64 for Scale and string
// for Enumerate and Duration. Only Enumerate can fail.
func (t Transform) Apply(raw int64) (any, error) {
	switch t.Kind {
	case KindIdentity:
		return raw, nil
	case KindScale:
		return float64(raw) / float64(t.Factor), nil
	case KindOffset:
		return raw - t.Factor, nil
	case KindEnumerate:
		if raw < 0 || raw >= int64(len(t.Labels)) {
			return nil, fmt.Errorf("enumerate: index %d out of range, expected 0..%d", raw, len(t.Labels)-1)
		}
		return t.Labels[raw], nil
	case KindDuration:
		return FormatDuration(raw), nil
	default:
		return nil, fmt.Errorf("unknown transform kind %d", t.Kind)
	}
}

// FormatDuration renders a count of seconds as "{days}d {hh}:{mm}:{ss}".
func FormatDuration(seconds int64) string {
	days := seconds / 86400
	seconds %= 86400
	hours := seconds / 3600
	seconds %= 3600
	return fmt.Sprintf("%dd %02d:%02d:%02d", days, hours, seconds/60, seconds%60)
}

// CeilDiv divides rounding up. The RS-485 capacity fields are rounded this way
// before scaling so truncation does not bias them low.
func CeilDiv(raw, divisor int64) int64 {
	q := raw / divisor
	if raw%divisor != 0 && (raw < 0) == (divisor < 0) {
		q++
	}
	return q
}
