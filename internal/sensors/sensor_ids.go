package sensors

// BLEFields maps the BLE tag codes to their fields.
//
// A BLE frame is a start marker (0xBB), one or more values each followed by
// its tag byte, a checksum byte and an end marker (0xEE). Every value byte
// holds two decimal digits, one per nibble:
//
//	BB 13 34 C0 20 01 D8 99 EE
//
// decodes to jt_batt_v=13.34 (C0) and jt_watts=20.01 (D8); 99 is the checksum.
var BLEFields = []Field{
	{ID: BatteryVoltage, Tag: "C0", Position: -1, Transform: Scale(100), Publish: true},
	{ID: Current, Tag: "C1", Position: -1, Transform: Scale(100), Publish: true},
	{ID: BatteryCharging, Tag: "D1", Position: -1, Transform: Enumerate(ChargeLabels...), Publish: true},
	{ID: AhRemaining, Tag: "D2", Position: -1, Transform: Scale(1000), Publish: true},
	{ID: Discharge, Tag: "D3", Position: -1, Transform: Scale(100000)},
	{ID: AccCapacity, Tag: "D4", Position: -1, Transform: Scale(100000), Publish: true},
	{ID: SecRunning, Tag: "D5", Position: -1, Transform: Identity(), Publish: true},
	{ID: SecRemaining, Tag: "D6", Position: -1, Transform: Identity(), Publish: true},
	{ID: Watts, Tag: "D8", Position: -1, Transform: Scale(100), Publish: true},
	{ID: Temperature, Tag: "D9", Position: -1, Transform: Offset(100), Publish: true},
	{ID: BatteryCapacity, Tag: "B1", Position: -1, Transform: Scale(10)},
}

// RS485Fields maps the positions of an ":r50=" answer to their fields.
// jt_soc (from position 4) and jt_acc_cap (position 6) round up before
// scaling, which a single transform cannot express, so the decoder derives
// them itself.
//
//	0 address, 1 checksum, 5 remaining capacity, 10 output status: unused
var RS485Fields = []Field{
	{ID: BatteryVoltage, Position: 2, Transform: Scale(100), Publish: true},
	{ID: Current, Position: 3, Transform: Scale(100), Publish: true},
	{ID: AhRemaining, Position: 4, Transform: Scale(1000), Publish: true},
	{ID: SecRunning, Position: 7, Transform: Identity(), Publish: true},
	{ID: Temperature, Position: 8, Transform: Offset(100), Publish: true},
	{ID: Watts, Position: 9, Transform: Scale(100), Publish: true},
	{ID: BatteryCharging, Position: 11, Transform: Enumerate(ChargeLabels...), Publish: true},
	{ID: SecRemaining, Position: 12, Transform: Identity(), Publish: true},
}

// RS485 positions consumed by derived values.
const (
	RS485AhPosition     = 4
	RS485AccCapPosition = 6
)

// WithHumanDurations returns a copy of fields where the seconds counters are
// rendered by the Duration transform instead of passed through.
func WithHumanDurations(fields []Field) []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	for i := range out {
		if IsDuration(out[i].ID) {
			out[i].Transform = Duration()
		}
	}
	return out
}

// IsDuration reports whether id is one of the seconds counters.
func IsDuration(id string) bool {
	return id == SecRunning || id == SecRemaining
}

// ByTag indexes fields by tag code, skipping untagged ones.
func ByTag(fields []Field) map[string]Field {
	m := make(map[string]Field, len(fields))
	for _, f := range fields {
		if f.Tag != "" {
			m[f.Tag] = f
		}
	}
	return m
}
