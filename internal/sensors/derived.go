package sensors

// DeriveBLE fills in the values a BLE frame does not carry. It only acts
// when jt_ah_remaining was decoded in the current frame:
//  1. jt_soc = int(100 * jt_ah_remaining / capacity), truncated, not rounded.
//  2. jt_batt_charging, when the frame had no explicit D1 tag, is
//     "Discharging" if the discharge energy (D3) was present and "Charging"
//     otherwise. Some firmware omits D1 entirely.
func DeriveBLE(s *State, capacity int) {
	v, ok := s.Get(AhRemaining)
	if !ok {
		return
	}
	if ah, isFloat := v.(float64); isFloat && capacity > 0 {
		_ = s.Set(SOC, int64(100*ah/float64(capacity)))
	}

	if s.Has(BatteryCharging) {
		return
	}
	direction := ChargeLabels[1]
	if s.Has(Discharge) {
		direction = ChargeLabels[0]
	}
	_ = s.Set(BatteryCharging, direction)
}
