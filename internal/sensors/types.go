package sensors

// Field describes one quantity the monitor reports.
// Fields are built once from the static tables below and never modified.
type Field struct {
	ID        string    // unique_id, also the last MQTT topic segment
	Tag       string    // BLE marker byte as two uppercase hex chars, "" if not tagged
	Position  int       // RS-485 CSV index, -1 if not positional
	Transform Transform // raw integer -> published value
	Publish   bool      // false keeps the value internal (used for derived metrics)
}

// Reading is one (field, value) pair taken from a Telemetry State.
type Reading struct {
	ID    string
	Value any
}

// Field IDs referenced outside the tables.
const (
	BatteryVoltage  = "jt_batt_v"
	Current         = "jt_current"
	Watts           = "jt_watts"
	BatteryCharging = "jt_batt_charging"
	SOC             = "jt_soc"
	AhRemaining     = "jt_ah_remaining"
	AccCapacity     = "jt_acc_cap"
	SecRemaining    = "jt_sec_remaining"
	Temperature     = "jt_temp"
	SecRunning      = "jt_sec_running"

	Discharge       = "discharge"
	BatteryCapacity = "battery_capacity"
)

// AllFields lists every field a Telemetry State tracks, in publish order.
// The order matches the discovery table so values and announcements line up.
var AllFields = []Field{
	{ID: BatteryVoltage, Position: -1, Publish: true},
	{ID: Current, Position: -1, Publish: true},
	{ID: Watts, Position: -1, Publish: true},
	{ID: BatteryCharging, Position: -1, Publish: true},
	{ID: SOC, Position: -1, Publish: true},
	{ID: AhRemaining, Position: -1, Publish: true},
	{ID: AccCapacity, Position: -1, Publish: true},
	{ID: SecRemaining, Position: -1, Publish: true},
	{ID: Temperature, Position: -1, Publish: true},
	{ID: SecRunning, Position: -1, Publish: true},

	// Decoded from BLE frames but only used to derive other values.
	{ID: Discharge, Position: -1},
	{ID: BatteryCapacity, Position: -1},
}
