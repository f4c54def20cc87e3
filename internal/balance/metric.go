package balance

import (
	"fmt"
	"strconv"

	"codeberg.org/mutker/dcsystem/internal/telemetry"
)

// Key names an output metric
type Key string

const (
	BusVoltage           Key = "bus.voltage"
	BusCurrent           Key = "bus.current"
	BusPower             Key = "bus.power"
	EnergyIn             Key = "history.energy_in"
	EnergyOut            Key = "history.energy_out"
	AlarmLowVoltage      Key = "alarm.low_voltage"
	AlarmHighVoltage     Key = "alarm.high_voltage"
	AlarmLowTemperature  Key = "alarm.low_temperature"
	AlarmHighTemperature Key = "alarm.high_temperature"
)

// Metric describes how an output value is exposed
type Metric struct {
	Key    Key
	Path   telemetry.Path
	Unit   string
	format string
}

// Metrics is the fixed output catalogue, in registration order
var Metrics = []Metric{
	{Key: BusVoltage, Path: telemetry.PathVoltage, Unit: "V", format: "%.2fV"},
	{Key: BusCurrent, Path: telemetry.PathCurrent, Unit: "A", format: "%.3fA"},
	{Key: BusPower, Path: telemetry.PathPower, Unit: "W", format: "%.2fW"},
	{Key: EnergyIn, Path: telemetry.PathEnergyIn, Unit: "kWh", format: "%.6fkWh"},
	{Key: EnergyOut, Path: telemetry.PathEnergyOut, Unit: "kWh", format: "%.6fkWh"},
	{Key: AlarmLowVoltage, Path: telemetry.PathLowVoltage},
	{Key: AlarmHighVoltage, Path: telemetry.PathHighVoltage},
	{Key: AlarmLowTemperature, Path: telemetry.PathLowTemperature},
	{Key: AlarmHighTemperature, Path: telemetry.PathHighTemperature},
}

// Lookup finds a metric by key
func Lookup(key Key) (Metric, bool) {
	for _, m := range Metrics {
		if m.Key == key {
			return m, true
		}
	}

	return Metric{}, false
}

// IsAlarm reports whether the metric carries a Severity
func (m Metric) IsAlarm() bool {
	return m.format == ""
}

// Text renders a value for display. Absent values render empty.
func (m Metric) Text(r telemetry.Reading) string {
	if !r.Valid {
		return ""
	}
	if m.IsAlarm() {
		return strconv.Itoa(int(r.Value))
	}

	return fmt.Sprintf(m.format, r.Value)
}
