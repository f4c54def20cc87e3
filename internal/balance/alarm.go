package balance

import "codeberg.org/mutker/dcsystem/internal/telemetry"

// Severity is an ordered alarm level
type Severity int

const (
	SeverityOK Severity = iota
	SeverityWarning
	SeverityAlarm
)

func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "ok"
	case SeverityWarning:
		return "warning"
	case SeverityAlarm:
		return "alarm"
	default:
		return "unknown"
	}
}

// Alarms holds the worst severity seen per alarm class
type Alarms struct {
	LowVoltage      Severity
	HighVoltage     Severity
	LowTemperature  Severity
	HighTemperature Severity
}

// Observe folds one device's published severities into a. Missing values
// count as OK.
func (a *Alarms) Observe(reg telemetry.Registry, id telemetry.DeviceID) {
	a.Merge(Alarms{
		LowVoltage:      readSeverity(reg, id, telemetry.PathLowVoltage),
		HighVoltage:     readSeverity(reg, id, telemetry.PathHighVoltage),
		LowTemperature:  readSeverity(reg, id, telemetry.PathLowTemperature),
		HighTemperature: readSeverity(reg, id, telemetry.PathHighTemperature),
	})
}

// Merge keeps the maximum of each class
func (a *Alarms) Merge(other Alarms) {
	a.LowVoltage = max(a.LowVoltage, other.LowVoltage)
	a.HighVoltage = max(a.HighVoltage, other.HighVoltage)
	a.LowTemperature = max(a.LowTemperature, other.LowTemperature)
	a.HighTemperature = max(a.HighTemperature, other.HighTemperature)
}

func readSeverity(reg telemetry.Registry, id telemetry.DeviceID, path telemetry.Path) Severity {
	return Severity(reg.Read(id, path).Or(float64(SeverityOK)))
}
