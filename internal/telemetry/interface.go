package telemetry

// Registry is the read side of the device telemetry cache. Lookups must not
// block: the balance engine calls them on every compute cycle.
type Registry interface {
	// Devices returns the devices currently known in a category, sorted by
	// ID. The result may be empty.
	Devices(category Category) []DeviceID

	// Read returns the last value a device published on path, or an absent
	// Reading when the value is unknown.
	Read(id DeviceID, path Path) Reading
}

// Category groups devices sharing a telemetry contract
type Category string

const (
	Battery      Category = "battery"
	Converter    Category = "converter"
	SolarCharger Category = "solar_charger"
	ACCharger    Category = "ac_charger"
	FuelCell     Category = "fuel_cell"
	Alternator   Category = "alternator"
	DCSource     Category = "dc_source"
	DCLoad       Category = "dc_load"
)

// Categories lists every category in a stable order
var Categories = []Category{
	Battery, Converter, SolarCharger, ACCharger, FuelCell, Alternator, DCSource, DCLoad,
}

// DeviceID identifies a device, e.g. "battery/256"
type DeviceID string

// Path names a metric published by a device
type Path string

const (
	PathVoltage         Path = "/Dc/0/Voltage"
	PathCurrent         Path = "/Dc/0/Current"
	PathPower           Path = "/Dc/0/Power"
	PathLoadCurrent     Path = "/Load/I"
	PathEnergyIn        Path = "/History/EnergyIn"
	PathEnergyOut       Path = "/History/EnergyOut"
	PathLowVoltage      Path = "/Alarms/LowVoltage"
	PathHighVoltage     Path = "/Alarms/HighVoltage"
	PathLowTemperature  Path = "/Alarms/LowTemperature"
	PathHighTemperature Path = "/Alarms/HighTemperature"
)

// Reading is an optional numeric value. The zero value is absent.
type Reading struct {
	Value float64
	Valid bool
}

// Some returns a present reading
func Some(v float64) Reading {
	return Reading{Value: v, Valid: true}
}

// None returns an absent reading
func None() Reading {
	return Reading{}
}

// Or returns the value, or def when the reading is absent
func (r Reading) Or(def float64) float64 {
	if !r.Valid {
		return def
	}

	return r.Value
}

// Neg negates a present reading and leaves an absent one untouched
func (r Reading) Neg() Reading {
	if !r.Valid {
		return r
	}

	return Some(-r.Value)
}
