// Package balance estimates the power of the unmetered part of a DC bus.
//
// The primary path balances every known source against the battery and the
// metered loads:
//
//	unknown = solar + chargers + fuel cells + alternators + dc sources + converter
//	          - battery - dc loads
//
// When no battery or converter provides a voltage reference the engine falls
// back to summing the metered DC loads and sources directly.
package balance

import "codeberg.org/mutker/dcsystem/internal/telemetry"

// Battery is the reference point of the balance
type Battery struct {
	Device  telemetry.DeviceID
	Source  telemetry.Category
	Power   float64
	Voltage float64
}

// Breakdown lists every term of a balance computation
type Breakdown struct {
	Battery     Battery
	Solar       float64
	ACChargers  float64
	FuelCells   float64
	Alternators float64
	DCSources   float64
	Converter   float64
	DCLoads     float64
	Unknown     float64
}

// Sources returns the sum of every term feeding the bus
func (b Breakdown) Sources() float64 {
	return b.Solar + b.ACChargers + b.FuelCells + b.Alternators + b.DCSources + b.Converter
}

type Engine struct {
	reg telemetry.Registry
}

func NewEngine(reg telemetry.Registry) *Engine {
	return &Engine{reg: reg}
}

// Compute runs one cycle: the balance when a battery resolves, the fallback
// aggregation otherwise.
func (e *Engine) Compute() Update {
	if u, ok := e.Balance(); ok {
		return u
	}

	return e.Fallback()
}

// ResolveBattery finds the bus reference. A battery monitor reporting power
// and a positive voltage wins; otherwise a converter reporting voltage and
// current is used with power = voltage × current.
func (e *Engine) ResolveBattery() (Battery, bool) {
	for _, id := range e.reg.Devices(telemetry.Battery) {
		p := e.reg.Read(id, telemetry.PathPower)
		v := e.reg.Read(id, telemetry.PathVoltage)
		if p.Valid && v.Valid && v.Value > 0 {
			return Battery{Device: id, Source: telemetry.Battery, Power: p.Value, Voltage: v.Value}, true
		}
	}

	for _, id := range e.reg.Devices(telemetry.Converter) {
		v := e.reg.Read(id, telemetry.PathVoltage)
		i := e.reg.Read(id, telemetry.PathCurrent)
		if v.Valid && i.Valid && v.Value > 0 {
			return Battery{Device: id, Source: telemetry.Converter, Power: v.Value * i.Value, Voltage: v.Value}, true
		}
	}

	return Battery{}, false
}

// Balance computes the unknown DC system power. It reports false when no
// battery reference resolves. Energy and alarm metrics are not written.
func (e *Engine) Balance() (Update, bool) {
	battery, ok := e.ResolveBattery()
	if !ok {
		return Update{}, false
	}

	b := Breakdown{
		Battery:     battery,
		Solar:       sumCategory(e.reg, telemetry.SolarCharger, DeriveWithLoad).Power,
		ACChargers:  sumCategory(e.reg, telemetry.ACCharger, DerivePower).Power,
		FuelCells:   sumCategory(e.reg, telemetry.FuelCell, DerivePower).Power,
		Alternators: sumCategory(e.reg, telemetry.Alternator, DerivePower).Power,
		DCSources:   sumCategory(e.reg, telemetry.DCSource, DerivePower).Power,
		Converter:   sumCategory(e.reg, telemetry.Converter, DeriveVoltageCurrent).Power,
		DCLoads:     sumCategory(e.reg, telemetry.DCLoad, DerivePower).Power,
	}
	b.Unknown = b.Sources() - battery.Power - b.DCLoads

	return Update{
		Mode: ModeBalance,
		Values: map[Key]telemetry.Reading{
			BusVoltage: telemetry.Some(battery.Voltage),
			BusCurrent: telemetry.Some(busCurrent(b.Unknown, battery.Voltage)),
			BusPower:   telemetry.Some(b.Unknown),
		},
		Breakdown: &b,
	}, true
}

func busCurrent(power, voltage float64) float64 {
	if voltage > 0 {
		return power / voltage
	}

	return 0
}
