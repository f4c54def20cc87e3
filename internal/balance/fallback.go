package balance

import "codeberg.org/mutker/dcsystem/internal/telemetry"

// VoltageDeadband is the lowest voltage accepted into the fallback average
const VoltageDeadband = 1.0

type fallbackAccumulator struct {
	current    telemetry.Reading
	power      telemetry.Reading
	voltageSum float64
	voltageN   int
	energyIn   float64
	energyOut  float64
	alarms     Alarms
}

// add folds one device. Sources are negated: from the bus they are negative
// consumption.
func (acc *fallbackAccumulator) add(reg telemetry.Registry, id telemetry.DeviceID, negate bool) {
	v := reg.Read(id, telemetry.PathVoltage)
	i := reg.Read(id, telemetry.PathCurrent)
	p := devicePower(reg.Read(id, telemetry.PathPower), v, i)

	if negate {
		i = i.Neg()
		p = p.Neg()
	}

	acc.current = SumPresent(acc.current, i)
	acc.power = SumPresent(acc.power, p)

	if v.Valid && v.Value > VoltageDeadband {
		acc.voltageSum += v.Value
		acc.voltageN++
	}

	acc.alarms.Observe(reg, id)
}

func (acc *fallbackAccumulator) voltage() telemetry.Reading {
	if acc.voltageN == 0 {
		return telemetry.None()
	}

	return telemetry.Some(acc.voltageSum / float64(acc.voltageN))
}

// Fallback aggregates the metered DC loads and sources directly. It is used
// when no battery reference is available and writes every output metric.
func (e *Engine) Fallback() Update {
	var acc fallbackAccumulator

	for _, id := range e.reg.Devices(telemetry.DCLoad) {
		acc.add(e.reg, id, false)
		acc.energyIn += e.reg.Read(id, telemetry.PathEnergyIn).Or(0)
	}

	for _, id := range e.reg.Devices(telemetry.DCSource) {
		acc.add(e.reg, id, true)
		acc.energyOut += e.reg.Read(id, telemetry.PathEnergyOut).Or(0)
	}

	return Update{
		Mode: ModeFallback,
		Values: map[Key]telemetry.Reading{
			BusVoltage:           acc.voltage(),
			BusCurrent:           telemetry.Some(acc.current.Or(0)),
			BusPower:             telemetry.Some(acc.power.Or(0)),
			EnergyIn:             telemetry.Some(acc.energyIn),
			EnergyOut:            telemetry.Some(acc.energyOut),
			AlarmLowVoltage:      severity(acc.alarms.LowVoltage),
			AlarmHighVoltage:     severity(acc.alarms.HighVoltage),
			AlarmLowTemperature:  severity(acc.alarms.LowTemperature),
			AlarmHighTemperature: severity(acc.alarms.HighTemperature),
		},
	}
}

func severity(s Severity) telemetry.Reading {
	return telemetry.Some(float64(s))
}
