package balance

import "codeberg.org/mutker/dcsystem/internal/telemetry"

// Derivation selects how a device's power is obtained
type Derivation int

const (
	// DerivePower uses the reported power, else voltage × current
	DerivePower Derivation = iota
	// DeriveWithLoad computes voltage × (current + load current). Solar
	// chargers report their load output separately from the charge current.
	DeriveWithLoad
	// DeriveVoltageCurrent uses voltage × current only. A converter's
	// reported DC power disagrees with V × I, and the battery reference
	// derived from the same converter uses V × I.
	DeriveVoltageCurrent
)

// Total is the aggregate of a category
type Total struct {
	Power   float64
	Current float64
	Devices int
}

// sumCategory adds up a category. Devices without a usable reading
// contribute zero.
func sumCategory(reg telemetry.Registry, category telemetry.Category, rule Derivation) Total {
	var total Total

	for _, id := range reg.Devices(category) {
		total.Devices++

		v := reg.Read(id, telemetry.PathVoltage)
		i := reg.Read(id, telemetry.PathCurrent)

		switch rule {
		case DeriveWithLoad:
			if !v.Valid || !i.Valid {
				continue
			}
			current := i.Value + reg.Read(id, telemetry.PathLoadCurrent).Or(0)
			total.Current += current
			total.Power += v.Value * current
		case DeriveVoltageCurrent:
			if !v.Valid || !i.Valid {
				continue
			}
			total.Current += i.Value
			total.Power += v.Value * i.Value
		default:
			total.Current += i.Or(0)
			total.Power += devicePower(reg.Read(id, telemetry.PathPower), v, i).Or(0)
		}
	}

	return total
}

// devicePower returns p, or v × i when p is absent and both are known
func devicePower(p, v, i telemetry.Reading) telemetry.Reading {
	if p.Valid {
		return p
	}
	if v.Valid && i.Valid {
		return telemetry.Some(v.Value * i.Value)
	}

	return telemetry.None()
}

// SumPresent adds the present values. The result is absent only if every
// value was absent, so "nothing reported" stays distinct from zero.
func SumPresent(values ...telemetry.Reading) telemetry.Reading {
	var sum telemetry.Reading
	for _, v := range values {
		if !v.Valid {
			continue
		}
		sum = telemetry.Some(sum.Value + v.Value)
	}

	return sum
}
