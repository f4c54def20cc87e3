package history

import (
	"context"
	"time"

	"codeberg.org/mutker/dcsystem/internal/balance"
	"codeberg.org/mutker/dcsystem/internal/telemetry"
)

// Collector defines the core domain interface
type Collector interface {
	Record(ctx context.Context, record *Record) error
	Close() error
}

// Repository defines the interface for history data storage
type Repository interface {
	Record(record *Record) error
	Close() error
}

// Record is one archived bus snapshot
type Record struct {
	Timestamp time.Time
	Mode      balance.Mode
	Bus       BusValues
	Energy    EnergyValues
	Alarms    balance.Alarms
}

// BusValues holds the electrical measurements. Voltage is absent when the
// fallback path found no usable reading.
type BusValues struct {
	Voltage telemetry.Reading
	Current float64
	Power   float64
}

type EnergyValues struct {
	In  float64
	Out float64
}

// FromSnapshot converts a published snapshot into a record
func FromSnapshot(s balance.Snapshot) *Record {
	return &Record{
		Timestamp: s.Time,
		Mode:      s.Mode,
		Bus: BusValues{
			Voltage: s.Get(balance.BusVoltage),
			Current: s.Get(balance.BusCurrent).Or(0),
			Power:   s.Get(balance.BusPower).Or(0),
		},
		Energy: EnergyValues{
			In:  s.Get(balance.EnergyIn).Or(0),
			Out: s.Get(balance.EnergyOut).Or(0),
		},
		Alarms: balance.Alarms{
			LowVoltage:      balance.Severity(s.Get(balance.AlarmLowVoltage).Or(0)),
			HighVoltage:     balance.Severity(s.Get(balance.AlarmHighVoltage).Or(0)),
			LowTemperature:  balance.Severity(s.Get(balance.AlarmLowTemperature).Or(0)),
			HighTemperature: balance.Severity(s.Get(balance.AlarmHighTemperature).Or(0)),
		},
	}
}
