package balance

import (
	"sync"
	"time"

	"codeberg.org/mutker/dcsystem/internal/telemetry"
)

// Mode tells which path produced a snapshot
type Mode string

const (
	ModeInitial  Mode = "initial"
	ModeBalance  Mode = "balance"
	ModeFallback Mode = "fallback"
)

// Update is the result of one compute cycle. Values holds only the metrics
// the cycle wrote.
type Update struct {
	Mode      Mode
	Values    map[Key]telemetry.Reading
	Breakdown *Breakdown
}

// Snapshot is an immutable view of every output metric
type Snapshot struct {
	Mode   Mode
	Time   time.Time
	values map[Key]telemetry.Reading
}

// InitialSnapshot holds the defaults registered at startup: zero for
// measurements and OK for alarms.
func InitialSnapshot() Snapshot {
	values := make(map[Key]telemetry.Reading, len(Metrics))
	for _, m := range Metrics {
		values[m.Key] = telemetry.Some(0)
	}

	return Snapshot{Mode: ModeInitial, values: values}
}

// Get returns the value of a metric
func (s Snapshot) Get(key Key) telemetry.Reading {
	return s.values[key]
}

// Each visits every metric in catalogue order
func (s Snapshot) Each(fn func(m Metric, r telemetry.Reading)) {
	for _, m := range Metrics {
		fn(m, s.values[m.Key])
	}
}

// apply returns a copy of s with the update's values laid over it
func (s Snapshot) apply(u Update, now time.Time) Snapshot {
	values := make(map[Key]telemetry.Reading, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}
	for k, v := range u.Values {
		values[k] = v
	}

	return Snapshot{Mode: u.Mode, Time: now, values: values}
}

// Store hands the latest snapshot from the compute step to the publish step.
// Readers always see a complete snapshot from a finished cycle.
type Store struct {
	mu      sync.RWMutex
	current Snapshot
}

func NewStore() *Store {
	return &Store{current: InitialSnapshot()}
}

// Apply installs the result of a compute cycle and returns the new snapshot
func (s *Store) Apply(u Update, now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = s.current.apply(u, now)

	return s.current
}

// Snapshot returns the latest snapshot
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.current
}
