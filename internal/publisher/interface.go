// Package publisher exposes bus snapshots to the outside world.
package publisher

import (
	"context"

	"codeberg.org/mutker/dcsystem/internal/balance"
)

// Publisher flushes a snapshot to one output
type Publisher interface {
	Publish(ctx context.Context, s balance.Snapshot) error
	Close() error
}

// Registrar is implemented by publishers that announce the device before
// the first snapshot
type Registrar interface {
	Register(ctx context.Context, id Identity) error
}
