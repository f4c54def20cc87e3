package publisher

import (
	"context"

	"codeberg.org/mutker/dcsystem/internal/balance"
	"codeberg.org/mutker/dcsystem/internal/errors"
)

// Multi fans a snapshot out to several publishers. A failing publisher does
// not stop the others; the first error is returned.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, s balance.Snapshot) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, s); err != nil && first == nil {
			first = err
		}
	}

	return first
}

// Register announces the identity on every publisher that supports it
func (m Multi) Register(ctx context.Context, id Identity) error {
	errFactory := errors.New()

	for _, p := range m {
		r, ok := p.(Registrar)
		if !ok {
			continue
		}
		if err := r.Register(ctx, id); err != nil {
			return errFactory.Wrap(ErrRegister, err)
		}
	}

	return nil
}

// Close closes publishers in reverse order
func (m Multi) Close() error {
	var first error
	for i := len(m) - 1; i >= 0; i-- {
		if err := m[i].Close(); err != nil && first == nil {
			first = err
		}
	}

	return first
}
