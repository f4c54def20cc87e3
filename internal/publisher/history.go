package publisher

import (
	"context"

	"codeberg.org/mutker/dcsystem/internal/balance"
	"codeberg.org/mutker/dcsystem/internal/errors"
	"codeberg.org/mutker/dcsystem/internal/history"
)

// History archives every published snapshot
type History struct {
	collector history.Collector
}

func NewHistory(collector history.Collector) *History {
	return &History{collector: collector}
}

func (h *History) Publish(ctx context.Context, s balance.Snapshot) error {
	errFactory := errors.New()

	if err := h.collector.Record(ctx, history.FromSnapshot(s)); err != nil {
		return errFactory.Wrap(ErrPublish, err)
	}

	return nil
}

func (h *History) Close() error {
	return h.collector.Close()
}
