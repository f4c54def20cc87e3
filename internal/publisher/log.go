package publisher

import (
	"context"

	"codeberg.org/mutker/dcsystem/internal/balance"
	"codeberg.org/mutker/dcsystem/internal/logger"
	"codeberg.org/mutker/dcsystem/internal/telemetry"
)

// Log writes snapshots to the service log. Every snapshot is logged at debug
// level; at info level only mode changes are.
type Log struct {
	log      logger.Logger
	lastMode balance.Mode
}

func NewLog(log logger.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Publish(_ context.Context, s balance.Snapshot) error {
	if s.Mode != l.lastMode {
		l.log.Info().
			Str("mode", string(s.Mode)).
			Str("previous_mode", string(l.lastMode)).
			Msg("Computation mode changed")
		l.lastMode = s.Mode
	}

	event := l.log.Debug().Str("mode", string(s.Mode))
	s.Each(func(m balance.Metric, r telemetry.Reading) {
		text := m.Text(r)
		if text == "" {
			text = "-"
		}
		event.Str(string(m.Key), text)
	})
	event.Msg("Snapshot published")

	return nil
}

func (*Log) Close() error {
	return nil
}
