// Package service runs the compute and publish timers.
package service

import (
	"context"
	"time"

	"codeberg.org/mutker/dcsystem/internal/balance"
	"codeberg.org/mutker/dcsystem/internal/errors"
	"codeberg.org/mutker/dcsystem/internal/logger"
	"codeberg.org/mutker/dcsystem/internal/publisher"
	"github.com/benbjohnson/clock"
)

// Computer produces one cycle's update
type Computer interface {
	Compute() balance.Update
}

type Config struct {
	ComputeInterval time.Duration
	PublishInterval time.Duration
	Identity        publisher.Identity
	// Clock drives both timers and stamps snapshots. Nil means wall time.
	Clock clock.Clock
}

type Service struct {
	cfg       Config
	engine    Computer
	store     *balance.Store
	publisher publisher.Publisher
	log       logger.Logger
	clock     clock.Clock
}

func New(cfg Config, engine Computer, store *balance.Store, pub publisher.Publisher, log logger.Logger) *Service {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Service{
		cfg:       cfg,
		engine:    engine,
		store:     store,
		publisher: pub,
		log:       log,
		clock:     clk,
	}
}

// Run registers the device, then computes and publishes on independent
// timers until ctx is cancelled. Publish failures are logged and the loop
// continues.
func (s *Service) Run(ctx context.Context) error {
	errFactory := errors.New()

	if s.cfg.ComputeInterval <= 0 || s.cfg.PublishInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, struct {
			Compute time.Duration
			Publish time.Duration
		}{
			Compute: s.cfg.ComputeInterval,
			Publish: s.cfg.PublishInterval,
		})
	}

	if r, ok := s.publisher.(publisher.Registrar); ok {
		if err := r.Register(ctx, s.cfg.Identity); err != nil {
			return errFactory.Wrap(errors.ErrRegisterDevice, err)
		}
	}

	computeTicker := s.clock.Ticker(s.cfg.ComputeInterval)
	defer computeTicker.Stop()
	publishTicker := s.clock.Ticker(s.cfg.PublishInterval)
	defer publishTicker.Stop()

	s.log.Info().
		Dur("compute_interval", s.cfg.ComputeInterval).
		Dur("publish_interval", s.cfg.PublishInterval).
		Msg("Service started")

	s.compute()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-computeTicker.C:
			s.compute()
		case <-publishTicker.C:
			s.publish(ctx)
		}
	}
}

func (s *Service) compute() {
	u := s.engine.Compute()
	snap := s.store.Apply(u, s.clock.Now())

	if u.Breakdown != nil {
		logBreakdown(s.log, u.Breakdown, snap)
	}
}

func (s *Service) publish(ctx context.Context) {
	err := s.publisher.Publish(ctx, s.store.Snapshot())
	if err == nil {
		return
	}

	var appErr errors.Error
	if errors.As(err, &appErr) {
		s.log.ErrorWithCode(appErr).Msg("Publish failed")
		return
	}
	s.log.Error().Err(err).Msg("Publish failed")
}

func logBreakdown(log logger.Logger, b *balance.Breakdown, snap balance.Snapshot) {
	log.Debug().
		Str("battery", string(b.Battery.Device)).
		Str("reference", string(b.Battery.Source)).
		Float64("battery_power", b.Battery.Power).
		Float64("battery_voltage", b.Battery.Voltage).
		Float64("solar", b.Solar).
		Float64("ac_chargers", b.ACChargers).
		Float64("fuel_cells", b.FuelCells).
		Float64("alternators", b.Alternators).
		Float64("dc_sources", b.DCSources).
		Float64("converter", b.Converter).
		Float64("dc_loads", b.DCLoads).
		Float64("unknown", b.Unknown).
		Float64("bus_current", snap.Get(balance.BusCurrent).Or(0)).
		Msg("Balance")
}
