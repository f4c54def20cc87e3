package service_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/dcsystem/internal/balance"
	"codeberg.org/mutker/dcsystem/internal/errors"
	"codeberg.org/mutker/dcsystem/internal/logger"
	"codeberg.org/mutker/dcsystem/internal/publisher"
	"codeberg.org/mutker/dcsystem/internal/service"
	"codeberg.org/mutker/dcsystem/internal/telemetry"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEngine struct {
	mu    sync.Mutex
	calls int
}

func (e *countingEngine) Compute() balance.Update {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls++

	return balance.Update{
		Mode: balance.ModeBalance,
		Values: map[balance.Key]telemetry.Reading{
			balance.BusPower: telemetry.Some(float64(e.calls)),
		},
		Breakdown: &balance.Breakdown{Unknown: float64(e.calls)},
	}
}

func (e *countingEngine) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.calls
}

type fakePublisher struct {
	mu          sync.Mutex
	events      []string
	snapshots   []balance.Snapshot
	err         error
	registerErr error
}

func (p *fakePublisher) Register(_ context.Context, id publisher.Identity) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, "register:"+id.ProductName)

	return p.registerErr
}

func (p *fakePublisher) Publish(_ context.Context, s balance.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, "publish")
	p.snapshots = append(p.snapshots, s)

	return p.err
}

func (*fakePublisher) Close() error { return nil }

func (p *fakePublisher) published() []balance.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]balance.Snapshot(nil), p.snapshots...)
}

const (
	computeEvery = time.Second
	publishEvery = 5 * time.Second
	waitFor      = time.Second
	pollEvery    = time.Millisecond
)

func testConfig() service.Config {
	return service.Config{
		ComputeInterval: computeEvery,
		PublishInterval: publishEvery,
		Identity:        publisher.NewIdentity(1024, "", "dcsystem", "dev"),
	}
}

// start runs the service on a mock clock and returns a stop function that
// cancels it and checks the exit error. It returns once the initial compute
// cycle has run, so both timers exist.
func start(t *testing.T, engine service.Computer, store *balance.Store, pub *fakePublisher) (*clock.Mock, func()) {
	t.Helper()

	mock := clock.NewMock()
	cfg := testConfig()
	cfg.Clock = mock

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- service.New(cfg, engine, store, pub, logger.Default()).Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return store.Snapshot().Mode != balance.ModeInitial
	}, waitFor, pollEvery)

	return mock, func() {
		cancel()
		require.NoError(t, <-done)
	}
}

// tick advances the clock one compute interval at a time and waits for each
// cycle, so no tick is coalesced.
func tick(t *testing.T, mock *clock.Mock, engine *countingEngine, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		want := engine.count() + 1
		mock.Add(computeEvery)
		require.Eventually(t, func() bool { return engine.count() == want }, waitFor, pollEvery)
	}
}

func TestRunRegistersBeforePublishing(t *testing.T) {
	engine := &countingEngine{}
	pub := &fakePublisher{}
	store := balance.NewStore()

	mock, stop := start(t, engine, store, pub)
	defer stop()

	// One compute on start, nothing published before the first publish tick
	assert.Equal(t, 1, engine.count())
	tick(t, mock, engine, 4)
	assert.Equal(t, 5, engine.count())
	assert.Empty(t, pub.published())

	tick(t, mock, engine, 6)
	assert.Equal(t, 11, engine.count())
	require.Eventually(t, func() bool { return len(pub.published()) == 2 }, waitFor, pollEvery)

	pub.mu.Lock()
	assert.Equal(t, "register:DC System Aggregator", pub.events[0])
	assert.Equal(t, []string{"publish", "publish"}, pub.events[1:])
	pub.mu.Unlock()

	// Every published snapshot comes from a completed cycle
	for _, snap := range pub.published() {
		assert.Equal(t, balance.ModeBalance, snap.Mode)
		assert.True(t, snap.Get(balance.BusPower).Valid)
	}
}

func TestRunStampsSnapshotsWithClock(t *testing.T) {
	engine := &countingEngine{}
	store := balance.NewStore()

	mock, stop := start(t, engine, store, &fakePublisher{})
	defer stop()

	assert.True(t, store.Snapshot().Time.Equal(mock.Now()))

	tick(t, mock, engine, 3)
	require.Eventually(t, func() bool {
		return store.Snapshot().Time.Equal(mock.Now())
	}, waitFor, pollEvery)
	assert.InDelta(t, 4.0, store.Snapshot().Get(balance.BusPower).Value, 1e-9)
}

func TestRunContinuesAfterPublishErrors(t *testing.T) {
	engine := &countingEngine{}
	pub := &fakePublisher{err: errors.New().Wrap(errors.ErrPublish, io.ErrClosedPipe)}

	mock, stop := start(t, engine, balance.NewStore(), pub)
	defer stop()

	tick(t, mock, engine, 15)
	require.Eventually(t, func() bool { return len(pub.published()) == 3 }, waitFor, pollEvery)
	assert.Equal(t, 16, engine.count())
}

func TestRunFailsWhenRegistrationFails(t *testing.T) {
	pub := &fakePublisher{registerErr: io.ErrClosedPipe}

	err := service.New(testConfig(), &countingEngine{}, balance.NewStore(), pub, logger.Default()).
		Run(context.Background())
	assert.True(t, errors.HasCode(err, errors.ErrRegisterDevice))
	assert.Empty(t, pub.published())
}

func TestRunRejectsInvalidIntervals(t *testing.T) {
	cfg := testConfig()
	cfg.ComputeInterval = 0

	err := service.New(cfg, &countingEngine{}, balance.NewStore(), &fakePublisher{}, logger.Default()).
		Run(context.Background())
	assert.True(t, errors.HasCode(err, errors.ErrInvalidInterval))
}

func TestRunWithEngineAndCache(t *testing.T) {
	cache := telemetry.NewCache()
	cache.Set(telemetry.Battery, "battery/256", telemetry.PathPower, -50)
	cache.Set(telemetry.Battery, "battery/256", telemetry.PathVoltage, 12.5)
	cache.Set(telemetry.SolarCharger, "solarcharger/278", telemetry.PathVoltage, 13)
	cache.Set(telemetry.SolarCharger, "solarcharger/278", telemetry.PathCurrent, 5)

	pub := &fakePublisher{}
	store := balance.NewStore()
	mock, stop := start(t, balance.NewEngine(cache), store, pub)

	snap := store.Snapshot()
	assert.Equal(t, balance.ModeBalance, snap.Mode)
	assert.InDelta(t, 115.0, snap.Get(balance.BusPower).Value, 1e-9)
	assert.InDelta(t, 9.2, snap.Get(balance.BusCurrent).Value, 1e-9)
	assert.InDelta(t, 0.0, snap.Get(balance.EnergyIn).Value, 1e-9)

	mock.Add(publishEvery)
	require.Eventually(t, func() bool { return len(pub.published()) == 1 }, waitFor, pollEvery)
	stop()

	assert.InDelta(t, 115.0, pub.published()[0].Get(balance.BusPower).Value, 1e-9)
}
