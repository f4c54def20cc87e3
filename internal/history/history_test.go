package history_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/dcsystem/internal/balance"
	"codeberg.org/mutker/dcsystem/internal/errors"
	"codeberg.org/mutker/dcsystem/internal/history"
	"codeberg.org/mutker/dcsystem/internal/logger"
	"codeberg.org/mutker/dcsystem/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) history.Config {
	t.Helper()

	cfg := history.DefaultConfig()
	cfg.Enabled = true
	cfg.DBPath = filepath.Join(t.TempDir(), "data", "history.db")
	cfg.BatchSize = 1
	cfg.BatchTimeout = 0

	return cfg
}

func openDB(t *testing.T, path string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func record(ts time.Time, voltage telemetry.Reading) *history.Record {
	return &history.Record{
		Timestamp: ts,
		Mode:      balance.ModeBalance,
		Bus:       history.BusValues{Voltage: voltage, Current: 9.2, Power: 115},
		Energy:    history.EnergyValues{In: 1.5, Out: 0.25},
		Alarms:    balance.Alarms{HighTemperature: balance.SeverityWarning},
	}
}

func TestNewServiceDisabled(t *testing.T) {
	cfg := history.DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "history.db")

	c, err := history.NewService(cfg, logger.Default())
	require.NoError(t, err)

	require.NoError(t, c.Record(context.Background(), record(time.Now(), telemetry.Some(12))))
	require.NoError(t, c.Close())

	_, err = os.Stat(cfg.DBPath)
	assert.True(t, os.IsNotExist(err), "disabled history must not create a database")
}

func TestConfigValidate(t *testing.T) {
	cfg := history.DefaultConfig()
	cfg.Enabled = true
	cfg.DBPath = ""
	assert.True(t, errors.HasCode(cfg.Validate(), history.ErrInvalidDBPath))

	cfg = history.DefaultConfig()
	cfg.BatchSize = -1
	assert.True(t, errors.HasCode(cfg.Validate(), history.ErrInvalidConfig))

	assert.NoError(t, history.DefaultConfig().Validate())
}

func TestRecordPersistsRows(t *testing.T) {
	cfg := testConfig(t)

	c, err := history.NewService(cfg, logger.Default())
	require.NoError(t, err)

	base := time.UnixMilli(1_700_000_000_000)
	ctx := context.Background()
	require.NoError(t, c.Record(ctx, record(base, telemetry.Some(12.5))))
	require.NoError(t, c.Record(ctx, record(base.Add(time.Second), telemetry.None())))
	require.NoError(t, c.Close())

	db := openDB(t, cfg.DBPath)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM bus_history").Scan(&count))
	assert.Equal(t, 2, count)

	var (
		mode    string
		voltage sql.NullFloat64
		power   float64
		alarm   int
	)
	err = db.QueryRow(`SELECT mode, voltage, power, alarm_high_temperature
		FROM bus_history WHERE timestamp = ?`, base.UnixMilli()).
		Scan(&mode, &voltage, &power, &alarm)
	require.NoError(t, err)
	assert.Equal(t, "balance", mode)
	assert.True(t, voltage.Valid)
	assert.InDelta(t, 12.5, voltage.Float64, 1e-9)
	assert.InDelta(t, 115.0, power, 1e-9)
	assert.Equal(t, int(balance.SeverityWarning), alarm)

	err = db.QueryRow("SELECT voltage FROM bus_history WHERE timestamp = ?",
		base.Add(time.Second).UnixMilli()).Scan(&voltage)
	require.NoError(t, err)
	assert.False(t, voltage.Valid, "absent voltage is stored as NULL")
}

func TestBatchedRecordsFlushOnClose(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 100
	cfg.BatchTimeout = time.Hour

	c, err := history.NewService(cfg, logger.Default())
	require.NoError(t, err)

	base := time.UnixMilli(1_700_000_000_000)
	for i := 0; i < 5; i++ {
		require.NoError(t, c.Record(context.Background(),
			record(base.Add(time.Duration(i)*time.Second), telemetry.Some(12))))
	}
	require.NoError(t, c.Close())

	var count int
	require.NoError(t, openDB(t, cfg.DBPath).QueryRow("SELECT COUNT(*) FROM bus_history").Scan(&count))
	assert.Equal(t, 5, count)
}

func TestRecordRejectsNilAndCancelled(t *testing.T) {
	c, err := history.NewService(testConfig(t), logger.Default())
	require.NoError(t, err)
	defer c.Close()

	err = c.Record(context.Background(), nil)
	assert.True(t, errors.HasCode(err, history.ErrInvalidRecord))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = c.Record(ctx, record(time.Now(), telemetry.Some(12)))
	assert.True(t, errors.HasCode(err, history.ErrOperationTimeout))
}

func TestSchemaMigrationCreatesBackup(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755))

	db := openDB(t, cfg.DBPath)
	_, err := db.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions (version, applied_at) VALUES (99, datetime('now'));`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	c, err := history.NewService(cfg, logger.Default())
	require.NoError(t, err)
	require.NoError(t, c.Close())

	backups, err := filepath.Glob(filepath.Join(filepath.Dir(cfg.DBPath), "backups", "history_v99_*.db"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	version, err := history.GetSchemaVersion(openDB(t, cfg.DBPath))
	require.NoError(t, err)
	assert.Equal(t, history.SchemaVersion, version)
}

func TestFromSnapshot(t *testing.T) {
	store := balance.NewStore()
	now := time.UnixMilli(1_700_000_000_000)
	snap := store.Apply(balance.Update{
		Mode: balance.ModeFallback,
		Values: map[balance.Key]telemetry.Reading{
			balance.BusVoltage:      telemetry.None(),
			balance.BusPower:        telemetry.Some(-20),
			balance.EnergyIn:        telemetry.Some(3),
			balance.AlarmLowVoltage: telemetry.Some(float64(balance.SeverityAlarm)),
		},
	}, now)

	r := history.FromSnapshot(snap)
	assert.Equal(t, now, r.Timestamp)
	assert.Equal(t, balance.ModeFallback, r.Mode)
	assert.False(t, r.Bus.Voltage.Valid)
	assert.InDelta(t, -20.0, r.Bus.Power, 1e-9)
	assert.InDelta(t, 0.0, r.Bus.Current, 1e-9)
	assert.InDelta(t, 3.0, r.Energy.In, 1e-9)
	assert.Equal(t, balance.SeverityAlarm, r.Alarms.LowVoltage)
	assert.Equal(t, balance.SeverityOK, r.Alarms.HighVoltage)
}
