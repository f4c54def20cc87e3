package telemetry_test

import (
	"sync"
	"testing"

	"codeberg.org/mutker/dcsystem/internal/telemetry"
	"github.com/stretchr/testify/assert"
)

func TestCacheReadAbsent(t *testing.T) {
	c := telemetry.NewCache()

	r := c.Read("battery/256", telemetry.PathVoltage)
	assert.False(t, r.Valid)
	assert.Equal(t, 3.5, r.Or(3.5))
	assert.Empty(t, c.Devices(telemetry.Battery))
}

func TestCacheSetAndRead(t *testing.T) {
	c := telemetry.NewCache()
	c.Set(telemetry.Battery, "battery/256", telemetry.PathVoltage, 12.5)
	c.Set(telemetry.Battery, "battery/256", telemetry.PathPower, 0)

	assert.Equal(t, telemetry.Some(12.5), c.Read("battery/256", telemetry.PathVoltage))
	assert.Equal(t, telemetry.Some(0), c.Read("battery/256", telemetry.PathPower), "zero is a reading")
	assert.False(t, c.Read("battery/256", telemetry.PathCurrent).Valid)
}

func TestCacheDevicesSortedByCategory(t *testing.T) {
	c := telemetry.NewCache()
	c.Set(telemetry.SolarCharger, "solarcharger/279", telemetry.PathVoltage, 13)
	c.Set(telemetry.SolarCharger, "solarcharger/278", telemetry.PathVoltage, 13)
	c.Set(telemetry.DCLoad, "dcload/1", telemetry.PathPower, 10)

	assert.Equal(t,
		[]telemetry.DeviceID{"solarcharger/278", "solarcharger/279"},
		c.Devices(telemetry.SolarCharger))
	assert.Equal(t, []telemetry.DeviceID{"dcload/1"}, c.Devices(telemetry.DCLoad))
	assert.Equal(t, 3, c.Len())
}

func TestCacheClearAndRemove(t *testing.T) {
	c := telemetry.NewCache()
	c.Set(telemetry.DCLoad, "dcload/1", telemetry.PathPower, 10)
	c.Set(telemetry.DCLoad, "dcload/1", telemetry.PathVoltage, 12)

	c.Clear("dcload/1", telemetry.PathPower)
	assert.False(t, c.Read("dcload/1", telemetry.PathPower).Valid)
	assert.True(t, c.Read("dcload/1", telemetry.PathVoltage).Valid)
	assert.Len(t, c.Devices(telemetry.DCLoad), 1)

	c.Remove("dcload/1")
	assert.Empty(t, c.Devices(telemetry.DCLoad))
	assert.False(t, c.Read("dcload/1", telemetry.PathVoltage).Valid)
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := telemetry.NewCache()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set(telemetry.DCLoad, "dcload/1", telemetry.PathPower, float64(n*j))
				_ = c.Read("dcload/1", telemetry.PathPower)
				_ = c.Devices(telemetry.DCLoad)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, c.Len())
}

func TestReadingHelpers(t *testing.T) {
	assert.Equal(t, telemetry.Some(-4), telemetry.Some(4).Neg())
	assert.Equal(t, telemetry.None(), telemetry.None().Neg())
	assert.Equal(t, 0.0, telemetry.None().Or(0))
}
