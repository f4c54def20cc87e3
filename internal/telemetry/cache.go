package telemetry

import (
	"sort"
	"sync"
)

type device struct {
	category Category
	values   map[Path]float64
}

// Cache is an in-memory Registry fed by a telemetry source. It is safe for
// concurrent use: sources write from their own goroutines while the engine
// reads.
type Cache struct {
	mu      sync.RWMutex
	devices map[DeviceID]*device
}

func NewCache() *Cache {
	return &Cache{
		devices: make(map[DeviceID]*device),
	}
}

// Set stores a value, registering the device on first sight
func (c *Cache) Set(category Category, id DeviceID, path Path, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.devices[id]
	if !ok {
		d = &device{category: category, values: make(map[Path]float64)}
		c.devices[id] = d
	}
	d.values[path] = value
}

// Clear forgets a single value. The device stays registered.
func (c *Cache) Clear(id DeviceID, path Path) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d, ok := c.devices[id]; ok {
		delete(d.values, path)
	}
}

// Remove forgets a device and all its values
func (c *Cache) Remove(id DeviceID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.devices, id)
}

func (c *Cache) Devices(category Category) []DeviceID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var ids []DeviceID
	for id, d := range c.devices {
		if d.category == category {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

func (c *Cache) Read(id DeviceID, path Path) Reading {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.devices[id]
	if !ok {
		return None()
	}

	v, ok := d.values[path]
	if !ok {
		return None()
	}

	return Some(v)
}

// Len returns the number of registered devices
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.devices)
}
