package venus

import (
	"strings"

	"codeberg.org/mutker/dcsystem/internal/errors"
	"codeberg.org/mutker/dcsystem/internal/telemetry"
)

// serviceCategories maps Venus OS service types onto device categories
var serviceCategories = map[string]telemetry.Category{
	"battery":      telemetry.Battery,
	"vebus":        telemetry.Converter,
	"solarcharger": telemetry.SolarCharger,
	"charger":      telemetry.ACCharger,
	"fuelcell":     telemetry.FuelCell,
	"alternator":   telemetry.Alternator,
	"dcsource":     telemetry.DCSource,
	"dcload":       telemetry.DCLoad,
}

// Topic is a parsed notification topic N/<portal>/<service>/<instance>/<path>
type Topic struct {
	Portal   string
	Service  string
	Instance string
	Path     telemetry.Path
}

// ParseTopic splits a notification topic
func ParseTopic(topic string) (Topic, error) {
	errFactory := errors.New()

	parts := strings.SplitN(topic, "/", 5)
	if len(parts) != 5 || parts[0] != "N" {
		return Topic{}, errFactory.WithData(ErrInvalidTopic, topic)
	}
	for _, p := range parts[1:] {
		if p == "" {
			return Topic{}, errFactory.WithData(ErrInvalidTopic, topic)
		}
	}

	return Topic{
		Portal:   parts[1],
		Service:  parts[2],
		Instance: parts[3],
		Path:     telemetry.Path("/" + parts[4]),
	}, nil
}

// Category returns the device category of the topic's service type
func (t Topic) Category() (telemetry.Category, bool) {
	c, ok := serviceCategories[t.Service]
	return c, ok
}

// DeviceID identifies the publishing device, e.g. "battery/256"
func (t Topic) DeviceID() telemetry.DeviceID {
	return telemetry.DeviceID(t.Service + "/" + t.Instance)
}

func notificationFilter(portal, service string) string {
	return "N/" + portal + "/" + service + "/+/#"
}

func keepaliveTopic(portal string) string {
	return "R/" + portal + "/keepalive"
}
