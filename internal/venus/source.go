// Package venus feeds the telemetry cache from the MQTT broker of a Venus OS
// device.
package venus

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/dcsystem/internal/errors"
	"codeberg.org/mutker/dcsystem/internal/logger"
	"codeberg.org/mutker/dcsystem/internal/telemetry"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	discoveryFilter   = "N/+/system/0/Serial"
	disconnectQuiesce = 250 // milliseconds
)

// trackedPaths are the device paths the balance engine reads
var trackedPaths = map[telemetry.Path]bool{
	telemetry.PathVoltage:         true,
	telemetry.PathCurrent:         true,
	telemetry.PathPower:           true,
	telemetry.PathLoadCurrent:     true,
	telemetry.PathEnergyIn:        true,
	telemetry.PathEnergyOut:       true,
	telemetry.PathLowVoltage:      true,
	telemetry.PathHighVoltage:     true,
	telemetry.PathLowTemperature:  true,
	telemetry.PathHighTemperature: true,
}

type Config struct {
	Broker    string
	ClientID  string
	User      string
	Password  string
	PortalID  string
	Keepalive time.Duration
	Timeout   time.Duration
}

// Source subscribes to device notifications and writes them into a cache
type Source struct {
	cfg    Config
	cache  *telemetry.Cache
	log    logger.Logger
	client mqtt.Client

	mu      sync.RWMutex
	portal  string
	onReady []func()

	done chan struct{}
	wg   sync.WaitGroup
}

func NewSource(cfg Config, cache *telemetry.Cache, log logger.Logger) *Source {
	s := &Source{
		cfg:    cfg,
		cache:  cache,
		log:    log,
		portal: cfg.PortalID,
		done:   make(chan struct{}),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.User).
		SetPassword(cfg.Password).
		SetConnectTimeout(cfg.Timeout).
		SetAutoReconnect(true).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Msg("MQTT connection lost")
		})

	s.client = mqtt.NewClient(opts)

	return s
}

// Client exposes the shared connection for publishers
func (s *Source) Client() mqtt.Client {
	return s.client
}

// OnConnect registers fn to run after every connect and reconnect, once
// subscriptions are restored
func (s *Source) OnConnect(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onReady = append(s.onReady, fn)
}

// Portal returns the portal id, empty until known
func (s *Source) Portal() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.portal
}

// Start connects, resolves the portal id and subscribes to every device
// service. The keepalive loop runs until Close or ctx is cancelled.
func (s *Source) Start(ctx context.Context) error {
	errFactory := errors.New()

	if err := waitToken(s.client.Connect(), s.cfg.Timeout); err != nil {
		return errFactory.Wrap(ErrConnect, err)
	}

	s.log.Info().Str("broker", s.cfg.Broker).Msg("Connected to MQTT broker")

	if s.Portal() == "" {
		portal, err := s.discoverPortal(ctx)
		if err != nil {
			return err
		}

		s.mu.Lock()
		s.portal = portal
		s.mu.Unlock()

		s.log.Info().Str("portal_id", portal).Msg("Discovered portal id")
	}

	if err := s.subscribe(); err != nil {
		return err
	}

	if err := s.keepalive(); err != nil {
		s.log.Warn().Err(err).Msg("Initial keepalive failed")
	}

	s.wg.Add(1)
	go s.keepaliveLoop(ctx)

	return nil
}

// Close stops the keepalive loop and disconnects
func (s *Source) Close() {
	select {
	case <-s.done:
		return
	default:
		close(s.done)
	}

	s.wg.Wait()
	s.client.Disconnect(disconnectQuiesce)
	s.log.Debug().Msg("MQTT source closed")
}

func (s *Source) onConnect(_ mqtt.Client) {
	// Subscriptions do not survive a reconnect with a clean session
	if s.Portal() != "" {
		if err := s.subscribe(); err != nil {
			s.log.Error().Err(err).Msg("Failed to resubscribe after reconnect")
		}
	}

	s.mu.RLock()
	hooks := append([]func(){}, s.onReady...)
	s.mu.RUnlock()

	for _, fn := range hooks {
		fn()
	}
}

func (s *Source) subscribe() error {
	errFactory := errors.New()
	portal := s.Portal()

	filters := make(map[string]byte, len(serviceCategories))
	for service := range serviceCategories {
		filters[notificationFilter(portal, service)] = 0
	}

	if err := waitToken(s.client.SubscribeMultiple(filters, s.handleMessage), s.cfg.Timeout); err != nil {
		return errFactory.WithData(ErrSubscribe, struct {
			Portal string
			Error  string
		}{
			Portal: portal,
			Error:  err.Error(),
		})
	}

	s.log.Debug().
		Str("portal_id", portal).
		Int("filters", len(filters)).
		Msg("Subscribed to device notifications")

	return nil
}

func (s *Source) discoverPortal(ctx context.Context) (string, error) {
	errFactory := errors.New()

	found := make(chan string, 1)
	token := s.client.Subscribe(discoveryFilter, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if portal, ok := portalFromSerial(msg.Topic()); ok {
			select {
			case found <- portal:
			default:
			}
		}
	})
	if err := waitToken(token, s.cfg.Timeout); err != nil {
		return "", errFactory.Wrap(ErrDiscovery, err)
	}
	defer s.client.Unsubscribe(discoveryFilter)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	select {
	case portal := <-found:
		return portal, nil
	case <-ctx.Done():
		return "", errFactory.Wrap(ErrDiscovery, ctx.Err())
	}
}

func (s *Source) keepaliveLoop(ctx context.Context) {
	defer s.wg.Done()

	if s.cfg.Keepalive <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.Keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.keepalive(); err != nil {
				s.log.Warn().Err(err).Msg("Keepalive failed")
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// keepalive asks the broker to keep publishing notifications
func (s *Source) keepalive() error {
	errFactory := errors.New()

	if err := waitToken(s.client.Publish(keepaliveTopic(s.Portal()), 0, false, ""), s.cfg.Timeout); err != nil {
		return errFactory.Wrap(ErrKeepalive, err)
	}

	return nil
}

func (s *Source) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	topic, err := ParseTopic(msg.Topic())
	if err != nil {
		s.log.Debug().Err(err).Msg("Ignoring message")
		return
	}

	category, ok := topic.Category()
	if !ok || !trackedPaths[topic.Path] {
		return
	}

	id := topic.DeviceID()

	value, ok, err := decodeValue(msg.Payload())
	if err != nil {
		s.log.Debug().
			Err(err).
			Str("topic", msg.Topic()).
			Msg("Discarding non-numeric value")
	}
	if !ok {
		s.cache.Clear(id, topic.Path)
		return
	}

	s.cache.Set(category, id, topic.Path, value)
}

// decodeValue reads a {"value": x} payload. An empty payload or a null
// value means the path is gone.
func decodeValue(payload []byte) (float64, bool, error) {
	errFactory := errors.New()

	if len(payload) == 0 {
		return 0, false, nil
	}

	var msg struct {
		Value any `json:"value"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return 0, false, errFactory.Wrap(ErrInvalidPayload, err)
	}

	switch v := msg.Value.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return v, true, nil
	default:
		return 0, false, errFactory.WithData(ErrInvalidPayload, string(payload))
	}
}

// portalFromSerial extracts the portal id from N/<portal>/system/0/Serial
func portalFromSerial(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != "N" || parts[1] == "" {
		return "", false
	}

	return parts[1], true
}

func waitToken(token mqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return errors.New().New(errors.ErrTimeout)
	}

	return token.Error()
}
