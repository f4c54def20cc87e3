package publisher

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"codeberg.org/mutker/dcsystem/internal/balance"
	"codeberg.org/mutker/dcsystem/internal/errors"
	"codeberg.org/mutker/dcsystem/internal/logger"
	"codeberg.org/mutker/dcsystem/internal/telemetry"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client is the part of an MQTT connection the publisher needs
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type payload struct {
	Value any    `json:"value"`
	Text  string `json:"text,omitempty"`
}

// MQTT publishes every metric retained under <topic>/<instance><path>.
// Unchanged values are not republished until Reset.
type MQTT struct {
	client  Client
	prefix  string
	timeout time.Duration
	log     logger.Logger

	mu       sync.Mutex
	last     map[string]string
	identity *Identity
	resend   bool
}

func NewMQTT(client Client, topic string, instance int, timeout time.Duration, log logger.Logger) *MQTT {
	return &MQTT{
		client:  client,
		prefix:  topic + "/" + strconv.Itoa(instance),
		timeout: timeout,
		log:     log,
		last:    make(map[string]string),
	}
}

// Register publishes the identity paths
func (m *MQTT) Register(ctx context.Context, id Identity) error {
	errFactory := errors.New()

	if err := m.sendIdentity(ctx, id); err != nil {
		return errFactory.Wrap(ErrRegister, err)
	}

	m.mu.Lock()
	m.identity = &id
	m.mu.Unlock()

	m.log.Info().
		Str("topic", m.prefix).
		Int("device_instance", id.DeviceInstance).
		Str("custom_name", id.CustomName).
		Msg("Device registered")

	return nil
}

// Reset forgets what the broker holds, for use after a reconnect: a
// restarted broker may have lost its retained values. The next Publish
// resends the identity and every metric.
func (m *MQTT) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.last = make(map[string]string)
	m.resend = m.identity != nil
}

func (m *MQTT) Publish(ctx context.Context, s balance.Snapshot) error {
	errFactory := errors.New()

	m.mu.Lock()
	id, resend := m.identity, m.resend
	m.resend = false
	m.mu.Unlock()

	if resend {
		if err := m.sendIdentity(ctx, *id); err != nil {
			m.mu.Lock()
			m.resend = true
			m.mu.Unlock()
			return errFactory.Wrap(ErrRegister, err)
		}
		m.log.Info().Str("topic", m.prefix).Msg("Device identity republished")
	}

	var failed []string
	s.Each(func(metric balance.Metric, r telemetry.Reading) {
		if err := m.send(ctx, string(metric.Path), encodeReading(metric, r)); err != nil {
			failed = append(failed, string(metric.Path))
		}
	})

	if len(failed) > 0 {
		return errFactory.WithData(ErrPublish, struct {
			Output string
			Paths  []string
		}{
			Output: "mqtt",
			Paths:  failed,
		})
	}

	return nil
}

// Close marks the device disconnected
func (m *MQTT) Close() error {
	errFactory := errors.New()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if err := m.send(ctx, "/Connected", payload{Value: 0}); err != nil {
		return errFactory.Wrap(ErrPublisherClose, err)
	}

	return nil
}

func (m *MQTT) sendIdentity(ctx context.Context, id Identity) error {
	for _, v := range id.values() {
		if err := m.send(ctx, v.path, payload{Value: v.value}); err != nil {
			return err
		}
	}

	return nil
}

func (m *MQTT) send(ctx context.Context, path string, p payload) error {
	errFactory := errors.New()

	data, err := json.Marshal(p)
	if err != nil {
		return errFactory.Wrap(ErrEncodePayload, err)
	}

	topic := m.prefix + path

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.last[topic]; ok && prev == string(data) {
		return nil
	}

	token := m.client.Publish(topic, 0, true, data)

	select {
	case <-ctx.Done():
		return errFactory.Wrap(errors.ErrTimeout, ctx.Err())
	default:
	}

	if !token.WaitTimeout(m.timeout) {
		return errFactory.WithData(errors.ErrTimeout, topic)
	}
	if err := token.Error(); err != nil {
		m.log.Debug().Err(err).Str("topic", topic).Msg("Publish failed")
		return errFactory.Wrap(ErrPublish, err)
	}

	m.last[topic] = string(data)

	return nil
}

func encodeReading(metric balance.Metric, r telemetry.Reading) payload {
	if !r.Valid {
		return payload{Value: nil}
	}
	if metric.IsAlarm() {
		return payload{Value: int(r.Value), Text: metric.Text(r)}
	}

	return payload{Value: r.Value, Text: metric.Text(r)}
}
