package publisher

import (
	"context"
	"math"
	"net"
	"net/http"
	"time"

	"codeberg.org/mutker/dcsystem/internal/balance"
	"codeberg.org/mutker/dcsystem/internal/errors"
	"codeberg.org/mutker/dcsystem/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace         = "dcsystem"
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

var (
	alarmLabels = map[balance.Key]string{
		balance.AlarmLowVoltage:      "low_voltage",
		balance.AlarmHighVoltage:     "high_voltage",
		balance.AlarmLowTemperature:  "low_temperature",
		balance.AlarmHighTemperature: "high_temperature",
	}
	modes = []balance.Mode{balance.ModeInitial, balance.ModeBalance, balance.ModeFallback}
)

// Prometheus mirrors snapshots into gauges on its own registry
type Prometheus struct {
	registry  *prometheus.Registry
	voltage   prometheus.Gauge
	current   prometheus.Gauge
	power     prometheus.Gauge
	energy    *prometheus.GaugeVec
	alarms    *prometheus.GaugeVec
	mode      *prometheus.GaugeVec
	updated   prometheus.Gauge
	publishes prometheus.Counter

	server *http.Server
	addr   string
	log    logger.Logger
}

func NewPrometheus(log logger.Logger) *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		log:      log,
		voltage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bus_voltage_volts",
			Help:      "DC bus voltage. NaN when no voltage is known.",
		}),
		current: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bus_current_amperes",
			Help:      "Current through the unmetered DC system.",
		}),
		power: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bus_power_watts",
			Help:      "Power through the unmetered DC system.",
		}),
		energy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "energy_kilowatt_hours",
			Help:      "Cumulative energy of DC loads (in) and DC sources (out).",
		}, []string{"direction"}),
		alarms: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alarm_severity",
			Help:      "Alarm severity: 0 ok, 1 warning, 2 alarm.",
		}, []string{"alarm"}),
		mode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mode",
			Help:      "Computation mode of the last snapshot.",
		}, []string{"mode"}),
		updated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_timestamp_seconds",
			Help:      "Time of the last published snapshot.",
		}),
		publishes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Number of published snapshots.",
		}),
	}

	p.registry.MustRegister(
		p.voltage, p.current, p.power, p.energy, p.alarms, p.mode, p.updated, p.publishes,
	)

	return p
}

// Registry exposes the collectors, used by tests and the HTTP handler
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) Publish(_ context.Context, s balance.Snapshot) error {
	p.voltage.Set(s.Get(balance.BusVoltage).Or(math.NaN()))
	p.current.Set(s.Get(balance.BusCurrent).Or(0))
	p.power.Set(s.Get(balance.BusPower).Or(0))
	p.energy.WithLabelValues("in").Set(s.Get(balance.EnergyIn).Or(0))
	p.energy.WithLabelValues("out").Set(s.Get(balance.EnergyOut).Or(0))

	for key, label := range alarmLabels {
		p.alarms.WithLabelValues(label).Set(s.Get(key).Or(0))
	}

	for _, m := range modes {
		v := 0.0
		if m == s.Mode {
			v = 1
		}
		p.mode.WithLabelValues(string(m)).Set(v)
	}

	if !s.Time.IsZero() {
		p.updated.Set(float64(s.Time.UnixMilli()) / 1000)
	}
	p.publishes.Inc()

	return nil
}

// Serve exposes the registry on addr until Close
func (p *Prometheus) Serve(addr string) error {
	errFactory := errors.New()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errFactory.WithData(ErrMetricsServer, struct {
			Addr  string
			Error string
		}{
			Addr:  addr,
			Error: err.Error(),
		})
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())

	p.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()

	p.addr = ln.Addr().String()
	p.log.Info().Str("listen", p.addr).Msg("Serving Prometheus metrics")

	return nil
}

// Addr returns the bound listen address, empty before Serve
func (p *Prometheus) Addr() string {
	return p.addr
}

func (p *Prometheus) Close() error {
	errFactory := errors.New()

	if p.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := p.server.Shutdown(ctx); err != nil {
		return errFactory.Wrap(ErrPublisherClose, err)
	}

	return nil
}
