package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/dcsystem/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix       = "DCSYSTEM"
	DefaultConfigName      = "dcsystem"
	DefaultComputeInterval = 200 * time.Millisecond
	DefaultPublishInterval = time.Second
	DefaultLogLevel        = string(LogLevelInfo)
	DefaultDeviceInstance  = 1024
	DefaultBroker          = "tcp://localhost:1883"
	DefaultClientID        = "dcsystem"
	DefaultTopic           = "dcsystem"
	DefaultKeepalive       = 30 * time.Second
	DefaultTimeout         = 10 * time.Second
	DefaultHistoryDBPath   = "/var/lib/dcsystem/history.db"
	DefaultBatchSize       = 60
	DefaultBatchTimeout    = 30 * time.Second
)

type Config struct {
	ComputeInterval time.Duration `mapstructure:"compute_interval"`
	PublishInterval time.Duration `mapstructure:"publish_interval"`
	LogLevel        string        `mapstructure:"log_level"`
	DeviceInstance  int           `mapstructure:"device_instance"`
	CustomName      string        `mapstructure:"custom_name"`
	MQTT            MQTTConfig    `mapstructure:"mqtt"`
	Metrics         MetricsConfig `mapstructure:"metrics"`
	History         HistoryConfig `mapstructure:"history"`
	ShowVersion     bool          `mapstructure:"-"`
}

// MQTTConfig configures the connection to the Venus OS broker
type MQTTConfig struct {
	Broker    string        `mapstructure:"broker"`
	ClientID  string        `mapstructure:"client_id"`
	User      string        `mapstructure:"user"`
	Password  string        `mapstructure:"password"`
	PortalID  string        `mapstructure:"portal_id"`
	Topic     string        `mapstructure:"topic"`
	Keepalive time.Duration `mapstructure:"keepalive"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Listen
// address disables it.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

type HistoryConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	DBPath       string        `mapstructure:"db_path"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// flag name -> config key
var flagKeys = map[string]string{
	"compute-interval": "compute_interval",
	"publish-interval": "publish_interval",
	"log-level":        "log_level",
	"device-instance":  "device_instance",
	"custom-name":      "custom_name",
	"mqtt-broker":      "mqtt.broker",
	"mqtt-client-id":   "mqtt.client_id",
	"mqtt-topic":       "mqtt.topic",
	"portal-id":        "mqtt.portal_id",
	"metrics-listen":   "metrics.listen",
	"history":          "history.enabled",
	"history-db":       "history.db_path",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("compute_interval", DefaultComputeInterval)
	v.SetDefault("publish_interval", DefaultPublishInterval)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("device_instance", DefaultDeviceInstance)
	v.SetDefault("custom_name", "")
	v.SetDefault("mqtt.broker", DefaultBroker)
	v.SetDefault("mqtt.client_id", DefaultClientID)
	v.SetDefault("mqtt.user", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.portal_id", "")
	v.SetDefault("mqtt.topic", DefaultTopic)
	v.SetDefault("mqtt.keepalive", DefaultKeepalive)
	v.SetDefault("mqtt.timeout", DefaultTimeout)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.db_path", DefaultHistoryDBPath)
	v.SetDefault("history.batch_size", DefaultBatchSize)
	v.SetDefault("history.batch_timeout", DefaultBatchTimeout)
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("dcsystem", pflag.ContinueOnError)

	fs.String("config", "", "Path to the configuration file")
	fs.Bool("version", false, "Print version and exit")
	fs.Duration("compute-interval", DefaultComputeInterval, "Interval between balance computations")
	fs.Duration("publish-interval", DefaultPublishInterval, "Interval between snapshot publications")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Int("device-instance", DefaultDeviceInstance, "Device instance announced to consumers")
	fs.String("custom-name", "", "Custom display name")
	fs.String("mqtt-broker", DefaultBroker, "MQTT broker URL")
	fs.String("mqtt-client-id", DefaultClientID, "MQTT client id")
	fs.String("mqtt-topic", DefaultTopic, "Topic root for published values")
	fs.String("portal-id", "", "Venus OS portal id (discovered when empty)")
	fs.String("metrics-listen", "", "Prometheus listen address, e.g. :9102")
	fs.Bool("history", false, "Record published snapshots to SQLite")
	fs.String("history-db", DefaultHistoryDBPath, "Path to the history database")

	return fs
}

// Load reads configuration from flags, environment and the config file,
// in that order of precedence, and validates it.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrParseFlags, err)
	}

	v := viper.New()
	setDefaults(v)

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := o.configPath
	if path, _ := fs.GetString("config"); path != "" {
		configPath = path
	}
	if configPath == "" {
		configPath = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	config.ShowVersion, _ = fs.GetBool("version")

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func readConfigFile(v *viper.Viper, path string) error {
	errFactory := errors.New()

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return errFactory.Wrap(errors.ErrReadConfig, err)
	}

	return nil
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.ComputeInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, "compute_interval="+c.ComputeInterval.String())
	}
	if c.PublishInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, "publish_interval="+c.PublishInterval.String())
	}
	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.MQTT.Broker == "" {
		return errFactory.WithMessage(errors.ErrMissingConfig, "mqtt.broker is required")
	}
	if c.History.Enabled && c.History.DBPath == "" {
		return errFactory.WithMessage(errors.ErrMissingConfig, "history.db_path is required when history is enabled")
	}

	return nil
}
