// Package config loads the bridge configuration from YAML.
//
// Values are resolved in order: built-in defaults, the YAML file, then
// AE200_* environment variables (for example AE200_MQTT_PASSWORD). The result
// is validated before it is returned.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Controllers    []ControllerConfig `yaml:"controllers"`
	PollInterval   time.Duration      `yaml:"poll_interval"`
	RequestTimeout time.Duration      `yaml:"request_timeout"`
	MQTT           MQTTConfig         `yaml:"mqtt"`
	Store          StoreConfig        `yaml:"store"`
	InfluxDB       InfluxDBConfig     `yaml:"influxdb"`
	Log            LogConfig          `yaml:"log"`
}

// ControllerConfig names one AE-200 controller. The id is only used to build
// entity ids and storage keys.
type ControllerConfig struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker          string `yaml:"broker"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	ClientID        string `yaml:"client_id"`
	TopicPrefix     string `yaml:"topic_prefix"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
}

// StoreConfig configures the snapshot database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// InfluxDBConfig configures temperature telemetry.
type InfluxDBConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads, overrides and validates the configuration at path.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "ae200-bridge-" + uuid.NewString()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		PollInterval:   30 * time.Second,
		RequestTimeout: 10 * time.Second,
		MQTT: MQTTConfig{
			Broker:          "tcp://127.0.0.1:1883",
			TopicPrefix:     "ae200",
			DiscoveryPrefix: "homeassistant",
		},
		Store: StoreConfig{
			Path: "ae200.db",
		},
		InfluxDB: InfluxDBConfig{
			URL:    "http://127.0.0.1:8086",
			Org:    "home",
			Bucket: "hvac",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// applyEnvOverrides applies AE200_SECTION_KEY environment variables.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("AE200_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("AE200_POLL_INTERVAL: %w", err)
		}
		cfg.PollInterval = d
	}

	// MQTT
	if v := os.Getenv("AE200_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("AE200_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("AE200_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}

	if v := os.Getenv("AE200_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}

	// InfluxDB
	if v := os.Getenv("AE200_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("AE200_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("AE200_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Controllers) == 0 {
		errs = append(errs, "at least one controller is required")
	}
	seen := make(map[string]bool, len(c.Controllers))
	for i, ctrl := range c.Controllers {
		switch {
		case ctrl.ID == "":
			errs = append(errs, fmt.Sprintf("controllers[%d].id is required", i))
		case strings.Contains(ctrl.ID, "/"):
			errs = append(errs, fmt.Sprintf("controllers[%d].id must not contain '/'", i))
		case seen[ctrl.ID]:
			errs = append(errs, fmt.Sprintf("controllers[%d].id %q is duplicated", i, ctrl.ID))
		}
		seen[ctrl.ID] = true
		if ctrl.Address == "" {
			errs = append(errs, fmt.Sprintf("controllers[%d].address is required", i))
		}
	}

	if c.PollInterval < time.Second {
		errs = append(errs, "poll_interval must be at least 1s")
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, "request_timeout must not be negative")
	}

	if c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required")
	}
	if c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required")
	}
	if c.MQTT.DiscoveryPrefix == "" {
		errs = append(errs, "mqtt.discovery_prefix is required")
	}

	if c.Store.Path == "" {
		errs = append(errs, "store.path is required")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when enabled")
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
