package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for packpilot.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	ADB      ADBConfig      `yaml:"adb"`
	Output   OutputConfig   `yaml:"output"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// EngineConfig controls polling, retries and the template store.
type EngineConfig struct {
	// TemplateDir is the directory holding reference images.
	// Keys are paths relative to it without extension (e.g. "social_copy").
	TemplateDir string `yaml:"template_dir"`

	// RetryBudget is the number of full scenario attempts per device (>= 1).
	RetryBudget int `yaml:"retry_budget"`

	// RetryBackoff is the pause between two scenario attempts.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// PollAttempts is the default number of captures per anchor poll.
	PollAttempts int `yaml:"poll_attempts"`

	// PollDelay is the pause between two captures of one poll.
	PollDelay time.Duration `yaml:"poll_delay"`

	// SettleDelay is the pause after every gesture.
	SettleDelay time.Duration `yaml:"settle_delay"`

	// DefaultThreshold applies to template anchors that do not set their own.
	DefaultThreshold float64 `yaml:"default_threshold"`

	// NicknameFile holds one candidate nickname per line.
	NicknameFile string `yaml:"nickname_file"`

	// Scenario is the scenario kind run when none is given on the command line.
	Scenario string `yaml:"scenario"`

	// Pack is the template key of the booster pack picked by pack_open.
	Pack string `yaml:"pack"`
}

// ADBConfig contains device driver settings.
type ADBConfig struct {
	Path          string         `yaml:"path"`
	Superuser     bool           `yaml:"superuser"`
	ManagedServer bool           `yaml:"managed_server"`
	ServerPort    int            `yaml:"server_port"`
	Devices       []DeviceConfig `yaml:"devices"`
}

// DeviceConfig identifies one emulator instance.
// Either Serial or Port must be set; Port implies serial 127.0.0.1:<port>
// and a connect before use.
type DeviceConfig struct {
	Name   string `yaml:"name"`
	Serial string `yaml:"serial"`
	Port   int    `yaml:"port"`
}

// ID returns the adb serial for the device.
func (d DeviceConfig) ID() string {
	if d.Serial != "" {
		return d.Serial
	}
	return "127.0.0.1:" + strconv.Itoa(d.Port)
}

// OutputConfig contains result sink settings.
type OutputConfig struct {
	ResultsFile string `yaml:"results_file"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: PACKPILOT_SECTION_KEY
// For example: PACKPILOT_ADB_PATH, PACKPILOT_ENGINE_RETRY_BUDGET
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			TemplateDir:      "data/images",
			RetryBudget:      3,
			RetryBackoff:     time.Second,
			PollAttempts:     100,
			PollDelay:        100 * time.Millisecond,
			SettleDelay:      100 * time.Millisecond,
			DefaultThreshold: 0.8,
			NicknameFile:     "nickname.txt",
			Scenario:         "pack_gather",
			Pack:             "a21",
		},
		ADB: ADBConfig{
			Path:       "adb",
			ServerPort: 5037,
		},
		Output: OutputConfig{
			ResultsFile: "results.txt",
		},
		Database: DatabaseConfig{
			Path:        "./data/packpilot.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "packpilot",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PACKPILOT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Engine
	if v := os.Getenv("PACKPILOT_ENGINE_TEMPLATE_DIR"); v != "" {
		cfg.Engine.TemplateDir = v
	}
	if v := os.Getenv("PACKPILOT_ENGINE_RETRY_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.RetryBudget = n
		}
	}

	// ADB
	if v := os.Getenv("PACKPILOT_ADB_PATH"); v != "" {
		cfg.ADB.Path = v
	}

	// Database
	if v := os.Getenv("PACKPILOT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("PACKPILOT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PACKPILOT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PACKPILOT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("PACKPILOT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Engine.TemplateDir == "" {
		errs = append(errs, "engine.template_dir is required")
	}
	if c.Engine.RetryBudget < 1 {
		errs = append(errs, "engine.retry_budget must be at least 1")
	}
	if c.Engine.PollAttempts < 1 {
		errs = append(errs, "engine.poll_attempts must be at least 1")
	}
	if c.Engine.PollDelay <= 0 {
		errs = append(errs, "engine.poll_delay must be positive")
	}
	if c.Engine.RetryBackoff < 0 || c.Engine.SettleDelay < 0 {
		errs = append(errs, "engine delays must not be negative")
	}
	if c.Engine.DefaultThreshold <= 0 || c.Engine.DefaultThreshold > 1 {
		errs = append(errs, "engine.default_threshold must be in (0, 1]")
	}

	if c.ADB.Path == "" {
		errs = append(errs, "adb.path is required")
	}
	seen := make(map[string]bool, len(c.ADB.Devices))
	for i, d := range c.ADB.Devices {
		if d.Serial == "" && d.Port == 0 {
			errs = append(errs, fmt.Sprintf("adb.devices[%d]: serial or port is required", i))
			continue
		}
		if d.Port < 0 || d.Port > 65535 {
			errs = append(errs, fmt.Sprintf("adb.devices[%d]: port must be between 1 and 65535", i))
		}
		if seen[d.ID()] {
			errs = append(errs, fmt.Sprintf("adb.devices[%d]: duplicate device %s", i, d.ID()))
		}
		seen[d.ID()] = true
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
