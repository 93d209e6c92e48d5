package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// EnvConfigPath names the optional config file.
const EnvConfigPath = "RELAY_CONFIG"

// Load resolves configuration from RELAY_CONFIG and the environment.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv(EnvConfigPath))
}

// LoadFrom resolves configuration using the file at path, if non-empty.
func LoadFrom(path string) (*Config, error) {
	config := Defaults()

	if path != "" {
		fc, err := loadFromFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load %s", path)
		}
		mergeFileConfig(config, fc)
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, errors.Wrap(err, "failed to apply environment overrides")
	}

	if err := Validate(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

// fileConfig mirrors Config in file form. Durations are milliseconds and
// zero values mean "keep the default".
type fileConfig struct {
	Actuator struct {
		Host string `yaml:"host" toml:"host"`
		Port int    `yaml:"port" toml:"port"`
	} `yaml:"actuator" toml:"actuator"`

	Server struct {
		Bind           string `yaml:"bind" toml:"bind"`
		Port           int    `yaml:"port" toml:"port"`
		ReadLimit      int64  `yaml:"read_limit" toml:"read_limit"`
		PingIntervalMs int    `yaml:"ping_interval_ms" toml:"ping_interval_ms"`
		PongWaitMs     int    `yaml:"pong_wait_ms" toml:"pong_wait_ms"`
		WriteWaitMs    int    `yaml:"write_wait_ms" toml:"write_wait_ms"`
		QueueSize      int    `yaml:"queue_size" toml:"queue_size"`
	} `yaml:"server" toml:"server"`

	Auth struct {
		Mode  string `yaml:"mode" toml:"mode"`
		Token string `yaml:"token" toml:"token"`
	} `yaml:"auth" toml:"auth"`

	Timing struct {
		WatchdogTickMs         int `yaml:"watchdog_tick_ms" toml:"watchdog_tick_ms"`
		FailsafeMs             int `yaml:"failsafe_ms" toml:"failsafe_ms"`
		DashboardSendTimeoutMs int `yaml:"dashboard_send_timeout_ms" toml:"dashboard_send_timeout_ms"`
	} `yaml:"timing" toml:"timing"`

	Log struct {
		Level  string `yaml:"level" toml:"level"`
		Format string `yaml:"format" toml:"format"`
	} `yaml:"log" toml:"log"`

	Audit struct {
		Dir        string `yaml:"dir" toml:"dir"`
		MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	} `yaml:"audit" toml:"audit"`

	MQTT struct {
		Broker   string `yaml:"broker" toml:"broker"`
		Topic    string `yaml:"topic" toml:"topic"`
		ClientID string `yaml:"client_id" toml:"client_id"`
	} `yaml:"mqtt" toml:"mqtt"`

	AutoDriver *bool `yaml:"auto_driver" toml:"auto_driver"`
}

// loadFromFile decodes a YAML (.yaml, .yml) or TOML (.toml) file.
func loadFromFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read config file")
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.UnmarshalStrict(data, &fc); err != nil {
			return nil, errors.Wrap(err, "unable to decode yaml config")
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &fc); err != nil {
			return nil, errors.Wrap(err, "unable to decode toml config")
		}
	default:
		return nil, errors.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
	return &fc, nil
}

func mergeFileConfig(c *Config, fc *fileConfig) {
	setString(&c.Actuator.Host, fc.Actuator.Host)
	setInt(&c.Actuator.Port, fc.Actuator.Port)

	setString(&c.Server.Bind, fc.Server.Bind)
	setInt(&c.Server.Port, fc.Server.Port)
	if fc.Server.ReadLimit != 0 {
		c.Server.ReadLimit = fc.Server.ReadLimit
	}
	setMillis(&c.Server.PingInterval, fc.Server.PingIntervalMs)
	setMillis(&c.Server.PongWait, fc.Server.PongWaitMs)
	setMillis(&c.Server.WriteWait, fc.Server.WriteWaitMs)
	setInt(&c.Server.QueueSize, fc.Server.QueueSize)

	setString(&c.Auth.Mode, fc.Auth.Mode)
	setString(&c.Auth.Token, fc.Auth.Token)

	setMillis(&c.Timing.WatchdogTick, fc.Timing.WatchdogTickMs)
	setMillis(&c.Timing.FailsafeDeadline, fc.Timing.FailsafeMs)
	setMillis(&c.Timing.DashboardSendTimeout, fc.Timing.DashboardSendTimeoutMs)

	setString(&c.Log.Level, fc.Log.Level)
	setString(&c.Log.Format, fc.Log.Format)

	setString(&c.Audit.Dir, fc.Audit.Dir)
	setInt(&c.Audit.MaxSizeMB, fc.Audit.MaxSizeMB)
	setInt(&c.Audit.MaxBackups, fc.Audit.MaxBackups)
	setInt(&c.Audit.MaxAgeDays, fc.Audit.MaxAgeDays)

	setString(&c.MQTT.Broker, fc.MQTT.Broker)
	setString(&c.MQTT.Topic, fc.MQTT.Topic)
	setString(&c.MQTT.ClientID, fc.MQTT.ClientID)

	if fc.AutoDriver != nil {
		c.AutoDriver = *fc.AutoDriver
	}
}

// applyEnvOverrides applies RELAY_* variables, falling back to the legacy
// names where one exists.
func applyEnvOverrides(c *Config) error {
	c.Actuator.Host = GetEnvVar("RELAY_ACTUATOR_HOST", GetEnvVar("ESP32_HOST", c.Actuator.Host))
	c.Server.Bind = GetEnvVar("RELAY_BIND", GetEnvVar("WS_BIND", c.Server.Bind))
	c.Auth.Token = GetEnvVar("RELAY_TOKEN", GetEnvVar("TOKEN", c.Auth.Token))
	c.Auth.Mode = GetEnvVar("RELAY_AUTH_MODE", c.Auth.Mode)
	c.Log.Level = GetEnvVar("RELAY_LOG_LEVEL", c.Log.Level)
	c.Log.Format = GetEnvVar("RELAY_LOG_FORMAT", c.Log.Format)
	c.Audit.Dir = GetEnvVar("RELAY_AUDIT_DIR", c.Audit.Dir)
	c.MQTT.Broker = GetEnvVar("RELAY_MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.Topic = GetEnvVar("RELAY_MQTT_TOPIC", c.MQTT.Topic)

	var err error
	if c.Actuator.Port, err = envInt(c.Actuator.Port, "RELAY_ACTUATOR_PORT", "ESP32_PORT"); err != nil {
		return err
	}
	if c.Server.Port, err = envInt(c.Server.Port, "RELAY_PORT", "WS_PORT"); err != nil {
		return err
	}
	if c.Timing.FailsafeDeadline, err = envDuration(c.Timing.FailsafeDeadline, "RELAY_FAILSAFE_MS"); err != nil {
		return err
	}
	if c.Timing.WatchdogTick, err = envDuration(c.Timing.WatchdogTick, "RELAY_WATCHDOG_TICK_MS"); err != nil {
		return err
	}
	if c.Timing.DashboardSendTimeout, err = envDuration(c.Timing.DashboardSendTimeout, "RELAY_DASHBOARD_SEND_TIMEOUT"); err != nil {
		return err
	}

	if val := os.Getenv("RELAY_AUTO_DRIVER"); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return errors.Wrapf(err, "invalid RELAY_AUTO_DRIVER %q", val)
		}
		c.AutoDriver = b
	}
	return nil
}

// envInt reads the first set key as an integer.
func envInt(current int, keys ...string) (int, error) {
	for _, key := range keys {
		val := os.Getenv(key)
		if val == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return current, errors.Wrapf(err, "invalid %s %q", key, val)
		}
		return n, nil
	}
	return current, nil
}

// envDuration reads key as a bare millisecond count or a Go duration string.
func envDuration(current time.Duration, key string) (time.Duration, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return current, nil
	}
	d, err := parseMillis(val)
	if err != nil {
		return current, errors.Wrapf(err, "invalid %s %q", key, val)
	}
	return d, nil
}

func parseMillis(val string) (time.Duration, error) {
	if ms, err := strconv.Atoi(val); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(val)
}

// GetEnvVar gets an environment variable with a default value.
func GetEnvVar(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setMillis(dst *time.Duration, ms int) {
	if ms != 0 {
		*dst = time.Duration(ms) * time.Millisecond
	}
}
