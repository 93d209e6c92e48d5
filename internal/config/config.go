package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the complete relay configuration.
type Config struct {
	Actuator ActuatorConfig
	Server   ServerConfig
	Auth     AuthConfig
	Timing   TimingConfig
	Log      LogConfig
	Audit    AuditConfig
	MQTT     MQTTConfig

	// AutoDriver grants the driver slot to a connection on accept when the
	// slot is free.
	AutoDriver bool
}

// ActuatorConfig addresses the vehicle firmware.
type ActuatorConfig struct {
	Host string
	Port int
}

// Addr returns host:port.
func (c ActuatorConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ServerConfig controls the websocket/HTTP listener.
type ServerConfig struct {
	Bind         string
	Port         int
	ReadLimit    int64
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	QueueSize    int
}

// Addr returns bind:port.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// AuthConfig selects token verification.
type AuthConfig struct {
	Mode  string
	Token string
}

// TimingConfig holds failsafe and fanout timing.
type TimingConfig struct {
	WatchdogTick         time.Duration
	FailsafeDeadline     time.Duration
	DashboardSendTimeout time.Duration
}

// LogConfig controls logrus output.
type LogConfig struct {
	Level  string
	Format string
}

// AuditConfig enables the audit trail when Dir is set.
type AuditConfig struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// MQTTConfig enables the telemetry mirror when Broker is set.
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
}

// Defaults returns the baseline configuration.
func Defaults() *Config {
	return &Config{
		Actuator: ActuatorConfig{
			Host: "192.168.1.84",
			Port: 5005,
		},
		Server: ServerConfig{
			Bind:         "0.0.0.0",
			Port:         8443,
			ReadLimit:    1 << 16,
			PingInterval: 20 * time.Second,
			PongWait:     30 * time.Second,
			WriteWait:    5 * time.Second,
			QueueSize:    64,
		},
		Auth: AuthConfig{
			Mode:  "shared",
			Token: "change-me",
		},
		Timing: TimingConfig{
			WatchdogTick:         50 * time.Millisecond,
			FailsafeDeadline:     500 * time.Millisecond,
			DashboardSendTimeout: 100 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Audit: AuditConfig{
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		MQTT: MQTTConfig{
			Topic: "rc/telemetry",
		},
	}
}
