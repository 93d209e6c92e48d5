package config

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Validate checks a resolved configuration.
func Validate(c *Config) error {
	if c == nil {
		return errors.New("config cannot be nil")
	}

	if err := validateActuator(c.Actuator); err != nil {
		return errors.Wrap(err, "actuator validation failed")
	}
	if err := validateServer(c.Server); err != nil {
		return errors.Wrap(err, "server validation failed")
	}
	if err := validateAuth(c.Auth); err != nil {
		return errors.Wrap(err, "auth validation failed")
	}
	if err := validateTiming(c.Timing); err != nil {
		return errors.Wrap(err, "timing validation failed")
	}
	if err := validateLog(c.Log); err != nil {
		return errors.Wrap(err, "log validation failed")
	}
	return nil
}

func validateActuator(c ActuatorConfig) error {
	if c.Host == "" {
		return errors.New("host cannot be empty")
	}
	return validatePort(c.Port)
}

func validateServer(c ServerConfig) error {
	if err := validatePort(c.Port); err != nil {
		return err
	}
	if c.ReadLimit <= 0 {
		return errors.Errorf("read limit must be positive, got %d", c.ReadLimit)
	}
	if c.PingInterval <= 0 || c.PongWait <= c.PingInterval {
		return errors.Errorf("pong wait %v must exceed ping interval %v", c.PongWait, c.PingInterval)
	}
	if c.WriteWait <= 0 {
		return errors.Errorf("write wait must be positive, got %v", c.WriteWait)
	}
	if c.QueueSize <= 0 {
		return errors.Errorf("queue size must be positive, got %d", c.QueueSize)
	}
	return nil
}

func validateAuth(c AuthConfig) error {
	if c.Token == "" {
		return errors.New("token cannot be empty")
	}
	switch c.Mode {
	case "shared", "jwt":
	default:
		return errors.Errorf("unsupported auth mode %q", c.Mode)
	}
	return nil
}

func validateTiming(c TimingConfig) error {
	if c.WatchdogTick <= 0 {
		return errors.Errorf("watchdog tick must be positive, got %v", c.WatchdogTick)
	}
	if c.FailsafeDeadline <= c.WatchdogTick {
		return errors.Errorf("failsafe deadline %v must exceed watchdog tick %v", c.FailsafeDeadline, c.WatchdogTick)
	}
	if c.DashboardSendTimeout <= 0 {
		return errors.Errorf("dashboard send timeout must be positive, got %v", c.DashboardSendTimeout)
	}
	return nil
}

func validateLog(c LogConfig) error {
	if _, err := log.ParseLevel(c.Level); err != nil {
		return err
	}
	switch c.Format {
	case "text", "json":
	default:
		return errors.Errorf("unsupported log format %q", c.Format)
	}
	return nil
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return errors.Errorf("port %d out of range", port)
	}
	return nil
}
