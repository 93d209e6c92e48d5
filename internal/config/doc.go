// Package config implements the configuration store for the control relay.
//
// Configuration is resolved in layers: baseline defaults, then an optional
// YAML or TOML file named by RELAY_CONFIG, then RELAY_* environment
// variables. Legacy variable names (ESP32_HOST, ESP32_PORT, WS_BIND,
// WS_PORT, TOKEN) are honored when the RELAY_* name is unset. The result is
// validated before use.
package config
