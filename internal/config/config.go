// Package config resolves RunConfig: the device address, timeouts, log
// directory, and optional dashboard/metrics bind addresses the Supervisor
// needs at startup. Profile documents are a separate, stricter format
// (see internal/profile) and are never routed through this package.
package config

import "battery-emulator/internal/sim"

// RunConfig is resolved in precedence order: CLI flags > environment
// variables (BATTERYSIM_ prefix) > a YAML file > the defaults below.
type RunConfig struct {
	DeviceAddress string `yaml:"device_address" mapstructure:"device_address"`

	ProfilePaths []string `yaml:"profiles" mapstructure:"profiles"`

	LogDir        string `yaml:"log_dir" mapstructure:"log_dir"`
	DashboardAddr string `yaml:"dashboard_addr" mapstructure:"dashboard_addr"`
	MetricsAddr   string `yaml:"metrics_addr" mapstructure:"metrics_addr"`

	ReadTimeoutMs      int     `yaml:"read_timeout_ms" mapstructure:"read_timeout_ms"`
	SafetyCutoffErrors int     `yaml:"safety_cutoff_errors" mapstructure:"safety_cutoff_errors"`
	DeadbandVolts      float64 `yaml:"deadband_volts" mapstructure:"deadband_volts"`

	DialTimeoutMs int `yaml:"dial_timeout_ms" mapstructure:"dial_timeout_ms"`
}

// Defaults returns the built-in RunConfig baseline, before any YAML file
// or environment overlay is applied.
func Defaults() RunConfig {
	return RunConfig{
		LogDir:             "logs",
		ReadTimeoutMs:      1000,
		SafetyCutoffErrors: sim.DefaultSafetyCutoffErrors,
		DeadbandVolts:      sim.DefaultDeadbandVolts,
		DialTimeoutMs:      5000,
	}
}
