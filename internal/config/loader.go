// internal/config/loader.go
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Load resolves a RunConfig from, in precedence order, environment
// variables (BATTERYSIM_ prefix) over a YAML file at path over the
// built-in defaults. path may be empty, in which case only defaults and
// the environment are consulted. Load does not validate: callers that
// still need to apply CLI-flag overrides should call Normalize and
// Validate themselves once those are merged in.
func Load(path string) (RunConfig, error) {
	v := viper.New()

	defaults := Defaults()
	v.SetDefault("device_address", defaults.DeviceAddress)
	v.SetDefault("log_dir", defaults.LogDir)
	v.SetDefault("dashboard_addr", defaults.DashboardAddr)
	v.SetDefault("metrics_addr", defaults.MetricsAddr)
	v.SetDefault("read_timeout_ms", defaults.ReadTimeoutMs)
	v.SetDefault("safety_cutoff_errors", defaults.SafetyCutoffErrors)
	v.SetDefault("deadband_volts", defaults.DeadbandVolts)
	v.SetDefault("dial_timeout_ms", defaults.DialTimeoutMs)

	v.SetEnvPrefix("batterysim")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return RunConfig{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg RunConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return RunConfig{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	return cfg, nil
}
