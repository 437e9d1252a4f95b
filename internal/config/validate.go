// internal/config/validate.go
package config

import "fmt"

// Validate checks RunConfig correctness. It performs declarative
// validation only and MUST NOT mutate cfg. Callers should run Normalize
// first.
func Validate(cfg *RunConfig) error {
	if cfg.DeviceAddress == "" {
		return fmt.Errorf("device_address must not be empty")
	}
	if len(cfg.ProfilePaths) == 0 {
		return fmt.Errorf("at least one profile path must be configured")
	}

	seen := make(map[string]bool, len(cfg.ProfilePaths))
	for _, p := range cfg.ProfilePaths {
		if seen[p] {
			return fmt.Errorf("profile path %q listed more than once", p)
		}
		seen[p] = true
	}

	if cfg.ReadTimeoutMs <= 0 {
		return fmt.Errorf("read_timeout_ms must be strictly positive, got %d", cfg.ReadTimeoutMs)
	}
	if cfg.DialTimeoutMs <= 0 {
		return fmt.Errorf("dial_timeout_ms must be strictly positive, got %d", cfg.DialTimeoutMs)
	}
	if cfg.SafetyCutoffErrors <= 0 {
		return fmt.Errorf("safety_cutoff_errors must be strictly positive, got %d", cfg.SafetyCutoffErrors)
	}
	if cfg.DeadbandVolts < 0 {
		return fmt.Errorf("deadband_volts must be >= 0, got %v", cfg.DeadbandVolts)
	}

	return nil
}
