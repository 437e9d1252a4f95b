// internal/config/normalize.go
package config

import "strings"

// Normalize trims and defaults fields in place. Callers must run it
// before Validate, so Validate judges the final, trimmed form of each
// field rather than a whitespace-only value that would pass as
// non-empty.
func Normalize(cfg *RunConfig) {
	if cfg == nil {
		return
	}

	cfg.LogDir = strings.TrimSuffix(cfg.LogDir, "/")
	if cfg.LogDir == "" {
		cfg.LogDir = "logs"
	}

	cfg.DeviceAddress = strings.TrimSpace(cfg.DeviceAddress)
	cfg.DashboardAddr = strings.TrimSpace(cfg.DashboardAddr)
	cfg.MetricsAddr = strings.TrimSpace(cfg.MetricsAddr)
}
