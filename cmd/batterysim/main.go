// cmd/batterysim is the Supervisor CLI: it parses flags/config, loads and
// validates profiles, and runs the Supervisor until interrupted.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"battery-emulator/internal/config"
	"battery-emulator/internal/logging"
	"battery-emulator/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML run configuration file")
	deviceAddr := flag.String("device", "", "override device_address (host:port)")
	dashboardAddr := flag.String("dashboard", "", "override dashboard_addr")
	metricsAddr := flag.String("metrics", "", "override metrics_addr")
	devLogging := flag.Bool("dev", false, "use the human-readable development log encoder")
	flag.Parse()

	profilePaths := flag.Args()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if *deviceAddr != "" {
		cfg.DeviceAddress = *deviceAddr
	}
	if *dashboardAddr != "" {
		cfg.DashboardAddr = *dashboardAddr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if len(profilePaths) > 0 {
		cfg.ProfilePaths = profilePaths
	}

	config.Normalize(&cfg)
	if err := config.Validate(&cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}

	runID := uuid.NewString()

	logger, err := logging.New(*devLogging, runID)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	sup, err := supervisor.New(cfg, runID, logger)
	if err != nil {
		log.Fatalf("supervisor init failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sup.Run(ctx); err != nil {
		log.Fatalf("supervisor exited with error: %v", err)
	}
}
