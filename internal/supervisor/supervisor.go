// Package supervisor loads and validates profiles, spawns one Transport +
// Session + Simulation Loop per channel, and owns the dashboard, metrics,
// and log-fan-out consumers for their cooperative shutdown.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"battery-emulator/internal/config"
	"battery-emulator/internal/dashboard"
	"battery-emulator/internal/logging"
	"battery-emulator/internal/metrics"
	"battery-emulator/internal/profile"
	"battery-emulator/internal/recorder"
	"battery-emulator/internal/session"
	"battery-emulator/internal/sim"
	"battery-emulator/internal/telemetry"
	"battery-emulator/internal/transport"
)

// Supervisor owns every long-running goroutine in one process invocation:
// the per-channel Simulation Loops and the dashboard/metrics/log-fan-out
// consumers.
type Supervisor struct {
	cfg    config.RunConfig
	runID  string
	logger *zap.Logger

	reg      *telemetry.Registry
	profiles []*profile.BatteryProfile
}

// New loads and validates every profile named in cfg.ProfilePaths,
// rejecting duplicate channel assignments across them — a cross-document
// check the Profile Loader, working one document at a time, cannot make.
func New(cfg config.RunConfig, runID string, logger *zap.Logger) (*Supervisor, error) {
	profiles := make([]*profile.BatteryProfile, 0, len(cfg.ProfilePaths))
	seenChannels := make(map[int]string)

	for _, path := range cfg.ProfilePaths {
		p, err := profile.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("supervisor: load profile %s: %w", path, err)
		}
		if prev, ok := seenChannels[p.Channel]; ok {
			return nil, fmt.Errorf(
				"supervisor: channel %d claimed by both %q and %q", p.Channel, prev, path)
		}
		seenChannels[p.Channel] = path
		profiles = append(profiles, p)
	}

	return &Supervisor{
		cfg:      cfg,
		runID:    runID,
		logger:   logger,
		reg:      telemetry.New(),
		profiles: profiles,
	}, nil
}

// Registry exposes the Telemetry Registry, e.g. for tests that want to
// observe published samples without going through a consumer.
func (s *Supervisor) Registry() *telemetry.Registry { return s.reg }

// Run spawns one Transport+Session+Loop goroutine per loaded profile plus
// the dashboard/metrics/log-fan-out consumers, and blocks until ctx is
// canceled. Every goroutine's panic-free exit path attempts OUTP OFF
// before returning (enforced inside sim.Loop.Run).
func (s *Supervisor) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	fanOut, err := logging.NewFanOut(s.cfg.LogDir)
	if err != nil {
		return fmt.Errorf("supervisor: log fan-out: %w", err)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		fanOut.Run(ctx, s.reg, logging.DefaultDrainInterval)
	}()
	defer fanOut.Close()

	rec := recorder.New(s.cfg.LogDir, s.runID)
	wg.Add(1)
	go func() {
		defer wg.Done()
		rec.Run(ctx, s.reg)
	}()

	if s.cfg.DashboardAddr != "" {
		dash := dashboard.New(s.reg, false)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dash.Serve(ctx, s.cfg.DashboardAddr); err != nil {
				s.logger.Warn("dashboard server exited", zap.Error(err))
			}
		}()
	}

	if s.cfg.MetricsAddr != "" {
		exporter := metrics.New()
		wg.Add(1)
		go func() {
			defer wg.Done()
			exporter.Run(ctx, s.reg)
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := exporter.Serve(ctx, s.cfg.MetricsAddr); err != nil {
				s.logger.Warn("metrics server exited", zap.Error(err))
			}
		}()
	}

	for _, p := range s.profiles {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.runChannel(ctx, p); err != nil {
				s.logger.Error("channel loop exited with error",
					zap.Int("channel", p.Channel), zap.Error(err))
				s.reg.AppendEvent(p.Channel, fmt.Sprintf("loop exited: %v", err))
			}
		}()
	}

	wg.Wait()
	return nil
}

// runChannel dials a dedicated Transport, runs the Session init handshake
// exactly once, then drives the Simulation Loop until ctx is canceled or
// the loop self-terminates (cutoff, safety cutoff).
func (s *Supervisor) runChannel(ctx context.Context, p *profile.BatteryProfile) error {
	log := logging.ForChannel(s.logger, p.Channel)

	dialTimeout := time.Duration(s.cfg.DialTimeoutMs) * time.Millisecond
	readTimeout := time.Duration(s.cfg.ReadTimeoutMs) * time.Millisecond

	tr, err := transport.Dial(s.cfg.DeviceAddress, dialTimeout, readTimeout)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer tr.Close()

	wireLog := &registryWireLogger{reg: s.reg, channel: p.Channel}
	sess := session.New(tr, p.Channel, wireLog)

	if err := sess.Init(p.CurrentLimitDischargeA); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	log.Info("channel initialized", zap.String("profile", p.Name))
	s.reg.AppendEvent(p.Channel, fmt.Sprintf("channel initialized (profile=%s)", p.Name))

	loop := sim.New(sim.Config{
		Profile:            p,
		SafetyCutoffErrors: s.cfg.SafetyCutoffErrors,
		DeadbandVolts:      s.cfg.DeadbandVolts,
	}, sess, s.reg)

	return loop.Run(ctx)
}

// registryWireLogger adapts telemetry.Registry to session.Logger, so the
// wire event stream is fed directly by the Session that owns the
// Transport.
type registryWireLogger struct {
	reg     *telemetry.Registry
	channel int
}

func (r *registryWireLogger) LogWire(direction, payload string) {
	r.reg.AppendWire(r.channel, direction, payload)
}
