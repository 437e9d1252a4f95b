package sim

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"battery-emulator/internal/profile"
	"battery-emulator/internal/session"
	"battery-emulator/internal/telemetry"
)

func testProfile(channel int) *profile.BatteryProfile {
	return &profile.BatteryProfile{
		Name:                   "test",
		Channel:                channel,
		CapacityAh:             1.0,
		InternalResistanceOhm:  0.05,
		CurrentLimitDischargeA: 5,
		CurrentLimitChargeA:    5,
		CutoffVoltage:          3.0,
		MaxVoltage:             4.2,
		RCTimeConstantMs:       0,
		UpdateIntervalMs:       10,
		OCVCurve: []profile.OCVPoint{
			{SOC: 0.0, Voltage: 3.0},
			{SOC: 1.0, Voltage: 4.2},
		},
	}
}

// scriptedSession replays a fixed sequence of measurement outcomes, one
// per MeasureCurrent call, and records every SetVoltage call.
type scriptedSession struct {
	mu sync.Mutex

	currents []float64 // value returned on Success
	errors   []bool     // true => this call is an ErrorResponse instead
	ioErrors []bool     // true => this call is a hard I/O failure instead
	idx      int

	setVoltageErr error // when non-nil, every SetVoltage call fails with this

	voltages []float64
	shutdown int
}

func (s *scriptedSession) MeasureCurrent() (float64, session.Outcome, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx >= len(s.currents) {
		// repeat the last scripted value forever once exhausted
		s.idx = len(s.currents) - 1
	}
	i := s.idx
	s.idx++
	if i < len(s.ioErrors) && s.ioErrors[i] {
		return 0, session.Success, "", fmt.Errorf("connection reset")
	}
	if i < len(s.errors) && s.errors[i] {
		return 0, session.ErrorResponse, "ERROR", nil
	}
	return s.currents[i], session.Success, fmt.Sprintf("%.3f", s.currents[i]), nil
}

func (s *scriptedSession) SetVoltage(v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setVoltageErr != nil {
		return s.setVoltageErr
	}
	s.voltages = append(s.voltages, v)
	return nil
}

func (s *scriptedSession) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown++
	return nil
}

func (s *scriptedSession) sentVoltages() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.voltages))
	copy(out, s.voltages)
	return out
}

func TestLoopSteadyDischargeReachesCutoff(t *testing.T) {
	p := testProfile(1)
	p.UpdateIntervalMs = 1
	// dt is wall-clock, so the tick rate does not speed up discharge; a
	// 0.1 mAh cell at 1 A empties in about 0.36 s, well inside the timeout.
	p.CapacityAh = 0.0001
	sess := &scriptedSession{currents: []float64{1.0}}
	reg := telemetry.New()
	l := New(Config{Profile: p}, sess, reg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := l.Run(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.runtime.State != Terminated {
		t.Fatalf("expected Terminated, got %v", l.runtime.State)
	}
	if sess.shutdown != 1 {
		t.Fatalf("expected exactly one Shutdown call, got %d", sess.shutdown)
	}
	if l.runtime.VFilt > p.CutoffVoltage+1e-9 {
		t.Fatalf("expected loop to terminate at or below cutoff, got v_filt=%v", l.runtime.VFilt)
	}
}

func TestLoopDeadbandSuppressesRedundantWrites(t *testing.T) {
	p := testProfile(1)
	p.UpdateIntervalMs = 1
	// Zero current: v_target never moves, so after the first write every
	// subsequent iteration should be suppressed by the deadband.
	sess := &scriptedSession{currents: []float64{0.0}}
	reg := telemetry.New()
	l := New(Config{Profile: p, DeadbandVolts: 0.001}, sess, reg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = l.Run(ctx)

	volts := sess.sentVoltages()
	if len(volts) == 0 {
		t.Fatal("expected at least one VOLT write")
	}
	for _, v := range volts[1:] {
		if v != volts[0] {
			t.Fatalf("expected all writes to match the first under zero current, got %v", volts)
		}
	}
}

func TestLoopRecoversFromTransientErrors(t *testing.T) {
	p := testProfile(1)
	p.UpdateIntervalMs = 1
	sess := &scriptedSession{
		currents: []float64{1.0, 1.0, 1.0, 1.0, 1.0},
		errors:   []bool{true, true, true, false, false},
	}
	reg := telemetry.New()
	l := New(Config{Profile: p}, sess, reg)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = l.Run(ctx)

	if l.runtime.consecutiveFailures != 0 && l.runtime.State != Terminated {
		t.Fatalf("expected failures to reset after a success, got %d consecutiveFailures, state=%v",
			l.runtime.consecutiveFailures, l.runtime.State)
	}
}

func TestLoopSafetyCutoffAfterFiveFailures(t *testing.T) {
	p := testProfile(1)
	p.UpdateIntervalMs = 1
	sess := &scriptedSession{
		currents: []float64{0, 0, 0, 0, 0},
		errors:   []bool{true, true, true, true, true},
	}
	reg := telemetry.New()
	l := New(Config{Profile: p}, sess, reg)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	err := l.Run(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.runtime.State != Terminated {
		t.Fatalf("expected Terminated after safety cutoff, got %v", l.runtime.State)
	}
	if sess.shutdown != 1 {
		t.Fatalf("expected exactly one Shutdown call, got %d", sess.shutdown)
	}
}

func TestLoopTerminatesImmediatelyOnMeasurementIOError(t *testing.T) {
	p := testProfile(1)
	p.UpdateIntervalMs = 1
	sess := &scriptedSession{
		currents: []float64{1.0, 1.0, 1.0, 1.0, 1.0},
		ioErrors: []bool{true},
	}
	reg := telemetry.New()
	l := New(Config{Profile: p}, sess, reg)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	err := l.Run(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.runtime.State != Terminated {
		t.Fatalf("expected Terminated, got %v", l.runtime.State)
	}
	// A hard I/O error must terminate on the very first failing tick, not
	// after accumulating toward the safety cutoff like a transient error.
	if l.runtime.consecutiveFailures != 0 {
		t.Fatalf("hard I/O error must not feed the consecutive-failure counter, got %d",
			l.runtime.consecutiveFailures)
	}
}

func TestLoopTerminatesImmediatelyOnSetVoltageIOError(t *testing.T) {
	p := testProfile(1)
	p.UpdateIntervalMs = 1
	sess := &scriptedSession{
		currents:      []float64{1.0, 1.0, 1.0, 1.0, 1.0},
		setVoltageErr: fmt.Errorf("write: broken pipe"),
	}
	reg := telemetry.New()
	l := New(Config{Profile: p}, sess, reg)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	err := l.Run(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.runtime.State != Terminated {
		t.Fatalf("expected Terminated, got %v", l.runtime.State)
	}
	if len(sess.sentVoltages()) != 0 {
		t.Fatalf("expected the first failing SetVoltage call to not be recorded, got %v", sess.sentVoltages())
	}
}

func TestTwoChannelsAreIndependent(t *testing.T) {
	p1 := testProfile(1)
	p1.UpdateIntervalMs = 1
	p2 := testProfile(2)
	p2.UpdateIntervalMs = 1

	sess1 := &scriptedSession{currents: []float64{1.0}}
	sess2 := &scriptedSession{currents: []float64{0, 0, 0, 0, 0}, errors: []bool{true, true, true, true, true}}

	reg := telemetry.New()
	l1 := New(Config{Profile: p1}, sess1, reg)
	l2 := New(Config{Profile: p2}, sess2, reg)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = l1.Run(ctx) }()
	go func() { defer wg.Done(); _ = l2.Run(ctx) }()
	wg.Wait()

	// Channel 2 hits its safety cutoff quickly and terminates independent
	// of channel 1's ongoing discharge.
	if l2.runtime.State != Terminated {
		t.Fatalf("expected channel 2 Terminated, got %v", l2.runtime.State)
	}
	if sess2.shutdown != 1 {
		t.Fatalf("expected channel 2 to shut down exactly once, got %d", sess2.shutdown)
	}
}
