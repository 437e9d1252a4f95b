// Package sim runs the per-channel Simulation Loop: the 8-step measure/
// integrate/publish cycle that drives one instrument channel from a
// BatteryProfile and a Session.
package sim

import (
	"context"
	"fmt"
	"time"

	"battery-emulator/internal/battery"
	"battery-emulator/internal/profile"
	"battery-emulator/internal/session"
	"battery-emulator/internal/telemetry"
)

// DefaultSafetyCutoffErrors is how many consecutive measurement failures
// force the output off and terminate the loop.
const DefaultSafetyCutoffErrors = 5

// DefaultDeadbandVolts suppresses redundant VOLT writes when the filtered
// terminal voltage has not moved enough to matter.
const DefaultDeadbandVolts = 0.001

const historyCapacity = 300

// Sess is the subset of *session.Session the loop needs; narrowed so tests
// can inject a fake without a real Transport.
type Sess interface {
	MeasureCurrent() (value float64, outcome session.Outcome, raw string, err error)
	SetVoltage(v float64) error
	Shutdown() error
}

// Config parameterizes one channel's loop. Everything here is fixed for
// the lifetime of the loop; the profile itself is immutable once loaded.
type Config struct {
	Profile            *profile.BatteryProfile
	SafetyCutoffErrors int
	DeadbandVolts      float64
}

func (c *Config) withDefaults() {
	if c.SafetyCutoffErrors <= 0 {
		c.SafetyCutoffErrors = DefaultSafetyCutoffErrors
	}
	if c.DeadbandVolts <= 0 {
		c.DeadbandVolts = DefaultDeadbandVolts
	}
}

// history is a small fixed-capacity, insertion-order buffer of recent
// samples used to feed the dashboard's charts. Oldest entries are dropped
// on overflow; this is not the shared telemetry.Registry ring (that one
// serves the wire/event streams), just per-loop chart memory.
type history struct {
	points []telemetry.HistoryPoint
}

func (h *history) push(ts, value float64) {
	h.points = append(h.points, telemetry.HistoryPoint{TS: ts, Value: value})
	if len(h.points) > historyCapacity {
		h.points = h.points[len(h.points)-historyCapacity:]
	}
}

func (h *history) snapshot() []telemetry.HistoryPoint {
	out := make([]telemetry.HistoryPoint, len(h.points))
	copy(out, h.points)
	return out
}

// ChannelRuntime holds the mutable state one Loop evolves across
// iterations: state of charge, the filtered terminal voltage, the
// lifecycle State, and the bounded chart histories.
type ChannelRuntime struct {
	Channel int
	State   State

	SOC       float64
	VFilt     float64
	IMeas     float64
	Power     float64
	TElapsedS float64

	consecutiveFailures int
	lastSentVolt        float64
	haveSentVolt        bool

	voltHist, currHist, powerHist history
}

func newRuntime(channel int, initialSOC, initialVFilt float64) *ChannelRuntime {
	return &ChannelRuntime{
		Channel: channel,
		State:   Connecting,
		SOC:     initialSOC,
		VFilt:   initialVFilt,
	}
}

// Loop drives one channel's ChannelRuntime against a Session, publishing
// to a telemetry.Registry, until its context is canceled, the profile's
// normal discharge cutoff fires, or the safety cutoff fires.
type Loop struct {
	cfg     Config
	sess    Sess
	reg     *telemetry.Registry
	runtime *ChannelRuntime
}

// New constructs a Loop. The profile's OCV curve must already be
// canonicalized ascending (profile.LoadBytes guarantees this).
func New(cfg Config, sess Sess, reg *telemetry.Registry) *Loop {
	cfg.withDefaults()
	p := cfg.Profile
	initialSOC := 1.0
	initialVFilt := battery.InterpolateOCV(toBatteryCurve(p.OCVCurve), initialSOC)
	return &Loop{
		cfg:     cfg,
		sess:    sess,
		reg:     reg,
		runtime: newRuntime(p.Channel, initialSOC, initialVFilt),
	}
}

func toBatteryCurve(curve []profile.OCVPoint) []battery.OCVPoint {
	out := make([]battery.OCVPoint, len(curve))
	for i, pt := range curve {
		out[i] = battery.OCVPoint{SOC: pt.SOC, Voltage: pt.Voltage}
	}
	return out
}

// Snapshot produces the telemetry.ChannelSnapshot for the current runtime
// state, suitable for publishing or for an on-demand dashboard poll.
func (l *Loop) Snapshot() telemetry.ChannelSnapshot {
	rt := l.runtime
	return telemetry.ChannelSnapshot{
		Channel:           rt.Channel,
		TElapsedS:         rt.TElapsedS,
		SOC:               rt.SOC,
		VFilt:             rt.VFilt,
		IMeas:             rt.IMeas,
		Power:             rt.Power,
		HistoryVolt:       rt.voltHist.snapshot(),
		HistoryCurr:       rt.currHist.snapshot(),
		HistoryPower:      rt.powerHist.snapshot(),
		ProfileName:       l.cfg.Profile.Name,
		State:             rt.State.String(),
		ConsecutiveErrors: rt.consecutiveFailures,
	}
}

// Run executes the loop until ctx is canceled or a cutoff condition
// terminates it. It always attempts OUTP OFF via Session.Shutdown before
// returning.
func (l *Loop) Run(ctx context.Context) error {
	p := l.cfg.Profile
	rt := l.runtime
	rt.State = Running

	defer func() {
		rt.State = Terminated
		if err := l.sess.Shutdown(); err != nil {
			l.event(fmt.Sprintf("shutdown command failed: %v", err))
		}
		if l.reg != nil {
			l.reg.Remove(rt.Channel)
		}
	}()

	interval := time.Duration(p.UpdateIntervalMs * float64(time.Millisecond))
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	l.publish()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			if dt <= 0 {
				// clock jumped backward or ticks coalesced: skip this
				// iteration's integration rather than integrate with a
				// nonsensical or zero Δt.
				continue
			}

			terminate, err := l.step(dt)
			if err != nil {
				return err
			}
			if terminate {
				return nil
			}
		}
	}
}

// step runs one 8-step iteration and reports whether the loop should stop.
func (l *Loop) step(dt float64) (terminate bool, err error) {
	p := l.cfg.Profile
	rt := l.runtime
	curve := toBatteryCurve(p.OCVCurve)

	iMeas, outcome, raw, ioErr := l.sess.MeasureCurrent()
	if ioErr != nil {
		return l.terminateOnIOError(fmt.Sprintf("measurement I/O failure: %v", ioErr))
	}

	switch outcome {
	case session.ErrorResponse:
		return l.handleFailure(fmt.Sprintf("instrument reported error: %q", raw))
	case session.ParseFailure:
		return l.handleFailure(fmt.Sprintf("unparseable measurement reply: %q", raw))
	}

	// Success.
	rt.consecutiveFailures = 0
	rt.State = Running
	rt.IMeas = iMeas
	rt.TElapsedS += dt

	rt.SOC = battery.IntegrateSOC(rt.SOC, iMeas, dt, p.CapacityAh)
	ocv := battery.InterpolateOCV(curve, rt.SOC)
	vTarget := battery.TerminalVoltage(ocv, iMeas, p.InternalResistanceOhm, p.CutoffVoltage, p.MaxVoltage)
	rt.VFilt = battery.FilterStep(rt.VFilt, vTarget, dt, p.RCTimeConstantMs/1000)

	if rt.VFilt >= p.MaxVoltage {
		rt.VFilt = p.MaxVoltage
	}

	rt.Power = rt.VFilt * iMeas

	rt.voltHist.push(rt.TElapsedS, rt.VFilt)
	rt.currHist.push(rt.TElapsedS, iMeas)
	rt.powerHist.push(rt.TElapsedS, rt.Power)

	if !rt.haveSentVolt || absDiff(rt.VFilt, rt.lastSentVolt) > l.cfg.DeadbandVolts {
		if err := l.sess.SetVoltage(rt.VFilt); err != nil {
			return l.terminateOnIOError(fmt.Sprintf("set voltage failed: %v", err))
		}
		rt.lastSentVolt = rt.VFilt
		rt.haveSentVolt = true
	}

	l.publish()

	if rt.VFilt <= p.CutoffVoltage && iMeas > 0 {
		l.event("normal discharge cutoff reached")
		return true, nil
	}

	return false, nil
}

// handleFailure counts a consecutive transient protocol error (error
// response or unparseable reply) and decides whether it has crossed the
// safety cutoff threshold.
func (l *Loop) handleFailure(message string) (terminate bool, err error) {
	rt := l.runtime
	rt.consecutiveFailures++
	rt.State = Recovering
	l.event(message)

	if rt.consecutiveFailures >= l.cfg.SafetyCutoffErrors {
		l.event(fmt.Sprintf("safety cutoff: %d consecutive measurement failures", rt.consecutiveFailures))
		return true, nil
	}
	return false, nil
}

// terminateOnIOError handles a hard I/O failure (write failed, connection
// reset): fatal for this channel immediately, unlike a transient protocol
// error, which only terminates after accumulating past the safety cutoff.
func (l *Loop) terminateOnIOError(message string) (terminate bool, err error) {
	l.runtime.State = Recovering
	l.event(message)
	return true, nil
}

func (l *Loop) publish() {
	if l.reg != nil {
		l.reg.Publish(l.Snapshot())
	}
}

func (l *Loop) event(message string) {
	if l.reg != nil {
		l.reg.AppendEvent(l.runtime.Channel, message)
	}
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
