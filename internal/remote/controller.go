// Package remote implements the bench-debugging controller: a standalone
// client that opens its own Transport and issues ad-hoc SCPI commands
// using the channel-qualified calling convention, retained here because
// this controller never shares a Transport with a running Simulation
// Loop.
package remote

import (
	"fmt"
	"strconv"
	"strings"
)

// Wire is the minimal transport contract the controller needs.
type Wire interface {
	Send(cmd string) error
	Query(cmd string) (string, error)
}

// Controller issues SCPI commands against one Wire. Queries and output
// switching name their channel explicitly with a "CH1"/"CH2"/"CH3"/"ALL"
// suffix; SetVoltage and SetCurrent instead send INST:NSEL <ch> before
// every write, so unlike internal/session.Session the channel selection
// is not pinned once per connection.
type Controller struct {
	wire Wire
}

// New wraps wire in a Controller.
func New(wire Wire) *Controller {
	return &Controller{wire: wire}
}

func chLabel(channel int) string {
	return fmt.Sprintf("CH%d", channel)
}

// Identify queries *IDN? and returns the raw instrument identity string.
func (c *Controller) Identify() (string, error) {
	return c.wire.Query("*IDN?")
}

// MeasureVoltage queries MEAS:VOLT? for channel.
func (c *Controller) MeasureVoltage(channel int) (float64, error) {
	return c.queryFloat(fmt.Sprintf("MEAS:VOLT? %s", chLabel(channel)))
}

// MeasureCurrent queries MEAS:CURR? for channel.
func (c *Controller) MeasureCurrent(channel int) (float64, error) {
	return c.queryFloat(fmt.Sprintf("MEAS:CURR? %s", chLabel(channel)))
}

// OutputState queries OUTP? for channel, returning true if the output is
// enabled.
func (c *Controller) OutputState(channel int) (bool, error) {
	reply, err := c.wire.Query(fmt.Sprintf("OUTP? %s", chLabel(channel)))
	if err != nil {
		return false, err
	}
	reply = strings.TrimSpace(strings.ToUpper(reply))
	return reply == "ON" || reply == "1", nil
}

// Apply queries APPL? for channel, returning the raw "<range>,<V>,<A>"
// string the instrument reports.
func (c *Controller) Apply(channel int) (string, error) {
	return c.wire.Query(fmt.Sprintf("APPL? %s", chLabel(channel)))
}

// SetOutput sends OUTP <ch>,ON or OUTP <ch>,OFF.
func (c *Controller) SetOutput(channel int, on bool) error {
	state := "OFF"
	if on {
		state = "ON"
	}
	return c.wire.Send(fmt.Sprintf("OUTP %s,%s", chLabel(channel), state))
}

// SetOutputAll sends OUTP ALL,ON or OUTP ALL,OFF.
func (c *Controller) SetOutputAll(on bool) error {
	state := "OFF"
	if on {
		state = "ON"
	}
	return c.wire.Send(fmt.Sprintf("OUTP ALL,%s", state))
}

// SetVoltage sends INST:NSEL <ch> followed by VOLT <v>. This controller
// is never run concurrently against a channel a Supervisor owns, so the
// one-INST:NSEL-per-Transport-lifetime invariant does not apply here.
func (c *Controller) SetVoltage(channel int, volts float64) error {
	if err := c.wire.Send(fmt.Sprintf("INST:NSEL %d", channel)); err != nil {
		return err
	}
	return c.wire.Send(fmt.Sprintf("VOLT %.3f", volts))
}

// SetCurrent sends INST:NSEL <ch> followed by CURR <a>.
func (c *Controller) SetCurrent(channel int, amps float64) error {
	if err := c.wire.Send(fmt.Sprintf("INST:NSEL %d", channel)); err != nil {
		return err
	}
	return c.wire.Send(fmt.Sprintf("CURR %.3f", amps))
}

func (c *Controller) queryFloat(cmd string) (float64, error) {
	reply, err := c.wire.Query(cmd)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil {
		return 0, fmt.Errorf("remote: unparseable reply to %q: %q", cmd, reply)
	}
	return v, nil
}
