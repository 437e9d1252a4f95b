// Package session owns one Transport, runs the instrument initialization
// handshake exactly once, and classifies measurement responses. A Session
// is the sole entity that issues wire commands for its channel.
package session

import (
	"fmt"
	"strconv"
	"strings"
)

// Outcome classifies the result of MeasureCurrent.
type Outcome int

const (
	// Success means the response parsed as a decimal number.
	Success Outcome = iota
	// ErrorResponse means the response contained "error" (any case); the
	// Session has already issued a recovery *CLS.
	ErrorResponse
	// ParseFailure means the response was neither a number nor an error
	// string; no implicit recovery is issued.
	ParseFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case ErrorResponse:
		return "error-response"
	case ParseFailure:
		return "parse-failure"
	default:
		return "unknown"
	}
}

// Wire is the minimal transport contract a Session needs. Implemented by
// *transport.Transport; narrowed here so tests can inject a scripted fake
// without constructing a real socket.
type Wire interface {
	Send(cmd string) error
	Query(cmd string) (string, error)
}

// Logger receives a record of every outgoing command and every reply, in
// the direction-marker shape used by the wire event stream (e.g.
// "CH2 -> VOLT 3.412", "CH2 <- 0.523").
type Logger interface {
	LogWire(direction, payload string)
}

// NopLogger discards wire records. Useful for the remote-control CLI and
// for tests that don't care about the log surface.
type NopLogger struct{}

func (NopLogger) LogWire(string, string) {}

// Session owns one Transport for one instrument channel.
type Session struct {
	wire    Wire
	log     Logger
	channel int

	initialized bool
	nselCount   int // INST:NSEL commands issued; Init adds exactly one per call
}

// New constructs a Session. channel is fixed for the lifetime of this
// Session's Transport.
func New(wire Wire, channel int, log Logger) *Session {
	if log == nil {
		log = NopLogger{}
	}
	return &Session{wire: wire, channel: channel, log: log}
}

// NSELCount reports how many INST:NSEL commands this Session has issued on
// its Transport.
func (s *Session) NSELCount() int { return s.nselCount }

// Init runs the instrument initialization sequence in order: clear status,
// select the channel, disable output, set the discharge current limit,
// enable output. Channel selection is never repeated by this Session after
// Init returns. Re-running Init on a fresh connection is idempotent: it
// always issues the same five commands, so nselCount only ever grows by 1
// per Init call regardless of how many times Init runs.
func (s *Session) Init(currentLimitDischargeA float64) error {
	cmds := []string{
		"*CLS",
		fmt.Sprintf("INST:NSEL %d", s.channel),
		"OUTP OFF",
		fmt.Sprintf("CURR %.3f", currentLimitDischargeA),
		"OUTP ON",
	}

	for _, cmd := range cmds {
		s.log.LogWire("->", cmd)
		if err := s.wire.Send(cmd); err != nil {
			return fmt.Errorf("session: init command %q: %w", cmd, err)
		}
		if strings.HasPrefix(cmd, "INST:NSEL") {
			s.nselCount++
		}
	}

	s.initialized = true
	return nil
}

// SetVoltage sends VOLT <v> with three fractional digits. Channel-
// unqualified, because channel selection was pinned once in Init.
func (s *Session) SetVoltage(v float64) error {
	cmd := fmt.Sprintf("VOLT %.3f", v)
	s.log.LogWire("->", cmd)
	if err := s.wire.Send(cmd); err != nil {
		return fmt.Errorf("session: set voltage: %w", err)
	}
	return nil
}

// MeasureCurrent queries MEAS:CURR? and classifies the reply. A non-nil
// error means a hard I/O failure occurred (terminal for the channel); in
// that case outcome is meaningless.
func (s *Session) MeasureCurrent() (value float64, outcome Outcome, raw string, err error) {
	const cmd = "MEAS:CURR?"
	s.log.LogWire("->", cmd)
	reply, ioErr := s.wire.Query(cmd)
	if ioErr != nil {
		return 0, ParseFailure, "", fmt.Errorf("session: measure current: %w", ioErr)
	}
	s.log.LogWire("<-", reply)

	trimmed := strings.TrimSpace(reply)

	if v, perr := strconv.ParseFloat(trimmed, 64); perr == nil {
		return v, Success, trimmed, nil
	}

	if strings.Contains(strings.ToLower(trimmed), "error") {
		if clsErr := s.sendCLS(); clsErr != nil {
			return 0, ErrorResponse, trimmed, clsErr
		}
		return 0, ErrorResponse, trimmed, nil
	}

	return 0, ParseFailure, trimmed, nil
}

func (s *Session) sendCLS() error {
	const cmd = "*CLS"
	s.log.LogWire("->", cmd)
	if err := s.wire.Send(cmd); err != nil {
		return fmt.Errorf("session: recovery *CLS: %w", err)
	}
	return nil
}

// Shutdown commands the output off. Every exit path out of a Simulation
// Loop, normal or exceptional, must call this before the Transport closes.
func (s *Session) Shutdown() error {
	const cmd = "OUTP OFF"
	s.log.LogWire("->", cmd)
	if err := s.wire.Send(cmd); err != nil {
		return fmt.Errorf("session: shutdown: %w", err)
	}
	return nil
}
