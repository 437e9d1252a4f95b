// Package profile loads and validates BatteryProfile documents: the
// externally supplied descriptor of one emulated battery.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// OCVPoint is one (soc, voltage) breakpoint of a battery's open-circuit
// voltage curve.
type OCVPoint struct {
	SOC     float64 `json:"soc"`
	Voltage float64 `json:"voltage"`
}

// BatteryProfile is immutable once loaded.
type BatteryProfile struct {
	Name    string `json:"name"`
	Channel int    `json:"channel"`

	CapacityAh            float64 `json:"capacity_ah"`
	InternalResistanceOhm float64 `json:"internal_resistance_ohm"`

	CurrentLimitDischargeA float64 `json:"current_limit_discharge_a"`
	CurrentLimitChargeA    float64 `json:"current_limit_charge_a"`

	CutoffVoltage float64 `json:"cutoff_voltage"`
	MaxVoltage    float64 `json:"max_voltage"`

	RCTimeConstantMs float64 `json:"rc_time_constant_ms"`
	UpdateIntervalMs float64 `json:"update_interval_ms"`

	OCVCurve []OCVPoint `json:"ocv_curve"`
}

// Violation names one invariant that a profile document failed.
type Violation struct {
	Field   string
	Message string
}

// ValidationError enumerates every violated invariant in one pass.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Message))
	}
	return "profile validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, message string) {
	e.Violations = append(e.Violations, Violation{Field: field, Message: message})
}

func (e *ValidationError) errOrNil() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e
}

// LoadFile reads and validates a BatteryProfile JSON document from disk.
func LoadFile(path string) (*BatteryProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: read %s: %w", path, err)
	}
	p, err := LoadBytes(data)
	if err != nil {
		return nil, fmt.Errorf("profile: %s: %w", path, err)
	}
	return p, nil
}

// LoadBytes validates raw against the strict JSON Schema, unmarshals it,
// canonicalizes the OCV curve to ascending SoC, and runs the domain-level
// checks a schema alone cannot express.
func LoadBytes(raw []byte) (*BatteryProfile, error) {
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var p BatteryProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("profile: decode: %w", err)
	}

	canonicalizeOCV(&p)

	if err := validateDomain(&p); err != nil {
		return nil, err
	}

	return &p, nil
}

// canonicalizeOCV sorts the breakpoints ascending in SoC on load.
func canonicalizeOCV(p *BatteryProfile) {
	sort.SliceStable(p.OCVCurve, func(i, j int) bool {
		return p.OCVCurve[i].SOC < p.OCVCurve[j].SOC
	})
}

// validateDomain checks the cross-field invariants the JSON Schema
// cannot express on its own: cutoff < max, at least two OCV breakpoints
// spanning [0,1] and strictly monotonic in SoC, and OCV voltages within
// [cutoff, max].
func validateDomain(p *BatteryProfile) error {
	ve := &ValidationError{}

	if p.Channel < 1 || p.Channel > 3 {
		ve.add("channel", "must be 1, 2, or 3")
	}
	if p.CapacityAh <= 0 {
		ve.add("capacity_ah", "must be strictly positive")
	}
	if p.InternalResistanceOhm < 0 {
		ve.add("internal_resistance_ohm", "must be >= 0")
	}
	if p.CurrentLimitDischargeA <= 0 {
		ve.add("current_limit_discharge_a", "must be strictly positive")
	}
	if p.CurrentLimitChargeA <= 0 {
		ve.add("current_limit_charge_a", "must be strictly positive")
	}
	if p.CutoffVoltage <= 0 {
		ve.add("cutoff_voltage", "must be strictly positive")
	}
	if p.MaxVoltage <= 0 {
		ve.add("max_voltage", "must be strictly positive")
	}
	if p.CutoffVoltage > 0 && p.MaxVoltage > 0 && p.CutoffVoltage >= p.MaxVoltage {
		ve.add("cutoff_voltage", "must be strictly less than max_voltage")
	}
	if p.RCTimeConstantMs < 0 {
		ve.add("rc_time_constant_ms", "must be >= 0")
	}
	if p.UpdateIntervalMs <= 0 {
		ve.add("update_interval_ms", "must be strictly positive")
	}

	validateOCVCurve(p, ve)

	return ve.errOrNil()
}

func validateOCVCurve(p *BatteryProfile, ve *ValidationError) {
	curve := p.OCVCurve
	if len(curve) < 2 {
		ve.add("ocv_curve", "must have at least two breakpoints")
		return
	}

	for i, pt := range curve {
		if pt.SOC < 0 || pt.SOC > 1 {
			ve.add("ocv_curve", fmt.Sprintf("breakpoint %d: soc %.4f outside [0,1]", i, pt.SOC))
		}
		if p.CutoffVoltage > 0 && p.MaxVoltage > 0 {
			if pt.Voltage < p.CutoffVoltage || pt.Voltage > p.MaxVoltage {
				ve.add("ocv_curve", fmt.Sprintf(
					"breakpoint %d: voltage %.4f outside [cutoff_voltage, max_voltage]", i, pt.Voltage))
			}
		}
	}

	for i := 1; i < len(curve); i++ {
		if curve[i].SOC <= curve[i-1].SOC {
			ve.add("ocv_curve", "soc must be strictly monotonic after canonicalization")
			break
		}
	}

	if curve[0].SOC != 0.0 {
		ve.add("ocv_curve", "must include the soc=0.0 endpoint")
	}
	if curve[len(curve)-1].SOC != 1.0 {
		ve.add("ocv_curve", "must include the soc=1.0 endpoint")
	}
}
