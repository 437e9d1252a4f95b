// Package battery is the pure-function battery model: SoC->OCV
// interpolation, terminal voltage under load, the first-order voltage
// filter, and coulomb integration. Nothing in this package performs I/O
// or holds mutable state across calls.
package battery

// OCVPoint is one breakpoint of a SoC->OCV curve.
type OCVPoint struct {
	SOC     float64
	Voltage float64
}

// InterpolateOCV returns the open-circuit voltage at soc, given curve
// ascending in SOC. Outside [soc_min, soc_max] the nearest endpoint
// voltage is returned; inside, linear interpolation between the
// bracketing pair.
func InterpolateOCV(curve []OCVPoint, soc float64) float64 {
	if len(curve) == 0 {
		return 0
	}
	if len(curve) == 1 {
		return curve[0].Voltage
	}

	min, max := curve[0], curve[len(curve)-1]
	if soc <= min.SOC {
		return min.Voltage
	}
	if soc >= max.SOC {
		return max.Voltage
	}

	for i := 0; i < len(curve)-1; i++ {
		lo, hi := curve[i], curve[i+1]
		if soc >= lo.SOC && soc < hi.SOC {
			t := (soc - lo.SOC) / (hi.SOC - lo.SOC)
			return lo.Voltage + t*(hi.Voltage-lo.Voltage)
		}
	}
	return max.Voltage
}

// TerminalVoltage computes OCV - i*R, clamped to [cutoff, max]. Positive
// current is discharge, which reduces terminal voltage.
func TerminalVoltage(ocv, iMeas, internalResistanceOhm, cutoffVoltage, maxVoltage float64) float64 {
	v := ocv - iMeas*internalResistanceOhm
	if v < cutoffVoltage {
		return cutoffVoltage
	}
	if v > maxVoltage {
		return maxVoltage
	}
	return v
}

// FilterStep advances the first-order low-pass filter by one step of dt
// seconds toward vTarget, with time constant tauSeconds. tau=0 means the
// filter is disabled (direct assignment); this must not divide by zero.
func FilterStep(vFilt, vTarget, dtSeconds, tauSeconds float64) float64 {
	if tauSeconds <= 0 {
		return vTarget
	}
	alpha := dtSeconds / (tauSeconds + dtSeconds)
	return vFilt + alpha*(vTarget-vFilt)
}

// IntegrateSOC advances state of charge by one step given the measured
// current and elapsed time, clamped to [0,1]. Positive current depletes
// SoC.
func IntegrateSOC(soc, iMeas, dtSeconds, capacityAh float64) float64 {
	if capacityAh <= 0 {
		return soc
	}
	next := soc - iMeas*dtSeconds/(3600*capacityAh)
	return Clamp01(next)
}

// Clamp01 clamps x to [0,1].
func Clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
