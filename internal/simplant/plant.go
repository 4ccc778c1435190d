// Package simplant is a minimal R/L/J/back-EMF plant simulator used only by
// motor package tests (spec §8's "boundary scenarios ... executable against
// a simulated plant: R, L, J, back-EMF"). It is not part of CORE's
// production dependency graph.
package simplant

import (
	"math"

	"focdrive/foc"
)

// Plant models one three-phase PMSM electrically and mechanically: a
// resistor-inductor stator winding driven in the stationary αβ frame, with
// torque and back-EMF coupled through the rotor's mechanical state.
type Plant struct {
	R float64 // phase resistance, Ω
	L float64 // phase inductance, H
	J float64 // rotor inertia, kg·m²

	PolePairs int
	Ke        float64 // back-EMF / torque constant, V·s/rad (== N·m/A)

	Ialpha, Ibeta float64 // stator current, stationary frame, A
	Omega         float64 // mechanical angular velocity, rad/s
	Theta         float64 // mechanical angle, rad
}

// New constructs a plant with zero initial electrical and mechanical state.
func New(r, l, j float64, polePairs int, ke float64) *Plant {
	return &Plant{R: r, L: l, J: j, PolePairs: polePairs, Ke: ke}
}

// Step integrates the plant forward by dt given the applied stator voltage
// in the stationary frame and an external load torque, using forward
// Euler. dt should match the control loop's T_ctrl for a representative
// simulation.
func (p *Plant) Step(vAlpha, vBeta, loadTorque, dt float64) {
	thetaE := foc.WrapToTwoPi(float64(p.PolePairs) * p.Theta)
	omegaE := float64(p.PolePairs) * p.Omega

	emfAlpha, emfBeta := foc.InversePark(0, p.Ke*omegaE, thetaE)

	dIalpha := (vAlpha - p.R*p.Ialpha - emfAlpha) / p.L
	dIbeta := (vBeta - p.R*p.Ibeta - emfBeta) / p.L
	p.Ialpha += dIalpha * dt
	p.Ibeta += dIbeta * dt

	_, q := foc.Park(p.Ialpha, p.Ibeta, thetaE)
	torque := float64(p.PolePairs) * p.Ke * q

	domega := (torque - loadTorque) / p.J
	p.Omega += domega * dt
	p.Theta += p.Omega * dt
	if p.Theta > math.Pi*1e6 || p.Theta < -math.Pi*1e6 {
		p.Theta = foc.WrapToTwoPi(p.Theta)
	}
}

// EncoderCount returns the 16-bit quadrature counter value a real encoder
// with the given counts-per-revolution would report for the plant's
// current mechanical angle, free-running (no unwrap).
func (p *Plant) EncoderCount(cpr int) uint16 {
	counts := p.Theta / (2 * math.Pi) * float64(cpr)
	return uint16(int32(math.Round(counts)))
}

// PhaseCurrents returns (Ib, Ic) as a real current sampler would measure
// them, recovered from the plant's internal αβ state.
func (p *Plant) PhaseCurrents() (ib, ic float64) {
	return foc.InverseClarke(p.Ialpha, p.Ibeta)
}

// ADCCode converts a phase current to the raw 12-bit code a real ADC would
// produce through the given shunt amplifier, inverting the current
// sampler's own conversion (spec §4.2) so tests can drive Motor.OnCurrentSampleB/C
// with realistic inputs.
func ADCCode(current float64, shuntGain, shuntOhms float64) uint16 {
	const vref = 3.3
	const fullScale = 4096
	volts := current * shuntOhms / shuntGain
	code := volts*fullScale/vref + 2048
	if code < 0 {
		code = 0
	}
	if code > fullScale-1 {
		code = fullScale - 1
	}
	return uint16(math.Round(code))
}
