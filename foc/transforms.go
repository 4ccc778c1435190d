// Package foc implements the stateless Clarke/Park/SVM math at the heart of
// the current loop (spec §4.4, component C1). Every function here is pure:
// no hardware, no shared state, so it is exercised directly by table tests.
package foc

import "github.com/orsinium-labs/tinymath"

const oneBySqrt3 = 0.57735026919
const sqrt3 = 1.7320508075688772
const sqrt3By2 = 0.86602540378

// Clarke converts two measured phase currents (B, C — phase A is inferred as
// -Ib-Ic and never measured) into the stationary alpha-beta frame.
func Clarke(ib, ic float64) (alpha, beta float64) {
	alpha = -ib - ic
	beta = oneBySqrt3 * (ib - ic)
	return alpha, beta
}

// InverseClarke recovers (Ib, Ic) from an alpha-beta pair, the exact inverse
// of Clarke given Ia = -Ib-Ic.
func InverseClarke(alpha, beta float64) (ib, ic float64) {
	diff := sqrt3 * beta // Ib - Ic
	ib = 0.5 * (-alpha + diff)
	ic = 0.5 * (-alpha - diff)
	return ib, ic
}

// Park rotates the stationary alpha-beta frame into the rotor-synchronous
// d-q frame using electrical phase angle φ (radians).
func Park(alpha, beta, phase float64) (d, q float64) {
	c, s := cosSin(phase)
	d = c*alpha + s*beta
	q = c*beta - s*alpha
	return d, q
}

// InversePark rotates a d-q pair back into the alpha-beta frame.
func InversePark(d, q, phase float64) (alpha, beta float64) {
	c, s := cosSin(phase)
	alpha = c*d - s*q
	beta = c*q + s*d
	return alpha, beta
}

// cosSin returns (cos, sin) of phase using tinymath's float32 fast trig —
// the same embedded-oriented approximation the pack's tmc5160 stepper
// driver already relies on, standing in for the original firmware's
// CMSIS-DSP arm_cos_f32/arm_sin_f32.
func cosSin(phase float64) (c, s float64) {
	p := float32(phase)
	return float64(tinymath.Cos(p)), float64(tinymath.Sin(p))
}

// WrapToTwoPi reduces an angle to [0, 2π), matching spec §4.3's
// wrap_to_mod_2π.
func WrapToTwoPi(phase float64) float64 {
	const twoPi = 2 * 3.141592653589793
	phase = mod(phase, twoPi)
	if phase < 0 {
		phase += twoPi
	}
	return phase
}

func mod(a, b float64) float64 {
	return a - b*float64(int64(a/b))
}
