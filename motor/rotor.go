package motor

import "focdrive/foc"

// Update decodes the encoder and advances the PLL observer by one control
// period (spec §4.3). It must run on the motor worker, after a successful
// PhaseSignal wait, once per control cycle.
func (r *Rotor) Update(dt float64) {
	count := r.Encoder.Count()
	delta := int32(int16(count) - int16(r.lastCount))
	r.lastCount = count
	r.EncoderState += delta

	cpr := r.cpr
	if cpr == 0 {
		cpr = 1
	}

	corrected := r.EncoderState % cpr
	corrected -= r.EncoderOffset
	corrected *= int32(r.MotorDir)
	r.Phase = foc.WrapToTwoPi(r.elecRadPerCount * float64(corrected))

	// Discrete PLL, position split into (int32 counts, float fraction) to
	// avoid the float accumulator's precision loss at large counts (design
	// notes §9). Invariant: PllPosFrac stays in [0,1); PllPosInt absorbs the
	// carry, so floor(PllPos) == PllPosInt exactly.
	r.PllPosFrac += dt * r.PllVel
	r.normalize()

	err := float64(r.EncoderState - r.PllPosInt)

	r.PllPosFrac += dt * r.PllKp * err
	r.normalize()
	r.PllVel += dt * r.PllKi * err
}

func (r *Rotor) normalize() {
	for r.PllPosFrac >= 1 {
		r.PllPosFrac--
		r.PllPosInt++
	}
	for r.PllPosFrac < 0 {
		r.PllPosFrac++
		r.PllPosInt--
	}
}
