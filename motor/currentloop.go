package motor

import (
	"github.com/orsinium-labs/tinymath"

	"focdrive/core"
	"focdrive/foc"
)

const modulationCap = 0.80 * sqrt3By2
const sqrt3By2 = 0.86602540378

// FOCCurrent runs one cycle of the FOC current loop (spec §4.4, component
// C6): Clarke, Park, PI with anti-windup, bus-current estimate and brake
// feed, inverse Park, SVM. It must be called once per control cycle, after
// Rotor.Update, with the caller already holding a valid PhaseSignal wakeup.
//
// Returns false (and sets m.Error) if the per-cycle deadline is blown after
// queueing the new modulation.
func (m *Motor) FOCCurrent(idDes, iqDes, vbus float64, pwm core.PwmTimerPair) bool {
	ib, ic := m.measuredCurrents()
	alpha, beta := foc.Clarke(ib, ic)

	phase := m.Rotor.Phase
	d, q := foc.Park(alpha, beta, phase)

	errD := idDes - d
	errQ := iqDes - q

	vd := m.Current.VdInt + errD*m.Current.PGain
	vq := m.Current.VqInt + errQ*m.Current.PGain

	vfactor := 1.0 / ((2.0 / 3.0) * vbus)
	modD := vfactor * vd
	modQ := vfactor * vq

	mag := sqrtf(modD*modD + modQ*modQ)
	scale := 1.0
	if mag > 1e-12 {
		scale = modulationCap / mag
	}
	if scale < 1.0 {
		modD *= scale
		modQ *= scale
		m.Current.VdInt *= 0.99
		m.Current.VqInt *= 0.99
	} else {
		t := m.Cfg.TCtrl.Seconds()
		m.Current.VdInt += errD * m.Current.IGain * t
		m.Current.VqInt += errQ * m.Current.IGain * t
	}

	m.Current.IBus = modD*d + modQ*q
	if m.Bus != nil {
		m.Bus.Report(m.Index, m.Current.IBus)
	}

	modAlpha, modBeta := foc.InversePark(modD, modQ, phase)
	m.setLastVoltage(modAlpha*(2.0/3.0)*vbus, modBeta*(2.0/3.0)*vbus)
	m.queueModulation(modAlpha, modBeta)

	return m.checkDeadline(pwm, core.ErrFOCTiming)
}

func sqrtf(x float64) float64 {
	return float64(tinymath.Sqrt(float32(x)))
}

// queueModulation converts a normalized alpha-beta modulation vector into
// three duty fractions via SVM and stores them as pending timer compare
// counts (spec §4.4 step 9). Guarded by timingsMu because the orchestrator
// reads m.timings from a different goroutine at the cross-cycle boundary.
func (m *Motor) queueModulation(modAlpha, modBeta float64) {
	tA, tB, tC := foc.SVM(modAlpha, modBeta)
	period := float64(m.Cfg.CarrierPeriod)

	m.timingsMu.Lock()
	m.timings[0] = core.PWMCounts(tA * period)
	m.timings[1] = core.PWMCounts(tB * period)
	m.timings[2] = core.PWMCounts(tC * period)
	m.timingsMu.Unlock()
}

// queueVoltage converts an alpha-beta voltage command to modulation indices
// and queues it, used by the calibration engine's voltage-mode excitation
// (spec §4.6).
func (m *Motor) queueVoltage(vAlpha, vBeta, vbus float64) {
	m.setLastVoltage(vAlpha, vBeta)
	if vbus <= 0 {
		// Bus not sampled yet (or collapsed): the only safe command is the
		// zero vector.
		m.queueModulation(0, 0)
		return
	}
	vfactor := 1.0 / ((2.0 / 3.0) * vbus)
	m.queueModulation(vfactor*vAlpha, vfactor*vBeta)
}

// pendingTimings returns a copy of the next-cycle compare counts, used by
// the orchestrator to copy them into hardware at the cross-cycle boundary.
func (m *Motor) pendingTimings() [3]core.PWMCounts {
	m.timingsMu.Lock()
	defer m.timingsMu.Unlock()
	return m.timings
}

func (m *Motor) setLastVoltage(vAlpha, vBeta float64) {
	m.timingsMu.Lock()
	m.lastVAlpha, m.lastVBeta = vAlpha, vBeta
	m.timingsMu.Unlock()
}

// LastVoltage returns the most recently queued voltage command, in volts,
// stationary frame. Exists for simulation-driven tests to read back exactly
// what the current loop or calibration engine just commanded.
func (m *Motor) LastVoltage() (vAlpha, vBeta float64) {
	m.timingsMu.Lock()
	defer m.timingsMu.Unlock()
	return m.lastVAlpha, m.lastVBeta
}
