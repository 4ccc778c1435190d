package motor

import "focdrive/core"

// calibTau is the DC-offset filter time constant (spec §4.2): τ_cal = 0.2s.
const calibTau = 0.2

// phaseCurrentFromADCValue converts a raw 12-bit injected-conversion code to
// amperes (spec §4.2):
//
//	I = ((code - 2048) * 3.3/4096) * (1/amp_gain) * (1/shunt_Ω)
func phaseCurrentFromADCValue(code core.RawADCCode, shuntGain ShuntGain, shuntOhms float64) float64 {
	const vref = 3.3
	const fullScale = 4096
	volts := (float64(int32(code)-2048) * vref / fullScale)
	// ShuntGain's constants (1/10, 1/20, 1/40, 1/80) already are
	// phase_current_rev_gain == 1/amp_gain (spec §3), so the spec's
	// "(1/amp_gain)" factor is a multiply by ShuntGain here, not a divide.
	return volts * float64(shuntGain) / shuntOhms
}

// OnCurrentSampleB is the ADC2 trampoline (spec §4.2: "B before C"). It runs
// in IRQ context: it must not block, and it touches only this motor's
// scratch/current_meas/dc_calib fields.
func (m *Motor) OnCurrentSampleB(code core.RawADCCode, isDCCal bool) {
	current := phaseCurrentFromADCValue(code, m.Cfg.ShuntGain, m.Cfg.ShuntOhms)
	if isDCCal {
		k := m.Cfg.TCtrl.Seconds() / calibTau
		m.dcCalibPhB += (current - m.dcCalibPhB) * k
		return
	}
	m.scratchPhB = current
	m.scratchPhBSet = true
}

// OnCurrentSampleC is the ADC3 trampoline, always dispatched after ADC2 for
// the same event (spec §4.2, §5: "dispatching ADC2 strictly before ADC3").
// On a real current sample it completes the pair, publishes (Ib, Ic) and
// raises the PhaseSignal; phase A is inferred as -Ib-Ic and never measured.
func (m *Motor) OnCurrentSampleC(code core.RawADCCode, isDCCal bool) {
	current := phaseCurrentFromADCValue(code, m.Cfg.ShuntGain, m.Cfg.ShuntOhms)
	if isDCCal {
		k := m.Cfg.TCtrl.Seconds() / calibTau
		m.dcCalibPhC += (current - m.dcCalibPhC) * k
		return
	}
	if !m.scratchPhBSet {
		// ADC3 arrived without its ADC2 partner: classification failure
		// upstream should have prevented this (spec §4.1); drop the sample
		// defensively rather than publish a half-formed pair.
		return
	}
	m.currentMeasPhB = m.scratchPhB - m.dcCalibPhB
	m.currentMeasPhC = current - m.dcCalibPhC
	m.scratchPhBSet = false

	if m.ThreadReady {
		m.Signal.Raise()
	}
}

// measuredCurrents returns the DC-compensated (Ib, Ic) pair published by the
// sampler. Safe to call only after a successful Signal.Wait (the
// happens-before edge spec §5 relies on).
func (m *Motor) measuredCurrents() (ib, ic float64) {
	return m.currentMeasPhB, m.currentMeasPhC
}
