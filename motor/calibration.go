package motor

import (
	"math"
	"time"

	"focdrive/core"
	"focdrive/foc"
)

// Calibration tuning constants (spec §4.6). These are the firmware's fixed
// identification-loop gains and bounds, not per-motor configuration: every
// motor identifies the same way, just with its own measured R, L and gains
// as the result.
const (
	resistanceKi       = 10.0 // V/s/A
	resistanceDuration = 3 * time.Second
	resistanceMin      = 0.01 // Ω
	resistanceMax      = 1.0  // Ω

	inductanceCycles = 5000
	inductanceMin    = 1e-6   // H
	inductanceMax    = 500e-6 // H

	encoderAlignDuration     = 1 * time.Second
	encoderSweepSteps        = 1024
	encoderDirectionThresh   = 8
	currentBandwidth         = 1000.0 // rad/s
	pllBandwidth             = 1000.0 // rad/s
)

// Calibrate runs the three identification phases in sequence and derives
// controller gains from their results (spec §4.6). It must be called with
// PWM outputs already enabled and the motor otherwise idle; on any failure
// it returns false with m.Error latched by whichever phase failed.
func (m *Motor) Calibrate(pwm core.PwmTimerPair, vbus float64) bool {
	if !m.calibrateResistance(pwm, vbus) {
		return false
	}
	if !m.calibrateInductance(pwm, vbus) {
		return false
	}
	if !m.calibrateEncoder(pwm, vbus) {
		return false
	}

	m.Current.PGain = currentBandwidth * m.PhaseInductance
	m.Current.IGain = (m.PhaseResistance / m.PhaseInductance) * m.Current.PGain

	kp := 2 * pllBandwidth
	if kp*m.Cfg.TCtrl.Seconds() >= 1 {
		m.Error = core.ErrCalibrationTiming
		return false
	}
	m.Rotor.PllKp = kp
	m.Rotor.PllKi = kp * kp / 4

	return true
}

// calibrateResistance injects a current-limited α-axis voltage and
// integrates toward the commanded calibration current (spec §4.6a).
func (m *Motor) calibrateResistance(pwm core.PwmTimerPair, vbus float64) bool {
	iDes := m.Cfg.CalibrationCurrent
	vMax := m.Cfg.CalibrationVoltageMax
	n := int(resistanceDuration / m.Cfg.TCtrl)

	v := 0.0
	saturated := false
	for i := 0; i < n; i++ {
		m.queueVoltage(v, 0, vbus)
		if !m.checkDeadline(pwm, core.ErrPhaseResistanceTiming) {
			return false
		}
		if !m.waitForSample(core.ErrPhaseResistanceTimeout) {
			return false
		}

		ib, ic := m.measuredCurrents()
		alpha, _ := foc.Clarke(ib, ic)
		v += resistanceKi * m.Cfg.TCtrl.Seconds() * (iDes - alpha)

		if v > vMax {
			v = vMax
			saturated = true
		} else if v < -vMax {
			v = -vMax
			saturated = true
		} else {
			saturated = false
		}
	}

	r := v / iDes
	if saturated || r < resistanceMin || r > resistanceMax {
		m.Error = core.ErrPhaseResistanceOutOfRange
		return false
	}
	m.PhaseResistance = r
	return true
}

// calibrateInductance alternates a symmetric low/high α-axis voltage and
// derives L from the resulting current slew rate (spec §4.6b).
func (m *Motor) calibrateInductance(pwm core.PwmTimerPair, vbus float64) bool {
	vHi := m.Cfg.InductanceProbeVoltage
	vLo := -vHi

	var sums [2]float64 // α current summed after each low / high step
	for i := 0; i < inductanceCycles; i++ {
		for j, v := range [2]float64{vLo, vHi} {
			m.queueVoltage(v, 0, vbus)
			if !m.checkDeadline(pwm, core.ErrPhaseInductanceTiming) {
				return false
			}
			if !m.waitForSample(core.ErrPhaseInductanceTimeout) {
				return false
			}
			ib, ic := m.measuredCurrents()
			alpha, _ := foc.Clarke(ib, ic)
			sums[j] += alpha
		}
	}
	sumLo, sumHi := sums[0], sums[1]

	dIdt := (sumHi - sumLo) / (float64(inductanceCycles) * m.Cfg.TCtrl.Seconds())
	if dIdt == 0 {
		m.Error = core.ErrPhaseInductanceOutOfRange
		return false
	}

	l := ((vHi - vLo) / 2) / dIdt
	if l < inductanceMin || l > inductanceMax {
		m.Error = core.ErrPhaseInductanceOutOfRange
		return false
	}
	m.PhaseInductance = l
	return true
}

// calibrateEncoder aligns the rotor to electrical phase zero, then sweeps
// the injected voltage vector's electrical angle across ±2π and back,
// summing the raw encoder counter reading at every step to determine
// motor_dir and the mechanical-to-electrical offset (spec §4.6c).
//
// Grounded on original_source/MotorControl/low_level.c's calib_enc_offset:
// encvaluesum accumulates the *absolute* 16-bit counter value at each of the
// 2*1024 steps (not the step-to-step delta), direction is decided from the
// final counter reading versus the value captured before the lock-in phase,
// and offset is that sum divided by 2*num_steps — preserved exactly rather
// than reinterpreted as a delta/velocity accumulation.
func (m *Motor) calibrateEncoder(pwm core.PwmTimerPair, vbus float64) bool {
	v := m.Cfg.CalibrationCurrent * m.PhaseResistance

	initCount := int32(int16(m.Rotor.Encoder.Count()))

	alignCycles := int(encoderAlignDuration / m.Cfg.TCtrl)
	for i := 0; i < alignCycles; i++ {
		m.queueVoltage(v, 0, vbus)
		if !m.checkDeadline(pwm, core.ErrCalibrationTiming) {
			return false
		}
		if !m.waitForSample(core.ErrEncoderMeasurementTimeout) {
			return false
		}
	}

	const stepAngle = 4 * math.Pi / encoderSweepSteps

	var sum int32

	sweep := func(start, step float64) bool {
		phase := start
		for i := 0; i < encoderSweepSteps; i++ {
			vAlpha, vBeta := foc.InversePark(v, 0, phase)
			m.queueVoltage(vAlpha, vBeta, vbus)
			if !m.checkDeadline(pwm, core.ErrCalibrationTiming) {
				return false
			}
			if !m.waitForSample(core.ErrEncoderMeasurementTimeout) {
				return false
			}

			sum += int32(int16(m.Rotor.Encoder.Count()))
			phase += step
		}
		return true
	}

	if !sweep(-2*math.Pi, stepAngle) {
		return false
	}

	finalCount := int32(int16(m.Rotor.Encoder.Count()))
	switch {
	case finalCount > initCount+encoderDirectionThresh:
		m.Rotor.MotorDir = 1
	case finalCount < initCount-encoderDirectionThresh:
		m.Rotor.MotorDir = -1
	default:
		m.Error = core.ErrEncoderResponse
		return false
	}

	if !sweep(2*math.Pi, -stepAngle) {
		return false
	}

	m.Rotor.EncoderOffset = sum / (2 * encoderSweepSteps)
	return true
}
