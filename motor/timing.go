package motor

import (
	"fmt"
	"time"

	"focdrive/core"
)

// measurementTimeoutCycles bounds how many control periods a worker waits
// on PH_CURRENT_MEAS before declaring lost PWM/ADC synchronisation (spec
// §5: "blocking waits ... use a bounded timeout").
const measurementTimeoutCycles = 10

// measurementTimeout returns PH_CURRENT_MEAS_TIMEOUT for this motor's
// configured control period.
func (m *Motor) measurementTimeout() time.Duration {
	return measurementTimeoutCycles * m.Cfg.TCtrl
}

// waitForSample blocks for one PhaseSignal edge, latching errCode and
// returning false on timeout (spec §5).
func (m *Motor) waitForSample(errCode core.ErrorCode) bool {
	if !m.Signal.Wait(m.measurementTimeout()) {
		m.Error = errCode
		return false
	}
	return true
}

// recordTiming samples the PWM counter and appends it to the motor's
// post-mortem ring (spec §4.1, §8: every ADC-IRQ classification and every
// control-loop completion records a sample, regardless of whether that
// sample turns out to miss the deadline).
func (m *Motor) recordTiming(pwm core.PwmTimerPair) uint32 {
	t := pwm.CounterValue(m.Index)
	m.TimingLog.Record(t)
	m.LastCPUTime = t
	return t
}

// checkDeadline records a timing sample and compares it against the
// motor's soft per-cycle deadline, setting errCode on overrun (spec §4.4
// step 10, §4.6: both the current loop and the calibration engine's timed
// sub-phases call this immediately after queueing a new modulation).
func (m *Motor) checkDeadline(pwm core.PwmTimerPair, errCode core.ErrorCode) bool {
	t := m.recordTiming(pwm)
	if t >= m.ControlDeadline {
		m.Error = errCode
		return false
	}
	return true
}

// Orchestrator classifies ADC-done interrupts into (motor, current sample
// vs. DC-calibration sample) pairs and copies each motor's queued
// modulation into hardware at the cross-cycle boundary (spec §4.1,
// component C3). It is the only piece of CORE that knows the fixed
// two-timer, phase-shifted hookup; everything downstream of it talks only
// in terms of "a current sample arrived" or "a DC-cal sample arrived".
type Orchestrator struct {
	pwm    core.PwmTimerPair
	motors []*Motor

	// Per-motor classification history: the top and bottom triggers strictly
	// alternate, so two same-direction events in a row mean the trigger
	// source is misbehaving (spec §4.1: "transitions invalid to this
	// classification raise a global fault").
	seen      [2]bool
	lastDCCal [2]bool
}

// NewOrchestrator builds an orchestrator for 1 or 2 motors. The fixed
// hardware hookup this models — two center-aligned PWM timers 180° out of
// phase, each triggering its own pair of injected ADC conversions — only
// has a defined cross-load partner for exactly two motors; a single motor
// loads on its own edge instead, and any other count is rejected up front
// rather than silently indexing past the motor slice (spec design notes §9: "validate N against the compile-time
// configuration and reject inconsistencies").
func NewOrchestrator(pwm core.PwmTimerPair, motors []*Motor) (*Orchestrator, error) {
	if len(motors) < 1 || len(motors) > 2 {
		return nil, fmt.Errorf("motor: timing orchestrator supports 1 or 2 motors, got %d", len(motors))
	}
	return &Orchestrator{pwm: pwm, motors: motors}, nil
}

// OnADCEvent is the ADC-done IRQ trampoline (spec §4.1, §5). motorIdx
// identifies which timer's injected conversion triggered (0 or 1); adc
// distinguishes the two channels dispatched for that trigger (0 = phase B,
// always dispatched first; 1 = phase C); countingDown reports the PWM
// counter's direction at the moment of the trigger. It must not block.
func (o *Orchestrator) OnADCEvent(motorIdx, adc int, countingDown bool, code core.RawADCCode) error {
	if motorIdx < 0 || motorIdx >= len(o.motors) {
		return fmt.Errorf("motor: ADC event for unconfigured motor %d", motorIdx)
	}
	if adc != 0 && adc != 1 {
		return fmt.Errorf("motor: ADC event on unknown channel %d", adc)
	}

	m := o.motors[motorIdx]
	// A trigger while counting down just sampled the zero vector (DC
	// offset); a trigger while counting up just finished counting down
	// through the real vector, i.e. a genuine phase-current sample.
	isDCCal := countingDown

	if adc == 0 {
		// Both channels of one trigger share a direction; alternation is
		// checked once per trigger, on the first-dispatched channel.
		if o.seen[motorIdx] && o.lastDCCal[motorIdx] == isDCCal {
			return fmt.Errorf("motor: repeated %s trigger for motor %d: %w",
				directionName(isDCCal), motorIdx, core.ErrPWMSrcFail)
		}
		o.seen[motorIdx] = true
		o.lastDCCal[motorIdx] = isDCCal
		m.OnCurrentSampleB(code, isDCCal)
	} else {
		m.OnCurrentSampleC(code, isDCCal)
	}
	m.recordTiming(o.pwm)

	o.maybeCrossLoad(motorIdx, adc, isDCCal)
	return nil
}

// maybeCrossLoad copies a motor's pending modulation into hardware on the
// first dispatched ADC channel of a designated trigger, so a vector is never
// torn mid-output. With two motors each motor loads on a sibling edge:
// motor 0's timings on motor 1's DC-cal edge, motor 1's timings on motor 0's
// current-sample edge (spec §4.1); with one motor there is no sibling edge
// to piggyback on, so it loads on its own current-sample edge instead.
func (o *Orchestrator) maybeCrossLoad(motorIdx, adc int, isDCCal bool) {
	if adc != 0 {
		return
	}
	if len(o.motors) == 2 {
		switch {
		case motorIdx == 1 && isDCCal:
			o.applyTimings(0)
		case motorIdx == 0 && !isDCCal:
			o.applyTimings(1)
		}
		return
	}
	if motorIdx == 0 && !isDCCal {
		o.applyTimings(0)
	}
}

func directionName(isDCCal bool) string {
	if isDCCal {
		return "zero-vector"
	}
	return "current-sample"
}

// applyTimings copies motor i's pending compare counts into the PWM timer.
func (o *Orchestrator) applyTimings(i int) {
	m := o.motors[i]
	t := m.pendingTimings()
	o.pwm.SetCompare(m.Index, t[0], t[1], t[2])
}
