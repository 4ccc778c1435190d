package motor

import (
	"context"
	"time"

	"focdrive/core"
)

// supervisorState is the per-motor worker's state machine (spec §4.8,
// component C10).
type supervisorState uint8

const (
	stateIdle supervisorState = iota
	stateCalibrating
	stateRunning
	stateFault
)

// idlePollInterval is the "~100 ms" delay the worker takes between
// revisiting the state machine (spec §4.8: "On every loop exit the worker
// queues zero voltage timings and delays ~100 ms").
const idlePollInterval = 100 * time.Millisecond

// VBusSource returns the current bus voltage, read from the process-wide
// atomic (spec §5: "vbus_voltage ... written by one IRQ, read everywhere").
type VBusSource func() float64

// Run is the motor's long-lived worker (spec §4.8). It owns enable/disable
// of this motor's PWM outputs and never returns until ctx is cancelled.
func (m *Motor) Run(ctx context.Context, pwm core.PwmTimerPair, vbus VBusSource) {
	m.ThreadReady = true
	defer func() { m.ThreadReady = false }()

	state := stateIdle
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		switch state {
		case stateIdle:
			pwm.DisableOutputs(m.Index)
			switch {
			case m.DoCalibration:
				state = stateCalibrating
			case m.CalibrationOK && m.EnableControl:
				state = stateRunning
			}

		case stateCalibrating:
			pwm.EnableOutputs(m.Index)
			if m.Calibrate(pwm, vbus()) {
				m.CalibrationOK = true
				m.DoCalibration = false
				state = stateIdle
			} else {
				pwm.DisableOutputs(m.Index)
				state = stateFault
			}

		case stateRunning:
			m.EnableStepDir = true
			pwm.EnableOutputs(m.Index)
			m.runControlLoop(ctx, pwm, vbus)
			pwm.DisableOutputs(m.Index)
			m.EnableStepDir = false
			if m.EnableControl {
				state = stateFault
			} else {
				state = stateIdle
			}

		case stateFault:
			m.CalibrationOK = false
			m.EnableControl = false
			state = stateIdle
		}

		m.queueVoltage(0, 0, vbus())
		if !sleepContext(ctx, idlePollInterval) {
			return
		}
	}
}

// runControlLoop drives the rotor observer and outer cascade once per
// PH_CURRENT_MEAS signal until the cascade fails, enable_control is
// cleared, or ctx is cancelled (spec §4.8: "run the outer/inner control
// loop until it returns").
func (m *Motor) runControlLoop(ctx context.Context, pwm core.PwmTimerPair, vbus VBusSource) {
	dt := m.Cfg.TCtrl.Seconds()
	for m.EnableControl {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !m.waitForSample(core.ErrFOCMeasurementTimeout) {
			return
		}
		m.Rotor.Update(dt)
		if !m.RunCascade(vbus(), pwm) {
			return
		}
	}
}

// sleepContext blocks for d or until ctx is cancelled, reporting which.
func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
