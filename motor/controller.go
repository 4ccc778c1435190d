package motor

import (
	"context"
	"errors"
	"fmt"

	"focdrive/core"
)

// vbusADCRefVolts and vbusADCFullScaleCounts convert the VBus ADC's raw
// 12-bit code the same way the phase-current ADC is converted (spec §4.2's
// formula, generalized to the bus-voltage channel); vbusDividerRatio
// accounts for the board's resistive divider ahead of the ADC pin.
const (
	vbusADCRefVolts       = 3.3
	vbusADCFullScaleCounts = 4096
)

// Controller aggregates every motor sharing one process: the PWM timer
// pair, the timing orchestrator, the brake chopper and bus-current
// aggregator, the atomic bus-voltage cell, and the exposed scalar table
// (spec §2 data flow, §5 shared-resource policy, §6 exposed scalars).
type Controller struct {
	Motors  []*Motor
	PWM     core.PwmTimerPair
	Brake   *Chopper
	Bus     *BusAggregator
	Scalars *core.ScalarTable

	vbusDividerRatio float64
	vbus             core.AtomicFloat32
	orchestrator     *Orchestrator
}

// NewController wires a fixed set of motors to their shared PWM timer pair
// and brake chopper, and publishes their scalars into one table (spec §3:
// "the set of motors is a fixed-size ordered sequence known at startup").
func NewController(pwm core.PwmTimerPair, brakePins core.BrakeChopperPins, vbusDividerRatio float64, motors []*Motor) (*Controller, error) {
	orch, err := NewOrchestrator(pwm, motors)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		Motors:           motors,
		PWM:              pwm,
		Scalars:          core.NewScalarTable(),
		vbusDividerRatio: vbusDividerRatio,
		orchestrator:     orch,
	}

	brakeResistorOhms := 0.0
	if len(motors) > 0 {
		brakeResistorOhms = motors[0].Cfg.BrakeResistorOhms
	}
	c.Brake = NewChopper(brakePins, brakeResistorOhms)
	c.Bus = NewBusAggregator(len(motors), c.Brake, &c.vbus)
	for _, m := range motors {
		m.Bus = c.Bus
	}

	c.registerScalars()
	return c, nil
}

// VBus returns the most recently sampled bus voltage.
func (c *Controller) VBus() float64 {
	return float64(c.vbus.Load())
}

// OnCurrentSample is the ADC-done IRQ trampoline for phase-current
// conversions (spec §4.1, §5). adc is 0 for the first-dispatched channel
// (phase B) and 1 for the second (phase C). A classification failure here
// is a global fault (spec §7): PWM_SRC_FAIL for a broken top/bottom
// alternation, ADC_FAILED for everything else.
func (c *Controller) OnCurrentSample(motorIdx, adc int, countingDown bool, code core.RawADCCode) {
	if err := c.orchestrator.OnADCEvent(motorIdx, adc, countingDown, code); err != nil {
		fault := core.ErrADCFailed
		var ec core.ErrorCode
		if errors.As(err, &ec) {
			fault = ec
		}
		c.raiseGlobalFault(fault)
	}
}

// OnVBusSample is the VBus ADC IRQ trampoline (spec §5: "writes the
// process-wide vbus_voltage atomically").
func (c *Controller) OnVBusSample(code core.RawADCCode) {
	volts := (float64(code) * vbusADCRefVolts / vbusADCFullScaleCounts) * c.vbusDividerRatio
	c.vbus.Store(float32(volts))
}

// OnStep is the step/dir GPIO IRQ trampoline (spec §5): it moves the
// motor's position setpoint by one configured step, in the signed direction
// of the DIR pin. Steps for a motor whose supervisor hasn't armed step input
// are dropped; a step from a source that maps to no configured motor is a
// global fault (spec §7: UNEXPECTED_STEP_SRC).
func (c *Controller) OnStep(motorIdx int, forward bool) {
	if motorIdx < 0 || motorIdx >= len(c.Motors) {
		c.raiseGlobalFault(core.ErrUnexpectedStepSrc)
		return
	}
	m := c.Motors[motorIdx]
	if !m.EnableStepDir {
		return
	}
	if forward {
		m.PosSetpoint += m.Cfg.StepSize
	} else {
		m.PosSetpoint -= m.Cfg.StepSize
	}
}

// raiseGlobalFault disables every motor's PWM outputs, latches code on each
// motor, clears enable_control/calibration_ok, and zeros the brake (spec
// §5: "Global fault ... disables Main Output Enable on all motor PWM
// timers immediately").
func (c *Controller) raiseGlobalFault(code core.ErrorCode) {
	for _, m := range c.Motors {
		c.PWM.DisableOutputs(m.Index)
		m.Error = code
		m.EnableControl = false
		m.CalibrationOK = false
	}
	c.Brake.ForceOff()
}

// Run launches every motor's worker and blocks until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	done := make(chan struct{}, len(c.Motors))
	vbus := c.VBus
	for _, m := range c.Motors {
		go func(m *Motor) {
			m.Run(ctx, c.PWM, vbus)
			done <- struct{}{}
		}(m)
	}
	for range c.Motors {
		<-done
	}
}

// registerScalars publishes every motor's setpoints, gains, measured
// parameters and status flags, plus the shared bus voltage, into the
// exposed scalar table (spec §6).
func (c *Controller) registerScalars() {
	c.Scalars.Register(core.ScalarFloat, core.ScalarBinding{
		Name:     "vbus_voltage",
		ReadOnly: true,
		Get:      c.VBus,
	})

	for _, m := range c.Motors {
		registerMotorScalars(c.Scalars, m)
	}
}

func registerMotorScalars(t *core.ScalarTable, m *Motor) {
	prefix := fmt.Sprintf("motor[%d].", m.Index)

	t.Register(core.ScalarFloat, core.ScalarBinding{
		Name: prefix + "pos_setpoint",
		Get:  func() float64 { return m.PosSetpoint },
		Set:  func(v float64) { m.PosSetpoint = v; m.Mode = ModePosition },
	})
	t.Register(core.ScalarFloat, core.ScalarBinding{
		Name: prefix + "vel_setpoint",
		Get:  func() float64 { return m.VelSetpoint },
		Set:  func(v float64) { m.VelSetpoint = v; m.Mode = ModeVelocity },
	})
	t.Register(core.ScalarFloat, core.ScalarBinding{
		Name: prefix + "current_setpoint",
		Get:  func() float64 { return m.CurrentSetpoint },
		Set:  func(v float64) { m.CurrentSetpoint = v; m.Mode = ModeCurrent },
	})
	t.Register(core.ScalarFloat, core.ScalarBinding{
		Name: prefix + "pos_gain",
		Get:  func() float64 { return m.Cfg.PosGain },
		Set:  func(v float64) { m.Cfg.PosGain = v },
	})
	t.Register(core.ScalarFloat, core.ScalarBinding{
		Name: prefix + "vel_gain",
		Get:  func() float64 { return m.Cfg.VelGain },
		Set:  func(v float64) { m.Cfg.VelGain = v },
	})
	t.Register(core.ScalarFloat, core.ScalarBinding{
		Name: prefix + "vel_integrator_gain",
		Get:  func() float64 { return m.Cfg.VelIntegratorGain },
		Set:  func(v float64) { m.Cfg.VelIntegratorGain = v },
	})
	t.Register(core.ScalarFloat, core.ScalarBinding{
		Name: prefix + "vel_limit",
		Get:  func() float64 { return m.Cfg.VelLimit },
		Set:  func(v float64) { m.Cfg.VelLimit = v },
	})
	t.Register(core.ScalarFloat, core.ScalarBinding{
		Name: prefix + "current_lim",
		Get:  func() float64 { return m.Current.CurrentLim },
		Set:  func(v float64) { m.Current.CurrentLim = v },
	})
	t.Register(core.ScalarFloat, core.ScalarBinding{
		Name:     prefix + "phase_resistance",
		ReadOnly: true,
		Get:      func() float64 { return m.PhaseResistance },
	})
	t.Register(core.ScalarFloat, core.ScalarBinding{
		Name:     prefix + "phase_inductance",
		ReadOnly: true,
		Get:      func() float64 { return m.PhaseInductance },
	})
	t.Register(core.ScalarFloat, core.ScalarBinding{
		Name:     prefix + "current_meas_phB",
		ReadOnly: true,
		Get:      func() float64 { return m.currentMeasPhB },
	})
	t.Register(core.ScalarFloat, core.ScalarBinding{
		Name:     prefix + "current_meas_phC",
		ReadOnly: true,
		Get:      func() float64 { return m.currentMeasPhC },
	})
	t.Register(core.ScalarFloat, core.ScalarBinding{
		Name:     prefix + "dc_calib_phB",
		ReadOnly: true,
		Get:      func() float64 { return m.dcCalibPhB },
	})
	t.Register(core.ScalarFloat, core.ScalarBinding{
		Name:     prefix + "dc_calib_phC",
		ReadOnly: true,
		Get:      func() float64 { return m.dcCalibPhC },
	})
	t.Register(core.ScalarFloat, core.ScalarBinding{
		Name:     prefix + "rotor_phase",
		ReadOnly: true,
		Get:      func() float64 { return m.Rotor.Phase },
	})
	t.Register(core.ScalarFloat, core.ScalarBinding{
		Name:     prefix + "pll_pos",
		ReadOnly: true,
		Get:      func() float64 { return m.Rotor.PllPos() },
	})
	t.Register(core.ScalarFloat, core.ScalarBinding{
		Name:     prefix + "pll_vel",
		ReadOnly: true,
		Get:      func() float64 { return m.Rotor.PllVel },
	})
	t.Register(core.ScalarFloat, core.ScalarBinding{
		Name:     prefix + "i_bus",
		ReadOnly: true,
		Get:      func() float64 { return m.Current.IBus },
	})

	t.Register(core.ScalarInt, core.ScalarBinding{
		Name:     prefix + "error",
		ReadOnly: true,
		Get:      func() float64 { return float64(m.Error) },
	})
	t.Register(core.ScalarUint16, core.ScalarBinding{
		Name:     prefix + "control_deadline",
		ReadOnly: true,
		Get:      func() float64 { return float64(m.ControlDeadline) },
	})
	t.Register(core.ScalarUint16, core.ScalarBinding{
		Name:     prefix + "last_cpu_time",
		ReadOnly: true,
		Get:      func() float64 { return float64(m.LastCPUTime) },
	})
	t.Register(core.ScalarUint16, core.ScalarBinding{
		Name: prefix + "oc_threshold_mv",
		Get:  func() float64 { return float64(m.Gate.OCThresholdMilliVolt) },
		Set:  func(v float64) { m.Gate.OCThresholdMilliVolt = uint16(v) },
	})

	t.Register(core.ScalarBool, core.ScalarBinding{
		Name:     prefix + "calibration_ok",
		ReadOnly: true,
		Get:      func() float64 { return boolToFloat(m.CalibrationOK) },
	})
	t.Register(core.ScalarBool, core.ScalarBinding{
		Name: prefix + "do_calibration",
		Get:  func() float64 { return boolToFloat(m.DoCalibration) },
		Set:  func(v float64) { m.DoCalibration = v != 0 },
	})
	t.Register(core.ScalarBool, core.ScalarBinding{
		Name: prefix + "enable_control",
		Get:  func() float64 { return boolToFloat(m.EnableControl) },
		Set:  func(v float64) { m.EnableControl = v != 0 },
	})
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
