package motor

import "focdrive/core"

// RunCascade computes one cycle of the outer position/velocity cascade and
// invokes the current loop with the resulting I_q command (spec §4.5,
// component C7). It must be called once per PH_CURRENT_MEAS signal, after
// Rotor.Update.
//
// Resolved open question (SPEC_FULL.md): motor_dir multiplies I_q_cmd
// before the current-limit clip, matching the firmware's literal
// instruction order. Because the clip is the symmetric ±current_lim, the
// clipped magnitude and the `limited` flag that drives the integrator's
// decay/advance decision below come out the same in either order.
func (m *Motor) RunCascade(vbus float64, pwm core.PwmTimerPair) bool {
	vDes := m.VelSetpoint
	if m.Mode >= ModePosition {
		vDes += m.Cfg.PosGain * (m.PosSetpoint - m.Rotor.PllPos())
	}
	if vDes > m.Cfg.VelLimit {
		vDes = m.Cfg.VelLimit
	}
	if vDes < -m.Cfg.VelLimit {
		vDes = -m.Cfg.VelLimit
	}

	velErr := vDes - m.Rotor.PllVel

	iqCmd := m.CurrentSetpoint
	if m.Mode >= ModeVelocity {
		iqCmd += m.Cfg.VelGain * velErr
	}
	iqCmd += m.VelIntegratorCurrent
	iqCmd *= float64(m.Rotor.MotorDir)

	limited := false
	lim := m.Current.CurrentLim
	if iqCmd > lim {
		iqCmd = lim
		limited = true
	}
	if iqCmd < -lim {
		iqCmd = -lim
		limited = true
	}

	switch {
	case m.Mode < ModeVelocity:
		m.VelIntegratorCurrent = 0
	case limited:
		m.VelIntegratorCurrent *= 0.99
	default:
		m.VelIntegratorCurrent += m.Cfg.VelIntegratorGain * m.Cfg.TCtrl.Seconds() * velErr
	}

	return m.FOCCurrent(0, iqCmd, vbus, pwm)
}
