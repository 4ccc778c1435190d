// Package motor implements the FOC current loop, cascaded outer control,
// calibration engine, brake chopper and per-motor supervisor described in
// spec §4 (components C2–C10). It depends only on the capability
// interfaces in package core — never on a vendor HAL — per the teacher's
// HAL-capability idiom generalized in SPEC_FULL.md.
package motor

import (
	"sync"
	"time"

	"focdrive/core"
)

// ControlMode is the cascaded-control activation level (spec §4.5). Modes
// are monotonically ordered: Current < Velocity < Position. Entering a
// higher mode activates strictly more outer stages.
type ControlMode uint8

const (
	ModeCurrent ControlMode = iota
	ModeVelocity
	ModePosition
)

// ShuntGain is the reciprocal of the external gate driver's current-sense
// amplifier gain (phase_current_rev_gain: 1/10 for a 10 V/V setting),
// restricted to the four values the DRV8301-class driver supports (spec
// §3, data model for GateDriver).
type ShuntGain float64

const (
	ShuntGain10 ShuntGain = 1.0 / 10
	ShuntGain20 ShuntGain = 1.0 / 20
	ShuntGain40 ShuntGain = 1.0 / 40
	ShuntGain80 ShuntGain = 1.0 / 80
)

// Config holds the static, per-motor parameters fixed at boot (spec §3:
// "constructed once at boot from static configuration"). It is the Go
// analogue of the teacher's JSON-loaded MachineConfig
// (standalone/config/config.go), generalized to motor/encoder constants.
type Config struct {
	Index int `json:"index"`

	PolePairs  int `json:"pole_pairs"`
	EncoderCPR int `json:"encoder_cpr"`

	TCtrl          time.Duration `json:"t_ctrl"`           // control/current-loop period
	CarrierPeriod  uint32        `json:"carrier_period"`   // PWM carrier period, timer ticks
	ControlDeadline uint32       `json:"control_deadline"` // soft per-cycle deadline, ticks; 0 => CarrierPeriod

	ShuntOhms float64   `json:"shunt_ohms"`
	ShuntGain ShuntGain `json:"shunt_gain"`

	CurrentLimit       float64 `json:"current_limit"`
	CalibrationCurrent float64 `json:"calibration_current"`

	CalibrationVoltageMax   float64 `json:"calibration_voltage_max"`
	InductanceProbeVoltage  float64 `json:"inductance_probe_voltage"`

	PosGain            float64 `json:"pos_gain"`
	VelGain            float64 `json:"vel_gain"`
	VelIntegratorGain  float64 `json:"vel_integrator_gain"`
	VelLimit           float64 `json:"vel_limit"`

	// StepSize is how far one step/dir edge moves the position setpoint,
	// in encoder counts.
	StepSize float64 `json:"step_size"`

	BrakeResistorOhms float64 `json:"brake_resistor_ohms"`
}

// ElecRadPerCount converts encoder counts to electrical radians (spec §3:
// elec_rad_per_count = POLE_PAIRS * 2π / ENCODER_CPR).
func (c Config) ElecRadPerCount() float64 {
	const twoPi = 2 * 3.141592653589793
	return float64(c.PolePairs) * twoPi / float64(c.EncoderCPR)
}

// deadline returns the effective per-cycle soft deadline.
func (c Config) deadline() uint32 {
	if c.ControlDeadline != 0 {
		return c.ControlDeadline
	}
	return c.CarrierPeriod
}

// CurrentControl owns the current loop's integrators and bus-current
// estimate (spec §3 data model). |(mod_d, mod_q)| is held to
// 0.80*sqrt(3)/2 by the current loop; integrators decay by 0.99 while
// saturated.
type CurrentControl struct {
	CurrentLim float64
	PGain      float64
	IGain      float64

	VdInt float64
	VqInt float64
	IBus  float64
}

// Rotor owns the quadrature decode and PLL observer state (spec §3, §4.3).
// PllPos is split into an integer count part and a float fractional part
// (design notes §9: the float-only accumulator loses precision at large
// counts; this is a corrected reimplementation, not a behavior change).
type Rotor struct {
	Encoder core.EncoderCounter

	EncoderOffset int32 // counts, set by calibration
	MotorDir      int8  // +1 or -1, set by calibration

	lastCount     uint16
	EncoderState  int32 // unwrapped 32-bit count
	Phase         float64

	PllPosInt  int32
	PllPosFrac float64
	PllVel     float64
	PllKp      float64
	PllKi      float64

	cpr             int32
	elecRadPerCount float64
}

// PllPos reassembles the split PLL position accumulator into one float64,
// for telemetry and for the position cascade's error term.
func (r *Rotor) PllPos() float64 {
	return float64(r.PllPosInt) + r.PllPosFrac
}

// GateDriverConfig is the SPI register image for the external gate-driver
// chip (spec §3, §4.1 C2), modeled the way the pack's register-addressed
// drivers model a chip's configuration (scottfeldman-drivers/tmc5160).
type GateDriverConfig struct {
	Bus core.GateDriverBus

	ShuntAmpGain         ShuntGain
	PhaseCurrentRevGain  float64 // derived from ShuntAmpGain at Configure time
	OCMode               uint8
	OCThresholdMilliVolt uint16
}

// Motor is the single per-axis aggregate the supervisor, sampler and
// current loop all operate on. Field ownership is split exactly as spec §5
// describes: current_meas and DC_calib are written by the ADC-IRQ
// trampoline and read by the motor worker after a PhaseSignal handoff (the
// channel operation is the happens-before edge); next_timings is written by
// the worker and copied out by the orchestrator under timingsMu; the timing
// log is appended to by both. Every other field is single-writer, owned by
// the worker goroutine.
type Motor struct {
	Index int
	Cfg   Config

	// Control state — worker-owned.
	Mode ControlMode

	PosSetpoint     float64
	VelSetpoint     float64
	CurrentSetpoint float64

	VelIntegratorCurrent float64

	PhaseResistance  float64
	PhaseInductance  float64

	CalibrationOK    bool
	DoCalibration    bool
	EnableControl    bool
	ThreadReady      bool
	EnableStepDir    bool

	Current CurrentControl
	Rotor   Rotor
	Gate    GateDriverConfig

	// Bus aggregates this motor's estimated bus current with its siblings'
	// and drives the shared brake chopper (spec §4.7). Nil when the motor
	// is not wired to a chopper (e.g. in isolation tests).
	Bus *BusAggregator

	Error core.ErrorCode

	// IRQ-writer / worker-reader fields. Guarded implicitly by the
	// PhaseSignal happens-before edge for current_meas/DC_calib; Timings
	// guarded by timingsMu because the worker writes it asynchronously with
	// respect to the orchestrator's cross-cycle copy (spec §4.1).
	currentMeasPhB float64
	currentMeasPhC float64
	dcCalibPhB     float64
	dcCalibPhC     float64

	timingsMu sync.Mutex
	timings   [3]core.PWMCounts

	TimingLog core.TimingRing

	LastCPUTime     uint32
	ControlDeadline uint32

	Signal *core.PhaseSignal

	// scratch used by the sampler to hold phB until phC arrives (spec §4.2).
	scratchPhB    float64
	scratchPhBSet bool

	// lastVAlpha/lastVBeta record the most recently queued voltage command,
	// in volts, stationary frame. Not read by any control logic; it exists
	// so a simulated plant driving tests can read back exactly what the
	// current loop or calibration engine just commanded.
	lastVAlpha, lastVBeta float64
}

// NewMotor constructs a motor in its boot-time default state (spec §3:
// "constructed once at boot from static configuration").
func NewMotor(cfg Config, encoder core.EncoderCounter, gate core.GateDriverBus) *Motor {
	m := &Motor{
		Index:           cfg.Index,
		Cfg:             cfg,
		Mode:            ModePosition,
		EnableControl:   true,
		DoCalibration:   true,
		ControlDeadline: cfg.deadline(),
		Signal:          core.NewPhaseSignal(),
	}
	m.Current.CurrentLim = cfg.CurrentLimit
	m.Rotor.Encoder = encoder
	m.Rotor.elecRadPerCount = cfg.ElecRadPerCount()
	m.Rotor.cpr = int32(cfg.EncoderCPR)
	m.Gate.Bus = gate
	m.Gate.ShuntAmpGain = cfg.ShuntGain
	m.Gate.PhaseCurrentRevGain = float64(cfg.ShuntGain)
	return m
}
