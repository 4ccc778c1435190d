package core

// PWMCounts is a raw compare-register value in timer ticks, 0..Period.
type PWMCounts uint32

// PwmTimerPair is the abstract interface CORE uses to drive the two
// center-aligned, phase-offset PWM timers described in spec §4.1. A
// platform-specific implementation (outside CORE scope, per §1) configures
// the real timer peripherals and satisfies this interface; the two motors in
// a running system share one pair, one timer each.
//
// Following the teacher's HAL-capability idiom (core/pwm_hal.go,
// core/adc_hal.go): an interface, a package singleton set once at startup,
// and a Must* accessor that panics on misuse rather than propagating a nil
// pointer into a hard-real-time path.
type PwmTimerPair interface {
	// Period returns the shared carrier period P, in timer ticks.
	Period() uint32

	// SetCompare writes motor m's (0 or 1) three phase compare registers.
	// Called only from the designated cross-cycle boundary (§4.1).
	SetCompare(motor int, a, b, c PWMCounts)

	// EnableOutputs / DisableOutputs gate the Main Output Enable for one
	// motor's timer — the supervisor's idle/fault transitions (§4.8) and the
	// global fault path (§5) both go through these.
	EnableOutputs(motor int)
	DisableOutputs(motor int)

	// CounterValue returns the current free-running counter for motor m's
	// timer, reflected across top-of-ramp so overruns read above Period
	// (§4.1's timing-log convention).
	CounterValue(motor int) uint32
}

var pwmPair PwmTimerPair

// SetPwmTimerPair is called by target/board bring-up code to register the
// concrete timer pair.
func SetPwmTimerPair(p PwmTimerPair) { pwmPair = p }

// MustPwmTimerPair returns the configured pair or panics if none was wired.
func MustPwmTimerPair() PwmTimerPair {
	if pwmPair == nil {
		panic("core: PwmTimerPair not configured")
	}
	return pwmPair
}

// BrakeChopperPins is the abstract interface for the shared brake-resistor
// chopper's two complementary PWM channels (spec §4.7).
type BrakeChopperPins interface {
	// Period returns the chopper timer's period, in ticks.
	Period() uint32
	// SetCompare writes the low-side (ch3) and high-side (ch4) compare
	// registers. Callers must use the disarm-then-arm sequence from §4.7;
	// this method performs a single raw register write.
	SetCompare(ch3, ch4 uint32)
}

var brakePins BrakeChopperPins

// SetBrakeChopperPins registers the chopper's timer channel pair.
func SetBrakeChopperPins(p BrakeChopperPins) { brakePins = p }

// MustBrakeChopperPins returns the configured chopper pins or panics.
func MustBrakeChopperPins() BrakeChopperPins {
	if brakePins == nil {
		panic("core: BrakeChopperPins not configured")
	}
	return brakePins
}
