package motor

import (
	"sync"

	"focdrive/core"
)

// chopperDutyMax caps the brake chopper's on-time so the resistor driver
// never sees a literal 100% duty cycle (spec §4.7).
const chopperDutyMax = 0.9

// chopperDeadtimeTicks is the guard interval between the low-side turn-off
// and the high-side turn-on, in the chopper timer's own tick units (spec
// §4.7, §4.1 Glossary "Dead-time").
const chopperDeadtimeTicks = 20

// Chopper drives the shared brake resistor from the combined bus-current
// estimate of every motor sharing it (spec §4.7, component C9). Regenerated
// current (negative bus current) is dissipated by chopping the resistor
// in proportion to how much current the bus is trying to push back.
type Chopper struct {
	mu sync.Mutex

	pins         core.BrakeChopperPins
	resistorOhms float64
}

// NewChopper constructs a chopper bound to its PWM channel pair and the
// physical resistor value it drives.
func NewChopper(pins core.BrakeChopperPins, resistorOhms float64) *Chopper {
	return &Chopper{pins: pins, resistorOhms: resistorOhms}
}

// Update recomputes and re-arms the chopper's duty cycle from the current
// bus-current estimate (spec §4.7):
//
//	duty = clamp(I_brake * R_brake / V_bus, 0, 0.9)
//	high_on = P * (1 - duty); low_off = high_on - deadtime, clamped >= 0
//
// I_brake is positive when the bus needs to sink current (regeneration).
// ch3 (low side) and ch4 (high side) are first written to a disarmed pair
// (0, P+1) — both switches held off — so an interrupt arriving mid-update
// can never observe a partially-written pair that turns both sides on at
// once; only then are the real low_off/high_on values written.
func (c *Chopper) Update(brakeCurrent, vbus float64) {
	if vbus <= 0 {
		return
	}
	duty := brakeCurrent * c.resistorOhms / vbus
	if duty < 0 {
		duty = 0
	}
	if duty > chopperDutyMax {
		duty = chopperDutyMax
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	period := c.pins.Period()
	highOn := int64(float64(period) * (1 - duty))
	lowOff := highOn - chopperDeadtimeTicks
	if lowOff < 0 {
		lowOff = 0
	}

	c.pins.SetCompare(0, period+1)
	c.pins.SetCompare(uint32(lowOff), uint32(highOn))
}

// ForceOff disarms the chopper — both switches held off — used by global
// fault handling (spec §5: "drives brake duty to 0").
func (c *Chopper) ForceOff() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pins.SetCompare(0, c.pins.Period()+1)
}

// BusAggregator sums the per-motor bus-current estimates reported once per
// current-loop cycle and drives the shared Chopper from the total (spec
// §4.7: "the chopper's target is the negated sum of every motor's
// estimated bus current"). With more than one motor, each motor's report
// re-issues a chopper update computed from whatever the other motor most
// recently reported; a cycle where only one of N motors has reported since
// boot drives the chopper from a stale partner value until both have run at
// least once. That staleness window is inherent to reporting independently
// per motor rather than barrier-synchronizing the current loops, and is
// accepted rather than worked around (spec design notes §9).
type BusAggregator struct {
	mu    sync.Mutex
	ibus  []float64
	brake *Chopper
	vbus  *core.AtomicFloat32
}

// NewBusAggregator constructs an aggregator for n motors sharing brake,
// reading the live bus voltage from vbus.
func NewBusAggregator(n int, brake *Chopper, vbus *core.AtomicFloat32) *BusAggregator {
	return &BusAggregator{ibus: make([]float64, n), brake: brake, vbus: vbus}
}

// Report records motorIndex's latest estimated bus current and drives the
// chopper from the updated sum. Called once per current-loop cycle from
// FOCCurrent.
func (a *BusAggregator) Report(motorIndex int, ibus float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if motorIndex < 0 || motorIndex >= len(a.ibus) {
		return
	}
	a.ibus[motorIndex] = ibus

	sum := 0.0
	for _, v := range a.ibus {
		sum += v
	}
	if a.brake != nil {
		a.brake.Update(-sum, float64(a.vbus.Load()))
	}
}
