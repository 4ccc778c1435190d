package motor

import (
	"time"

	"focdrive/core"
	"focdrive/internal/simplant"
)

// fakePWM is a PwmTimerPair test double whose CounterValue call doubles as
// the lockstep synchronisation point between a worker goroutine under test
// and the test's simulated plant: every control cycle reads the counter
// exactly once (via checkDeadline), right before it blocks on the phase
// signal, so blocking the send there gives the test a deterministic place
// to step the plant and inject the next current sample.
type fakePWM struct {
	period  uint32
	counter uint32 // value CounterValue reports; 0 unless a test sets it
	sync    chan struct{}

	enabled [2]bool
}

func newFakePWM() *fakePWM {
	return &fakePWM{period: 4000, sync: make(chan struct{})}
}

func (p *fakePWM) Period() uint32                                 { return p.period }
func (p *fakePWM) SetCompare(motorIdx int, a, b, c core.PWMCounts) {}
func (p *fakePWM) EnableOutputs(motorIdx int)                      { p.enabled[motorIdx] = true }
func (p *fakePWM) DisableOutputs(motorIdx int)                     { p.enabled[motorIdx] = false }

// CounterValue blocks until the test driver receives, giving true lockstep
// with no polling or sleeps.
func (p *fakePWM) CounterValue(motorIdx int) uint32 {
	p.sync <- struct{}{}
	return p.counter
}

type fakeEncoder struct {
	plant *simplant.Plant
	cpr   int
}

func (e fakeEncoder) Count() uint16 { return e.plant.EncoderCount(e.cpr) }

type fakeGateBus struct{}

func (fakeGateBus) WriteRegister(addr uint8, value uint16) error { return nil }
func (fakeGateBus) ReadRegister(addr uint8) (uint16, error)      { return 0, nil }

type fakeBrakePins struct {
	period      uint32
	lastCh3     uint32
	lastCh4     uint32
	writes      [][2]uint32
}

func (p *fakeBrakePins) Period() uint32 { return p.period }
func (p *fakeBrakePins) SetCompare(ch3, ch4 uint32) {
	p.lastCh3, p.lastCh4 = ch3, ch4
	p.writes = append(p.writes, [2]uint32{ch3, ch4})
}

// testConfig builds a Config representative of a small hobby gimbal motor,
// matching the magnitudes used in spec §8's boundary scenarios.
func testConfig() Config {
	return Config{
		Index:                  0,
		PolePairs:              7,
		EncoderCPR:             2400,
		TCtrl:                  125 * time.Microsecond,
		CarrierPeriod:          4000,
		ShuntOhms:              0.01,
		ShuntGain:              ShuntGain20,
		CurrentLimit:           10,
		CalibrationCurrent:     5,
		CalibrationVoltageMax:  2,
		InductanceProbeVoltage: 1,
		PosGain:                10,
		VelGain:                0.02,
		VelIntegratorGain:      0.01,
		VelLimit:               2000,
		BrakeResistorOhms:      2,
	}
}

// plantDriver wires a simplant.Plant to a motor under test through
// fakePWM's lockstep channel: every time the worker goroutine reads the PWM
// counter, the driver steps the plant by one control period using whatever
// voltage the worker most recently queued, then feeds the resulting phase
// currents back in through the same ADC-conversion path real hardware
// would use.
type plantDriver struct {
	m     *Motor
	plant *simplant.Plant
	pwm   *fakePWM
	dt    float64
}

func newPlantDriver(m *Motor, plant *simplant.Plant) *plantDriver {
	return &plantDriver{m: m, plant: plant, pwm: newFakePWM(), dt: m.Cfg.TCtrl.Seconds()}
}

// pump services exactly one control-cycle's worth of PWM-counter reads
// (there may be more than one per cycle if the caller also calls
// checkDeadline outside of queueVoltage/queueModulation, which none of the
// current code paths do) and injects one current sample, unblocking the
// worker's waitForSample.
func (d *plantDriver) pump() {
	<-d.pwm.sync
	va, vb := d.m.LastVoltage()
	d.plant.Step(va, vb, 0, d.dt)
	d.injectSample()
}

func (d *plantDriver) injectSample() {
	ib, ic := d.plant.PhaseCurrents()
	gain := float64(d.m.Cfg.ShuntGain)
	codeB := simplant.ADCCode(ib, gain, d.m.Cfg.ShuntOhms)
	codeC := simplant.ADCCode(ic, gain, d.m.Cfg.ShuntOhms)
	d.m.OnCurrentSampleB(core.RawADCCode(codeB), false)
	d.m.OnCurrentSampleC(core.RawADCCode(codeC), false)
}

// pumpN services n control cycles in sequence.
func (d *plantDriver) pumpN(n int) {
	for i := 0; i < n; i++ {
		d.pump()
	}
}

// run starts f (one of the motor's blocking calibration/control routines)
// on its own goroutine and returns a channel that receives its result.
func run(f func() bool) <-chan bool {
	out := make(chan bool, 1)
	go func() { out <- f() }()
	return out
}
