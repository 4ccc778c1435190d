package motor

import (
	"math"
	"testing"

	"focdrive/core"
	"focdrive/internal/simplant"
)

// newTestMotor builds a motor driving a simulated R-L-J plant, used by the
// resistance and inductance identification tests where the electrical
// dynamics themselves are what's under test.
func newTestMotor(cfg Config, r, l float64) (*Motor, *simplant.Plant) {
	plant := simplant.New(r, l, 1e-5, cfg.PolePairs, 0.02)
	enc := fakeEncoder{plant: plant, cpr: cfg.EncoderCPR}
	m := NewMotor(cfg, enc, fakeGateBus{})
	m.ThreadReady = true
	return m, plant
}

// trackingEncoder models an idealized, infinitely-stiff rotor that always
// sits exactly at the electrical angle of the most recently commanded
// voltage vector — calibrateEncoder (spec §4.6c) only ever reads the
// encoder counter, never phase currents, so this is sufficient to exercise
// its direction/offset math deterministically without the numerical-
// stability concerns of integrating an undamped mechanical plant through a
// slow open sweep. It unwraps atan2's principal range by tracking the
// smallest-angle delta between calls, which is valid because the sweep's
// per-step angle change (spec's 4π/1024) is far below π.
type trackingEncoder struct {
	m         *Motor
	cpr       int32
	polePairs int
	invert    bool

	haveLast  bool
	lastRaw   float64
	unwrapped float64
}

func (e *trackingEncoder) Count() uint16 {
	va, vb := e.m.LastVoltage()
	raw := 0.0
	if va != 0 || vb != 0 {
		raw = math.Atan2(vb, va)
	} else if e.haveLast {
		raw = e.lastRaw
	}
	if e.haveLast {
		delta := raw - e.lastRaw
		for delta > math.Pi {
			delta -= 2 * math.Pi
		}
		for delta < -math.Pi {
			delta += 2 * math.Pi
		}
		e.unwrapped += delta
	}
	e.lastRaw = raw
	e.haveLast = true

	mechAngle := e.unwrapped / float64(e.polePairs)
	counts := mechAngle / (2 * math.Pi) * float64(e.cpr)
	if e.invert {
		counts = -counts
	}
	return uint16(int32(math.Round(counts)))
}

func newEncoderTestMotor(cfg Config, invert bool) *Motor {
	enc := &trackingEncoder{polePairs: cfg.PolePairs, cpr: int32(cfg.EncoderCPR), invert: invert}
	m := NewMotor(cfg, enc, fakeGateBus{})
	enc.m = m
	m.ThreadReady = true
	m.PhaseResistance = 0.1
	return m
}

// pumpDummySamples services n control cycles with a fixed mid-scale ADC
// reading, used where the motor under test never reads measured current
// (calibrateEncoder).
func pumpDummySamples(pwm *fakePWM, m *Motor, n int) {
	for i := 0; i < n; i++ {
		<-pwm.sync
		m.OnCurrentSampleB(2048, false)
		m.OnCurrentSampleC(2048, false)
	}
}

func TestCalibrateResistanceWithinRange(t *testing.T) {
	cfg := testConfig()
	m, plant := newTestMotor(cfg, 0.1, 50e-6)
	d := newPlantDriver(m, plant)

	n := int(resistanceDuration / cfg.TCtrl)
	result := run(func() bool { return m.calibrateResistance(d.pwm, 24) })
	d.pumpN(n)

	if !<-result {
		t.Fatalf("calibrateResistance failed, error=%v", m.Error)
	}
	if m.PhaseResistance < 0.099 || m.PhaseResistance > 0.101 {
		t.Errorf("PhaseResistance = %v, want ~0.1", m.PhaseResistance)
	}
}

func TestCalibrateResistanceOutOfRangeRejected(t *testing.T) {
	cfg := testConfig()
	// A 2 Ω winding can't be driven to CalibrationCurrent=5A within
	// CalibrationVoltageMax=2V (5A * 2Ω = 10V > 2V), so the loop saturates
	// and the resulting estimate is rejected (spec §8 scenario 1). A larger
	// inductance than the other tests use keeps the plant's own forward-
	// Euler integration stable at this winding's longer L/R electrical time
	// constant (dt * R / L must stay well under 2 for explicit Euler).
	m, plant := newTestMotor(cfg, 2.0, 500e-6)
	d := newPlantDriver(m, plant)

	n := int(resistanceDuration / cfg.TCtrl)
	result := run(func() bool { return m.calibrateResistance(d.pwm, 24) })
	d.pumpN(n)

	if <-result {
		t.Fatalf("calibrateResistance unexpectedly succeeded, R=%v", m.PhaseResistance)
	}
	if m.Error != core.ErrPhaseResistanceOutOfRange {
		t.Errorf("Error = %v, want ErrPhaseResistanceOutOfRange", m.Error)
	}
}

func TestCalibrateInductanceWithinRange(t *testing.T) {
	cfg := testConfig()
	m, plant := newTestMotor(cfg, 0.1, 50e-6)
	d := newPlantDriver(m, plant)

	result := run(func() bool { return m.calibrateInductance(d.pwm, 24) })
	d.pumpN(2 * inductanceCycles)

	if !<-result {
		t.Fatalf("calibrateInductance failed, error=%v", m.Error)
	}
	if m.PhaseInductance < 48e-6 || m.PhaseInductance > 52e-6 {
		t.Errorf("PhaseInductance = %v, want ~50uH", m.PhaseInductance)
	}
}

func TestCalibrateEncoderDirectionNormal(t *testing.T) {
	cfg := testConfig()
	m := newEncoderTestMotor(cfg, false)
	pwm := newFakePWM()

	n := int(encoderAlignDuration/cfg.TCtrl) + 2*encoderSweepSteps
	result := run(func() bool { return m.calibrateEncoder(pwm, 24) })
	pumpDummySamples(pwm, m, n)

	if !<-result {
		t.Fatalf("calibrateEncoder failed, error=%v", m.Error)
	}
	if m.Rotor.MotorDir != 1 {
		t.Errorf("MotorDir = %v, want +1", m.Rotor.MotorDir)
	}
	// The rotor starts at count 0 on electrical phase zero and the sweeps
	// cover two electrical revolutions, so the mean count the offset is
	// taken from sits one electrical revolution (CPR / pole pairs counts)
	// past the start: the same electrical angle as count 0.
	elecRev := float64(cfg.EncoderCPR) / float64(cfg.PolePairs)
	if d := float64(m.Rotor.EncoderOffset) - elecRev; d < -2 || d > 2 {
		t.Errorf("EncoderOffset = %v, want within +-2 counts of %v (one electrical revolution) for a perfectly tracking rotor", m.Rotor.EncoderOffset, elecRev)
	}
}

func TestCalibrateEncoderDirectionInverted(t *testing.T) {
	cfg := testConfig()
	m := newEncoderTestMotor(cfg, true)
	pwm := newFakePWM()

	n := int(encoderAlignDuration/cfg.TCtrl) + 2*encoderSweepSteps
	result := run(func() bool { return m.calibrateEncoder(pwm, 24) })
	pumpDummySamples(pwm, m, n)

	if !<-result {
		t.Fatalf("calibrateEncoder failed, error=%v", m.Error)
	}
	if m.Rotor.MotorDir != -1 {
		t.Errorf("MotorDir = %v, want -1 with an inverted encoder", m.Rotor.MotorDir)
	}
}
