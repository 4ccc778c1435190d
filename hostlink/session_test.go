package hostlink_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"focdrive/core"
	"focdrive/hostlink"
	"focdrive/motor"
)

type fakePWM struct{}

func (fakePWM) Period() uint32                                    { return 4000 }
func (fakePWM) SetCompare(motorIdx int, a, b, c core.PWMCounts)    {}
func (fakePWM) EnableOutputs(motorIdx int)                        {}
func (fakePWM) DisableOutputs(motorIdx int)                       {}
func (fakePWM) CounterValue(motorIdx int) uint32                  { return 0 }

type fakeEncoder struct{}

func (fakeEncoder) Count() uint16 { return 0 }

type fakeGateBus struct{}

func (fakeGateBus) WriteRegister(addr uint8, value uint16) error { return nil }
func (fakeGateBus) ReadRegister(addr uint8) (uint16, error)      { return 0, nil }

type fakeBrakePins struct{}

func (fakeBrakePins) Period() uint32             { return 4000 }
func (fakeBrakePins) SetCompare(ch3, ch4 uint32) {}

func newTestController(c *qt.C) *motor.Controller {
	cfg := motor.Config{
		Index:         1,
		PolePairs:     7,
		EncoderCPR:    2400,
		TCtrl:         125 * time.Microsecond,
		CarrierPeriod: 4000,
		ShuntOhms:     0.01,
		ShuntGain:     motor.ShuntGain20,
		CurrentLimit:  10,
		VelLimit:      100,
	}
	m := motor.NewMotor(cfg, fakeEncoder{}, fakeGateBus{})

	ctrl, err := motor.NewController(fakePWM{}, fakeBrakePins{}, 11.0, []*motor.Motor{m})
	c.Assert(err, qt.IsNil)
	return ctrl
}

func TestPositionVelocityCurrentCommands(t *testing.T) {
	c := qt.New(t)
	ctrl := newTestController(c)
	var out bytes.Buffer
	s := hostlink.NewSession(ctrl, &out)

	c.Assert(s.Serve(strings.NewReader("p 1 3.5 0.1 0.2\n")), qt.IsNil)
	m := ctrl.Motors[0]
	c.Assert(m.Mode, qt.Equals, motor.ModePosition)
	c.Assert(m.PosSetpoint, qt.Equals, 3.5)
	c.Assert(m.VelSetpoint, qt.Equals, 0.1)
	c.Assert(m.CurrentSetpoint, qt.Equals, 0.2)

	c.Assert(s.Serve(strings.NewReader("v 1 2.0 0.3\n")), qt.IsNil)
	c.Assert(m.Mode, qt.Equals, motor.ModeVelocity)
	c.Assert(m.VelSetpoint, qt.Equals, 2.0)
	c.Assert(m.CurrentSetpoint, qt.Equals, 0.3)

	c.Assert(s.Serve(strings.NewReader("c 1 1.25\n")), qt.IsNil)
	c.Assert(m.Mode, qt.Equals, motor.ModeCurrent)
	c.Assert(m.CurrentSetpoint, qt.Equals, 1.25)
}

func TestGetSetScalar(t *testing.T) {
	c := qt.New(t)
	ctrl := newTestController(c)
	var out bytes.Buffer
	s := hostlink.NewSession(ctrl, &out)

	// index 0 is the read-only vbus_voltage scalar; index 1 is the first
	// motor's writable pos_setpoint.
	c.Assert(s.Serve(strings.NewReader("s 0 1 4.2\n")), qt.IsNil)
	out.Reset()
	c.Assert(s.Serve(strings.NewReader("g 0 1\n")), qt.IsNil)
	c.Assert(strings.TrimSpace(out.String()), qt.Equals, "4.2")
}

func TestMonitorAndOutput(t *testing.T) {
	c := qt.New(t)
	ctrl := newTestController(c)
	var out bytes.Buffer
	s := hostlink.NewSession(ctrl, &out)

	c.Assert(s.Serve(strings.NewReader("s 0 1 7\n")), qt.IsNil)
	c.Assert(s.Serve(strings.NewReader("m 0 1 0\n")), qt.IsNil)
	out.Reset()
	c.Assert(s.Serve(strings.NewReader("o 10\n")), qt.IsNil)
	c.Assert(strings.TrimSpace(out.String()), qt.Equals, "7")
}

func TestUnknownCommandReportsError(t *testing.T) {
	c := qt.New(t)
	ctrl := newTestController(c)
	var out bytes.Buffer
	s := hostlink.NewSession(ctrl, &out)

	c.Assert(s.Serve(strings.NewReader("zz\n")), qt.IsNil)
	c.Assert(strings.Contains(out.String(), "unknown command"), qt.Equals, true)
}
