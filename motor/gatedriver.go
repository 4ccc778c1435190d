package motor

import (
	"fmt"

	"focdrive/core"
)

// Gate-driver control register addresses (spec §6: "SPI register image with
// OC mode, OC threshold, shunt amp gain"). Grounded on the pack's
// register-addressed SPI driver idiom (scottfeldman-drivers/tmc5160):
// configuration is a small set of named registers, each write verified by
// an immediate read-back.
const (
	regGateControl     = 0x02 // GAIN[1:0] | OC_MODE[1:0]
	regGateOCThreshold = 0x03 // raw OC threshold, millivolts
)

func gainToBits(g ShuntGain) uint16 {
	switch g {
	case ShuntGain10:
		return 0
	case ShuntGain20:
		return 1
	case ShuntGain40:
		return 2
	case ShuntGain80:
		return 3
	default:
		return 0
	}
}

// Configure writes the shunt-amplifier gain and over-current settings to
// the external gate driver and reads each register back to confirm the bus
// actually latched the write (spec §6: "writeable and read-back
// verifiable").
func (g *GateDriverConfig) Configure() error {
	g.PhaseCurrentRevGain = float64(g.ShuntAmpGain)

	ctrl := gainToBits(g.ShuntAmpGain)<<2 | uint16(g.OCMode)
	if err := writeVerify(g.Bus, regGateControl, ctrl); err != nil {
		return fmt.Errorf("motor: gate driver control register: %w", err)
	}
	if err := writeVerify(g.Bus, regGateOCThreshold, g.OCThresholdMilliVolt); err != nil {
		return fmt.Errorf("motor: gate driver OC threshold register: %w", err)
	}
	return nil
}

func writeVerify(bus core.GateDriverBus, addr uint8, value uint16) error {
	if err := bus.WriteRegister(addr, value); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	readBack, err := bus.ReadRegister(addr)
	if err != nil {
		return fmt.Errorf("read-back: %w", err)
	}
	if readBack != value {
		return fmt.Errorf("read-back mismatch: wrote %#04x, read %#04x", value, readBack)
	}
	return nil
}
