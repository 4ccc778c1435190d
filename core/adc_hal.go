package core

// RawADCCode is a 12-bit injected-conversion result (0..4095).
type RawADCCode uint16

// VBusSampler is the abstract interface for the DC-bus voltage ADC channel
// (spec §5: "VBus ADC IRQ writes vbus_voltage atomically"). Board bring-up
// wires the real ADC here; CORE reads the converted bus voltage from the
// AtomicFloat32 cell that motor.Controller.OnVBusSample stores into.
type VBusSampler interface {
	ReadCode() RawADCCode
}

var vbusSampler VBusSampler

// SetVBusSampler registers the DC-bus ADC channel implementation.
func SetVBusSampler(s VBusSampler) { vbusSampler = s }

// MustVBusSampler returns the configured sampler or panics.
func MustVBusSampler() VBusSampler {
	if vbusSampler == nil {
		panic("core: VBusSampler not configured")
	}
	return vbusSampler
}
