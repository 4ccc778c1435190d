package motor

import (
	"encoding/json"
	"fmt"
	"time"
)

// BoardConfig is the top-level boot configuration: the fixed, ordered set of
// motors plus the board-wide analog constants.
type BoardConfig struct {
	VBusDividerRatio float64  `json:"vbus_divider_ratio"`
	Motors           []Config `json:"motors"`
}

// LoadConfig parses a JSON configuration and returns a BoardConfig with
// defaults applied and the motor set validated against what the timing
// orchestrator supports.
func LoadConfig(jsonData []byte) (*BoardConfig, error) {
	var cfg BoardConfig

	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in missing configuration values with sensible defaults
func applyDefaults(cfg *BoardConfig) {
	if cfg.VBusDividerRatio == 0 {
		cfg.VBusDividerRatio = 11.0 // 10k:1k divider
	}

	for i := range cfg.Motors {
		m := &cfg.Motors[i]

		if m.TCtrl == 0 {
			m.TCtrl = 125 * time.Microsecond // 8 kHz control loop
		}
		if m.CarrierPeriod == 0 {
			m.CarrierPeriod = 4000
		}
		if m.ShuntOhms == 0 {
			m.ShuntOhms = 0.0005
		}
		if m.ShuntGain == 0 {
			m.ShuntGain = ShuntGain40
		}
		if m.CurrentLimit == 0 {
			m.CurrentLimit = 10.0
		}
		if m.CalibrationCurrent == 0 {
			m.CalibrationCurrent = 10.0
		}
		if m.CalibrationVoltageMax == 0 {
			m.CalibrationVoltageMax = 2.0
		}
		if m.InductanceProbeVoltage == 0 {
			m.InductanceProbeVoltage = 1.0
		}
		if m.VelLimit == 0 {
			m.VelLimit = 20000.0
		}
		if m.PosGain == 0 {
			m.PosGain = 20.0
		}
		if m.VelGain == 0 {
			m.VelGain = 15.0 / 10000.0
		}
		if m.VelIntegratorGain == 0 {
			m.VelIntegratorGain = 10.0 / 10000.0
		}
		if m.StepSize == 0 {
			m.StepSize = 2.0
		}
		if m.BrakeResistorOhms == 0 {
			m.BrakeResistorOhms = 2.0
		}
	}
}

// validateConfig rejects motor sets the fixed two-timer hardware hookup
// cannot serve and per-motor constants the control loops cannot run on.
func validateConfig(cfg *BoardConfig) error {
	if n := len(cfg.Motors); n < 1 || n > 2 {
		return fmt.Errorf("motor: config must declare 1 or 2 motors, got %d", n)
	}
	for i := range cfg.Motors {
		m := &cfg.Motors[i]
		if m.Index != i {
			return fmt.Errorf("motor: motors[%d] has index %d, want %d", i, m.Index, i)
		}
		if m.PolePairs <= 0 {
			return fmt.Errorf("motor: motors[%d]: pole_pairs must be positive", i)
		}
		if m.EncoderCPR <= 0 {
			return fmt.Errorf("motor: motors[%d]: encoder_cpr must be positive", i)
		}
		switch m.ShuntGain {
		case ShuntGain10, ShuntGain20, ShuntGain40, ShuntGain80:
		default:
			return fmt.Errorf("motor: motors[%d]: shunt_gain %v is not a supported amplifier setting", i, float64(m.ShuntGain))
		}
	}
	return nil
}
