package motor

import (
	"testing"
	"time"
)

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig([]byte(`{
		"motors": [
			{"index": 0, "pole_pairs": 7, "encoder_cpr": 2400}
		]
	}`))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.VBusDividerRatio != 11.0 {
		t.Errorf("VBusDividerRatio = %v, want default 11.0", cfg.VBusDividerRatio)
	}
	m := cfg.Motors[0]
	if m.TCtrl != 125*time.Microsecond {
		t.Errorf("TCtrl = %v, want default 125us", m.TCtrl)
	}
	if m.CarrierPeriod != 4000 {
		t.Errorf("CarrierPeriod = %v, want default 4000", m.CarrierPeriod)
	}
	if m.ShuntGain != ShuntGain40 {
		t.Errorf("ShuntGain = %v, want default 1/40", float64(m.ShuntGain))
	}
}

func TestLoadConfigKeepsExplicitValues(t *testing.T) {
	cfg, err := LoadConfig([]byte(`{
		"vbus_divider_ratio": 19.0,
		"motors": [
			{"index": 0, "pole_pairs": 7, "encoder_cpr": 8192,
			 "shunt_gain": 0.05, "current_limit": 40}
		]
	}`))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.VBusDividerRatio != 19.0 {
		t.Errorf("VBusDividerRatio = %v, want 19.0", cfg.VBusDividerRatio)
	}
	m := cfg.Motors[0]
	if m.ShuntGain != ShuntGain20 {
		t.Errorf("ShuntGain = %v, want 1/20", float64(m.ShuntGain))
	}
	if m.CurrentLimit != 40 {
		t.Errorf("CurrentLimit = %v, want 40", m.CurrentLimit)
	}
}

func TestLoadConfigRejectsBadMotorSets(t *testing.T) {
	cases := []struct {
		name string
		json string
	}{
		{"no motors", `{"motors": []}`},
		{"three motors", `{"motors": [
			{"index": 0, "pole_pairs": 7, "encoder_cpr": 2400},
			{"index": 1, "pole_pairs": 7, "encoder_cpr": 2400},
			{"index": 2, "pole_pairs": 7, "encoder_cpr": 2400}]}`},
		{"wrong index order", `{"motors": [
			{"index": 1, "pole_pairs": 7, "encoder_cpr": 2400}]}`},
		{"missing pole pairs", `{"motors": [
			{"index": 0, "encoder_cpr": 2400}]}`},
		{"unsupported shunt gain", `{"motors": [
			{"index": 0, "pole_pairs": 7, "encoder_cpr": 2400, "shunt_gain": 0.3}]}`},
	}
	for _, c := range cases {
		if _, err := LoadConfig([]byte(c.json)); err == nil {
			t.Errorf("%s: LoadConfig accepted invalid config", c.name)
		}
	}
}
