package motion

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.TimerFrequency != 2_000_000 {
		t.Errorf("TimerFrequency = %d, want 2_000_000", cfg.TimerFrequency)
	}
	if cfg.MaxStepFrequency != 20_000 {
		t.Errorf("MaxStepFrequency = %d, want 20_000", cfg.MaxStepFrequency)
	}
	if cfg.ValveDebounceEvents != 160 {
		t.Errorf("ValveDebounceEvents = %d, want 160", cfg.ValveDebounceEvents)
	}
	if cfg.Axes[AxisE].PulseWidthUS != 14 {
		t.Errorf("E pulse width = %dus, want 14", cfg.Axes[AxisE].PulseWidthUS)
	}
}

func TestTicksFromUS(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.TicksFromUS(2); got != 4 {
		t.Errorf("TicksFromUS(2) = %d, want 4 at 2MHz", got)
	}
	if got := cfg.PulseWidthTicks(AxisE); got != 28 {
		t.Errorf("PulseWidthTicks(E) = %d, want 28 at 2MHz/14us", got)
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "motion.toml")
	body := "MaxStepFrequency = 30000\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MaxStepFrequency != 30000 {
		t.Errorf("MaxStepFrequency = %d, want 30000", cfg.MaxStepFrequency)
	}
	// Unset fields must still carry the defaults.
	if cfg.TimerFrequency != 2_000_000 {
		t.Errorf("TimerFrequency = %d, want unchanged default 2_000_000", cfg.TimerFrequency)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected an error loading a missing config file")
	}
}
