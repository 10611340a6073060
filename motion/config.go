package motion

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Axis indexes into the four logical axes X, Y, Z, E.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
	AxisE
	NumAxes
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "X"
	case AxisY:
		return "Y"
	case AxisZ:
		return "Z"
	case AxisE:
		return "E"
	default:
		return "?"
	}
}

// CarriageMode selects how the secondary X driver tracks the primary one.
// Only meaningful when DualXCarriage is enabled.
type CarriageMode int

const (
	// CarriageIndependent pulses only the active extruder's own driver.
	CarriageIndependent CarriageMode = iota + 1
	// CarriageGanged pulses both X drivers in the same direction.
	CarriageGanged
	// CarriageMirrored pulses both X drivers in opposite directions.
	CarriageMirrored
)

// AxisConfig holds the per-axis hardware wiring and timing constants as a
// structured record rather than conditional compilation.
type AxisConfig struct {
	InvertDir       bool
	InvertStep      bool
	EnableInvert    bool
	StepsPerUnit    float64 // used only by the non-ISR diagnostic path
	PulseWidthUS    uint32  // physical minimum high time for this axis's driver
	HomeDirNegative bool    // true if this axis homes toward negative travel
}

// Config is the full compile-time configuration matrix consumed at
// Controller construction time.
type Config struct {
	TimerFrequency   uint32 // ticks/sec of the stepper timer (F_CPU/prescaler)
	MaxStepFrequency uint16
	IdleTickHz       uint32 // rate to reprogram the timer at when the queue is empty

	Axes [NumAxes]AxisConfig

	// X2 is the secondary X carriage driver, valid when DualXCarriage is set.
	DualXCarriage     bool
	X2HomeDirNegative bool
	CarriageMode      CarriageMode

	ZDualStepperDrivers bool // Z2 pulses in lockstep with Z
	ZLateEnable         bool // delay first Z step by SettlingDelayUS after enabling the driver
	SettlingDelayUS     uint32

	ElectromagneticValve bool
	ValveDebounceEvents  uint32 // IECOUNT in the original source; events, not milliseconds

	EndstopsOnlyForHoming    bool
	AbortOnEndstopHitEnabled bool
	PowerLossTriggerByPin    bool
}

// DefaultConfig returns a 16 MHz clock through a /8 prescaler giving a
// 2 MHz stepper timer, a software-enforced 20 kHz ceiling, and a
// 160-event valve debounce window.
func DefaultConfig() Config {
	cfg := Config{
		TimerFrequency:   2_000_000,
		MaxStepFrequency: 20_000,
		IdleTickHz:       1_000,

		CarriageMode:        CarriageIndependent,
		SettlingDelayUS:     1_000,
		ValveDebounceEvents: 160,
	}
	cfg.Axes[AxisX] = AxisConfig{StepsPerUnit: 80, PulseWidthUS: 2}
	cfg.Axes[AxisY] = AxisConfig{StepsPerUnit: 80, PulseWidthUS: 2}
	cfg.Axes[AxisZ] = AxisConfig{StepsPerUnit: 400, PulseWidthUS: 2}
	cfg.Axes[AxisE] = AxisConfig{StepsPerUnit: 93, PulseWidthUS: 14}
	return cfg
}

// LoadConfig reads a TOML configuration file, starting from DefaultConfig
// so a file only needs to override the fields it cares about.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("motion: load config %s: %w", path, err)
	}
	return cfg, nil
}

// PulseWidthTicks converts the axis's physical pulse width into stepper
// timer ticks at this configuration's TimerFrequency, so retargeting to a
// different TimerFrequency recomputes the hold time automatically.
func (c Config) PulseWidthTicks(a Axis) uint32 {
	return c.TicksFromUS(c.Axes[a].PulseWidthUS)
}

// TicksFromUS converts a microsecond duration to stepper timer ticks at
// this configuration's TimerFrequency, so retargeting TimerFrequency
// recomputes every hold time that derives from it.
func (c Config) TicksFromUS(us uint32) uint32 {
	return (us * c.TimerFrequency) / 1_000_000
}
