package motion

import "stepcore/core"

// AxisPins is the set of hardware lines a single physical driver needs.
type AxisPins struct {
	Step, Dir, Enable core.GPIOPin
	Configured        bool
}

// PulseEmitter drives STEP/DIR/ENABLE outputs: direction is programmed
// once per block, then each step event pulses STEP with a leading edge, a
// minimum hold, and a trailing edge, in the fixed X->Y->Z->E order.
type PulseEmitter struct {
	gpio core.GPIODriver
	cfg  Config

	primary [NumAxes]AxisPins
	x2      AxisPins
	z2      AxisPins

	valve0, valve1  AxisPins
	valveConfigured bool

	// pulseWidthTicks[a] is how many stepper-timer ticks the caller must
	// hold between leading and trailing edge for axis a, resolved from
	// the physical microsecond requirement at construction time.
	pulseWidthTicks [NumAxes]uint32

	// electromagnetic valve debounce state, per Design Notes' IECOUNT.
	sinceLastExtrudeStep [2]uint32 // indexed by ActiveExtruder
	valveEnergized       [2]bool
	lastEForward         bool // countDirection[AxisE] > 0 as of the last E step
	overTemp             bool

	z2RunStatus bool
}

// NewPulseEmitter wires the emitter against a GPIO driver and config.
func NewPulseEmitter(gpio core.GPIODriver, cfg Config) *PulseEmitter {
	p := &PulseEmitter{gpio: gpio, cfg: cfg}
	for a := Axis(0); a < NumAxes; a++ {
		p.pulseWidthTicks[a] = cfg.PulseWidthTicks(a)
	}
	p.sinceLastExtrudeStep[0] = cfg.ValveDebounceEvents
	p.sinceLastExtrudeStep[1] = cfg.ValveDebounceEvents
	return p
}

// ConfigurePrimary/ConfigureX2/ConfigureZ2/ConfigureValves register pins
// and set them all to output mode.
func (p *PulseEmitter) ConfigurePrimary(a Axis, pins AxisPins) {
	pins.Configured = true
	p.primary[a] = pins
	p.configureOutputs(pins)
}

func (p *PulseEmitter) ConfigureX2(pins AxisPins) {
	pins.Configured = true
	p.x2 = pins
	p.configureOutputs(pins)
}

func (p *PulseEmitter) ConfigureZ2(pins AxisPins) {
	pins.Configured = true
	p.z2 = pins
	p.configureOutputs(pins)
}

func (p *PulseEmitter) ConfigureValves(v0, v1 AxisPins) {
	v0.Configured = true
	v1.Configured = true
	p.valve0, p.valve1 = v0, v1
	p.valveConfigured = true
	p.configureOutputs(v0)
	p.configureOutputs(v1)
}

func (p *PulseEmitter) configureOutputs(pins AxisPins) {
	if p.gpio == nil {
		return
	}
	p.gpio.ConfigureOutput(pins.Step)
	p.gpio.ConfigureOutput(pins.Dir)
	p.gpio.ConfigureOutput(pins.Enable)
}

// SetZ2RunStatus gates the Z2 driver, used by the homing routine to hold
// the secondary Z motionless during single-Z homing moves.
func (p *PulseEmitter) SetZ2RunStatus(run bool) {
	p.z2RunStatus = run
}

// SetOverTemp inhibits valve energization on a NozzleOverTemp condition,
// observed externally and reacted to here.
func (p *PulseEmitter) SetOverTemp(v bool) {
	p.overTemp = v
}

// ProgramDirection sets DIRECTION outputs from the block's DirectionBits
// once, before the first step. It returns the signed count_direction
// values the caller should record.
func (p *PulseEmitter) ProgramDirection(b *Block) [NumAxes]int32 {
	var dir [NumAxes]int32
	for a := Axis(0); a < NumAxes; a++ {
		d := b.Direction(a)
		dir[a] = d
		p.setDirPin(a, d)
	}
	return dir
}

func (p *PulseEmitter) setDirPin(a Axis, dir int32) {
	if !p.primary[a].Configured || p.gpio == nil {
		return
	}
	level := dir < 0
	if p.cfg.Axes[a].InvertDir {
		level = !level
	}
	p.gpio.SetPin(p.primary[a].Dir, level)

	if a == AxisX && p.cfg.DualXCarriage && p.x2.Configured {
		switch p.cfg.CarriageMode {
		case CarriageGanged:
			p.gpio.SetPin(p.x2.Dir, level)
		case CarriageMirrored:
			p.gpio.SetPin(p.x2.Dir, !level)
		case CarriageIndependent:
			// only the active extruder's own driver moves; nothing to mirror
		}
	}
	if a == AxisZ && p.cfg.ZDualStepperDrivers && p.z2.Configured {
		p.gpio.SetPin(p.z2.Dir, level)
	}
}

// PulseTicks reports how many timer ticks the caller must hold STEP high
// for this axis before dropping it, and is exported so a caller driving
// its own scheduler (rather than busy-waiting) can reschedule a trailing
// edge callback.
func (p *PulseEmitter) PulseTicks(a Axis) uint32 {
	return p.pulseWidthTicks[a]
}

// StepHigh raises the STEP line(s) for axis a (the leading edge). The
// caller is responsible for calling StepLow after holding for
// PulseTicks(a); this split lets a scheduler-driven caller avoid a busy
// wait, while a simple caller may just sleep between the two calls.
func (p *PulseEmitter) StepHigh(a Axis, activeExtruder int, dir int32) {
	p.setStepPin(a, true)
	if a == AxisX && p.cfg.DualXCarriage && p.cfg.CarriageMode != CarriageIndependent && p.x2.Configured {
		p.gpio.SetPin(p.x2.Step, true)
	}
	if a == AxisZ && p.cfg.ZDualStepperDrivers && p.z2RunStatus && p.z2.Configured {
		p.gpio.SetPin(p.z2.Step, true)
	}
	if a == AxisE {
		p.onExtrudeStep(activeExtruder, dir)
	}
}

// StepLow drops the STEP line(s) for axis a (the trailing edge).
func (p *PulseEmitter) StepLow(a Axis) {
	p.setStepPin(a, false)
	if a == AxisX && p.cfg.DualXCarriage && p.cfg.CarriageMode != CarriageIndependent && p.x2.Configured {
		p.gpio.SetPin(p.x2.Step, false)
	}
	if a == AxisZ && p.cfg.ZDualStepperDrivers && p.z2RunStatus && p.z2.Configured {
		p.gpio.SetPin(p.z2.Step, false)
	}
}

func (p *PulseEmitter) setStepPin(a Axis, level bool) {
	if !p.primary[a].Configured || p.gpio == nil {
		return
	}
	if p.cfg.Axes[a].InvertStep {
		level = !level
	}
	p.gpio.SetPin(p.primary[a].Step, level)
}

// SetEnabled drives the ENABLE line for axis a (active level per config).
func (p *PulseEmitter) SetEnabled(a Axis, enabled bool) {
	if !p.primary[a].Configured || p.gpio == nil {
		return
	}
	level := enabled
	if p.cfg.Axes[a].EnableInvert {
		level = !level
	}
	p.gpio.SetPin(p.primary[a].Enable, level)
	if a == AxisX && p.x2.Configured {
		p.gpio.SetPin(p.x2.Enable, level)
	}
	if a == AxisZ && p.z2.Configured {
		p.gpio.SetPin(p.z2.Enable, level)
	}
}

// onExtrudeStep resets the valve debounce counter for the active
// extruder and re-evaluates valve energization. dir is the extruder's
// signed countDirection for this step: only forward travel (dir > 0)
// energizes, matching Marlin's count_direction[E_AXIS] == 1 guard — a
// retraction move must never energize the valve. In ganged or mirrored
// dual-X carriage modes both nozzles extrude together, so both valves
// follow the same extrude step.
func (p *PulseEmitter) onExtrudeStep(activeExtruder int, dir int32) {
	if activeExtruder < 0 || activeExtruder > 1 {
		activeExtruder = 0
	}
	p.lastEForward = dir > 0
	p.sinceLastExtrudeStep[activeExtruder] = 0
	p.updateValve(activeExtruder)
	if p.cfg.DualXCarriage && p.cfg.CarriageMode != CarriageIndependent {
		other := 1 - activeExtruder
		p.sinceLastExtrudeStep[other] = 0
		p.updateValve(other)
	}
}

// TickValve advances the "events since last extrusion step" counters for
// both extruders and re-evaluates valve state; call it once per dominant
// step event regardless of which axis pulsed, since IECOUNT counts events,
// not extruder steps specifically (Design Notes: "the meaning of the
// count is events, not milliseconds").
func (p *PulseEmitter) TickValve() {
	for e := 0; e < 2; e++ {
		if p.sinceLastExtrudeStep[e] < p.cfg.ValveDebounceEvents {
			p.sinceLastExtrudeStep[e]++
		}
		p.updateValve(e)
	}
}

func (p *PulseEmitter) updateValve(extruder int) {
	if !p.valveConfigured || !p.cfg.ElectromagneticValve {
		return
	}
	energize := p.lastEForward && !p.overTemp && p.sinceLastExtrudeStep[extruder] < p.cfg.ValveDebounceEvents
	if energize == p.valveEnergized[extruder] {
		return
	}
	p.valveEnergized[extruder] = energize
	pins := p.valve0
	if extruder == 1 {
		pins = p.valve1
	}
	if p.gpio != nil {
		p.gpio.SetPin(pins.Step, energize)
	}
}
