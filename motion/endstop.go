package motion

import "stepcore/core"

// EndstopPin names the physical switch a given axis/side samples.
type EndstopPin struct {
	Pin        core.GPIOPin
	Invert     bool
	Configured bool
}

// EndstopEnable is the four-flag enable matrix: a per-axis check runs if
// its own flag OR the global "all" flag is set. This is the intended
// semantics, not the original firmware's latent bChecked bug, which
// always evaluated true regardless of the flags.
type EndstopEnable struct {
	X, Y, Z, All bool
}

func (e EndstopEnable) checkAxis(perAxis bool) bool {
	return perAxis || e.All
}

// EndstopMonitor samples limit switches once per timer tick and truncates
// the active block on a debounced hit.
type EndstopMonitor struct {
	gpio core.GPIODriver

	min [NumAxes]EndstopPin
	max [NumAxes]EndstopPin

	oldSample    [NumAxes]bool // debounce latch, min side
	oldMaxSample [NumAxes]bool

	Hit       [NumAxes]bool
	TrigSteps [NumAxes]int64

	Enable EndstopEnable

	dualX              bool
	homeDirNegative    [NumAxes]bool // per-axis approach direction for MIN homing
	x2HomeDirNegative  bool
	activeCarriageIsX2 bool

	// audible alarm state, ported from Step_Controll's old_a_endstops /
	// a_endstops_start edge detector.
	oldAssertedCount int
	alarmStartTick   uint32
	alarmActive      bool
	printingFromSD   bool
}

// NewEndstopMonitor wires up the monitor against a GPIO driver and the
// dual-X-carriage homing directions from config.
func NewEndstopMonitor(gpio core.GPIODriver, cfg Config) *EndstopMonitor {
	m := &EndstopMonitor{gpio: gpio, dualX: cfg.DualXCarriage}
	for a := Axis(0); a < NumAxes; a++ {
		m.homeDirNegative[a] = cfg.Axes[a].HomeDirNegative
	}
	m.x2HomeDirNegative = cfg.X2HomeDirNegative
	return m
}

// ConfigureMin/ConfigureMax register a physical pin for an axis's switch.
func (m *EndstopMonitor) ConfigureMin(a Axis, pin core.GPIOPin, invert bool) {
	m.min[a] = EndstopPin{Pin: pin, Invert: invert, Configured: true}
	if m.gpio != nil {
		m.gpio.ConfigureInputPullUp(pin)
	}
}

func (m *EndstopMonitor) ConfigureMax(a Axis, pin core.GPIOPin, invert bool) {
	m.max[a] = EndstopPin{Pin: pin, Invert: invert, Configured: true}
	if m.gpio != nil {
		m.gpio.ConfigureInputPullUp(pin)
	}
}

// SetActiveCarriage tells the monitor which physical X driver is currently
// homing, for dual-X direction gating.
func (m *EndstopMonitor) SetActiveCarriage(isX2 bool) {
	m.activeCarriageIsX2 = isX2
}

func (m *EndstopPin) read(gpio core.GPIODriver) bool {
	if !m.Configured || gpio == nil {
		return false
	}
	v := gpio.ReadPin(m.Pin)
	if m.Invert {
		return !v
	}
	return v
}

// enabledFor reports whether a's check should run at all, per the enable
// matrix.
func (m *EndstopMonitor) enabledFor(a Axis) bool {
	switch a {
	case AxisX:
		return m.Enable.checkAxis(m.Enable.X)
	case AxisY:
		return m.Enable.checkAxis(m.Enable.Y)
	case AxisZ:
		return m.Enable.checkAxis(m.Enable.Z)
	default:
		return false // E has no endstop in this domain
	}
}

// directionGated implements direction gating for dual-X carriages: on a
// dual-X build the endstop is only live while traveling in the
// homing direction of the currently active carriage. Non-dual-X axes are
// always gate-open here; their gating is the plain direction match
// against MIN/MAX below.
func (m *EndstopMonitor) directionGated(a Axis, travelNegative bool) bool {
	if a != AxisX || !m.dualX {
		return true
	}
	homeNegative := m.homeDirNegative[AxisX]
	if m.activeCarriageIsX2 {
		homeNegative = m.x2HomeDirNegative
	}
	return travelNegative == homeNegative
}

// Sample runs one tick's worth of debounced sampling against the block
// currently in flight: a hit needs two consecutive asserted samples,
// positive step count on the axis, and the
// motion direction matching the triggered switch side (MIN for negative
// travel, MAX for positive). countPosition and direction let the monitor
// record the trigger snapshot.
func (m *EndstopMonitor) Sample(b *Block, countPosition *[NumAxes]int64, countDirection *[NumAxes]int32, completed *uint32) {
	for a := Axis(0); a < AxisE; a++ {
		if !m.enabledFor(a) || b.Steps[a] == 0 || countDirection[a] == 0 {
			m.oldSample[a] = false
			m.oldMaxSample[a] = false
			continue
		}

		approachingMin := countDirection[a] < 0
		if !m.directionGated(a, approachingMin) {
			m.oldSample[a] = false
			m.oldMaxSample[a] = false
			continue
		}

		var cur bool
		if approachingMin {
			cur = m.min[a].read(m.gpio)
		} else {
			cur = m.max[a].read(m.gpio)
		}

		prevPtr := &m.oldSample[a]
		if !approachingMin {
			prevPtr = &m.oldMaxSample[a]
		}

		if cur && *prevPtr {
			m.latch(a, countPosition, completed, b.StepEventCount)
		}
		*prevPtr = cur
	}
}

func (m *EndstopMonitor) latch(a Axis, countPosition *[NumAxes]int64, completed *uint32, stepEventCount uint32) {
	m.TrigSteps[a] = countPosition[a]
	m.Hit[a] = true
	*completed = stepEventCount
}

// ClearHit is used by the supervisor (checkHitEndstops) once it has
// reported a hit.
func (m *EndstopMonitor) ClearHit(a Axis) {
	m.Hit[a] = false
}

// AudibleEdge reproduces Step_Controll's beeper edge-detector: it counts
// currently-asserted endstops and, on a rising count while not printing
// from local storage, starts a 150ms beep window. now is the current
// system tick, tickHz the timer's tick rate (for converting the 150ms
// window to ticks). Returns true while the beeper should be sounding.
func (m *EndstopMonitor) AudibleEdge(now uint32, tickHz uint32) bool {
	asserted := 0
	for a := Axis(0); a < AxisE; a++ {
		if m.min[a].read(m.gpio) || m.max[a].read(m.gpio) {
			asserted++
		}
	}
	if asserted > m.oldAssertedCount && !m.printingFromSD {
		m.alarmActive = true
		m.alarmStartTick = now
	}
	m.oldAssertedCount = asserted

	if m.alarmActive {
		windowTicks := (tickHz * 150) / 1000
		if now-m.alarmStartTick >= windowTicks {
			m.alarmActive = false
		}
	}
	return m.alarmActive
}

// SetPrintingFromSD suppresses the audible alarm while a print is running
// from local storage, matching the original's guard condition.
func (m *EndstopMonitor) SetPrintingFromSD(v bool) {
	m.printingFromSD = v
}
