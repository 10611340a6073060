package motion

import (
	"sync"
	"sync/atomic"
	"time"

	"stepcore/core"
	"stepcore/internal/logging"
)

// ControllerStats is a read-only snapshot for supervisory tooling (the
// telemetry server), never touched from inside Tick.
type ControllerStats struct {
	BlockActive         bool
	StepEventsCompleted uint32
	StepEventCount      uint32
	QueueDepth          uint8
	CountPosition       [NumAxes]int64
}

// Controller is the block consumer / ISR dispatcher and its supporting
// control surface. It owns the global stepper state (count_position,
// count_direction, endstop flags, quick_stop, current_block) as a single
// instance, recasting what would be process-wide globals on a bare-metal
// target into an instance the ISR body becomes a method on.
type Controller struct {
	cfg     Config
	table   *TimingTable
	queue   StepperSide
	pulse   *PulseEmitter
	endstop *EndstopMonitor
	log     *logging.Logger

	// mu guards every field the non-ISR control surface touches: multi-word
	// shared state is only ever read or written under a critical section
	// from non-ISR code. Tick() is the sole ISR-side
	// writer and never blocks on it in the fast path except when a
	// control-surface call is genuinely concurrent, which on a real MCU
	// cannot happen (Tick *is* the interrupt) — on this host build the
	// mutex stands in for disabling/enabling the interrupt.
	mu sync.Mutex

	current *Block
	trap    *TrapezoidState
	bres    *BresenhamState

	countPosition  [NumAxes]int64
	countDirection [NumAxes]int32

	stepEventsCompleted uint32
	awaitingSettle      bool

	running   atomic.Bool
	quickStop atomic.Bool

	nextTimerTicks uint16

	powerLossCheck func() bool
	serialPump     func()
}

// New wires a Controller from configuration and hardware handles. gpio may
// be nil for pure unit tests that only exercise timing math.
func New(cfg Config, gpio core.GPIODriver, log *logging.Logger) *Controller {
	if log == nil {
		log = logging.Noop()
	}
	c := &Controller{
		cfg:     cfg,
		table:   NewTimingTable(cfg),
		pulse:   NewPulseEmitter(gpio, cfg),
		endstop: NewEndstopMonitor(gpio, cfg),
		log:     log,
	}
	c.endstop.Enable = EndstopEnable{All: !cfg.EndstopsOnlyForHoming}
	c.nextTimerTicks = uint16(cfg.TimerFrequency / cfg.IdleTickHz)
	return c
}

// Attach binds the consumer side of a planner/stepper queue built with
// NewBlockQueue.
func (c *Controller) Attach(q StepperSide) {
	c.queue = q
}

// Pulse and Endstop expose the sub-components for pin configuration
// during st_init; the trapezoid/Bresenham state is intentionally not
// reachable from outside Tick.
func (c *Controller) Pulse() *PulseEmitter     { return c.pulse }
func (c *Controller) Endstop() *EndstopMonitor { return c.endstop }

// SetPowerLossCheck installs the optional external power-loss probe
// consulted at the top of Tick, which halts stepping without touching
// position state (a PowerLoss condition).
func (c *Controller) SetPowerLossCheck(fn func() bool) { c.powerLossCheck = fn }

// SetSerialPump installs the cooperative serial-drain hook polled once per
// tick. A hardware target with FIFO buffering may leave this nil.
func (c *Controller) SetSerialPump(fn func()) { c.serialPump = fn }

// StInit resets the tracked block state (current block and
// step_events_completed). It configures no pins and sets no endstop
// enables: pins are configured through Pulse() and Endstop(), and the
// initial endstop enables are set by New. Timer mode/prescaler selection
// is a platform concern outside this package's remit.
func (c *Controller) StInit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stepEventsCompleted = 0
	c.current = nil
}

// StWakeUp enables the stepper ISR (Tick will begin doing work on the next
// call once Run's ticker fires it, or on the next manual Tick call in a
// unit test).
func (c *Controller) StWakeUp() {
	c.running.Store(true)
}

// Run drives Tick from a goroutine-owned ticker, standing in for the
// hardware timer interrupt vector. It blocks until stop is closed.
func (c *Controller) Run(stop <-chan struct{}) {
	var now uint32
	period := time.Duration(c.nextTimerTicks) * time.Second / time.Duration(c.cfg.TimerFrequency)
	if period <= 0 {
		period = time.Millisecond
	}
	timer := time.NewTimer(period)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C:
			if c.running.Load() {
				now += uint32(c.nextTimerTicks)
				next := c.Tick(now)
				period = time.Duration(next) * time.Second / time.Duration(c.cfg.TimerFrequency)
				if period <= 0 {
					period = time.Microsecond
				}
			}
			timer.Reset(period)
		}
	}
}

// StSynchronize blocks the calling goroutine until the planner buffer is
// empty, pumping the cooperative serial task each iteration. It never
// touches Tick's mutex while sleeping so it cannot starve the
// ISR-equivalent goroutine.
func (c *Controller) StSynchronize() {
	for {
		c.mu.Lock()
		empty := c.current == nil && !c.queue.BlocksQueued()
		c.mu.Unlock()
		if empty {
			return
		}
		if c.serialPump != nil {
			c.serialPump()
		}
		time.Sleep(time.Millisecond)
	}
}

// StSetPosition overwrites the absolute step counters atomically.
func (c *Controller) StSetPosition(x, y, z, e int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.countPosition[AxisX] = x
	c.countPosition[AxisY] = y
	c.countPosition[AxisZ] = z
	c.countPosition[AxisE] = e
}

// StSetEPosition overwrites the extruder counter atomically.
func (c *Controller) StSetEPosition(e int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.countPosition[AxisE] = e
}

// StGetPosition reads a single axis counter atomically.
func (c *Controller) StGetPosition(a Axis) (int64, error) {
	if a < 0 || a >= NumAxes {
		return 0, ErrInvalidAxis
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countPosition[a], nil
}

// ActiveBlock returns the block currently being traced, for supervisory
// tooling built on the control surface (the telemetry server's
// finer-grained diagnostics, tests). Returns ErrQueueEmpty while the
// stepper core is idle.
func (c *Controller) ActiveBlock() (*Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, ErrQueueEmpty
	}
	return c.current, nil
}

// QuickStop raises quick_stop so Tick becomes a no-op, drains and discards
// every queued block plus the current one, then clears the flag. Calling
// this on an empty buffer is a no-op beyond the flag dance.
func (c *Controller) QuickStop() {
	c.quickStop.Store(true)
	c.mu.Lock()
	c.queue.DiscardAll()
	c.current = nil
	c.trap = nil
	c.bres = nil
	c.stepEventsCompleted = 0
	c.mu.Unlock()
	c.quickStop.Store(false)
}

// FinishAndDisableSteppers disables every configured driver once motion
// has drained.
func (c *Controller) FinishAndDisableSteppers() {
	for a := Axis(0); a < NumAxes; a++ {
		c.pulse.SetEnabled(a, false)
	}
}

// EnableEndstops toggles the check-enable matrix. axis == -1 affects all
// axes via the global flag.
func (c *Controller) EnableEndstops(on bool, axis int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch Axis(axis) {
	case AxisX:
		c.endstop.Enable.X = on
	case AxisY:
		c.endstop.Enable.Y = on
	case AxisZ:
		c.endstop.Enable.Z = on
	default:
		c.endstop.Enable.All = on
	}
}

// CheckHitEndstops is the non-ISR diagnostic surface: report every sticky
// hit in millimeters, clear the flags, and optionally trigger an abort.
// Floating point is deliberately confined to this path and never touches
// Tick, which stays integer-only.
func (c *Controller) CheckHitEndstops(abort func()) {
	c.mu.Lock()
	type hit struct {
		axis Axis
		mm   float64
	}
	var hits []hit
	for a := Axis(0); a < AxisE; a++ {
		if c.endstop.Hit[a] {
			perUnit := c.cfg.Axes[a].StepsPerUnit
			mm := 0.0
			if perUnit != 0 {
				mm = float64(c.endstop.TrigSteps[a]) / perUnit
			}
			hits = append(hits, hit{a, mm})
			c.endstop.ClearHit(a)
		}
	}
	c.mu.Unlock()

	if len(hits) == 0 {
		return
	}
	for _, h := range hits {
		c.log.Warnf("endstop hit: %s:%.2f", h.axis, h.mm)
	}
	if c.cfg.AbortOnEndstopHitEnabled && abort != nil {
		abort()
	}
}

// Stats returns a snapshot for the telemetry server.
func (c *Controller) Stats() ControllerStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := ControllerStats{
		BlockActive:   c.current != nil,
		QueueDepth:    0,
		CountPosition: c.countPosition,
	}
	if c.current != nil {
		s.StepEventsCompleted = c.stepEventsCompleted
		s.StepEventCount = c.current.StepEventCount
	}
	if c.queue.BlocksQueued() {
		s.QueueDepth = 1 // exact depth is planner-side; consumer only knows non-empty
	}
	return s
}

// Tick is the interrupt body: it runs to completion without yielding and
// returns the timer period (in ticks) the caller should reprogram the
// hardware timer to before the next call.
func (c *Controller) Tick(now uint32) uint16 {
	if c.quickStop.Load() {
		return c.nextTimerTicks
	}
	if c.powerLossCheck != nil && c.powerLossCheck() {
		return c.nextTimerTicks
	}

	c.mu.Lock()

	c.endstop.AudibleEdge(now, c.cfg.TimerFrequency)

	if c.current == nil {
		b := c.queue.PeekCurrent()
		if b == nil {
			c.nextTimerTicks = uint16(c.cfg.TimerFrequency / c.cfg.IdleTickHz)
			ticks := c.nextTimerTicks
			c.mu.Unlock()
			return ticks
		}
		if b.Busy {
			// The head of the queue should never already be marked busy;
			// a stale block, not a real double-pickup, since nothing
			// re-enqueues a Block once discarded. Treat it the same as a
			// malformed block rather than trust its arithmetic.
			c.log.Errorf("%v: discarding stale block", ErrBlockBusy)
			c.queue.DiscardCurrent()
			c.nextTimerTicks = uint16(c.cfg.TimerFrequency / c.cfg.IdleTickHz)
			ticks := c.nextTimerTicks
			c.mu.Unlock()
			return ticks
		}
		if err := b.Validate(c.cfg.MaxStepFrequency); err != nil {
			// A malformed block cannot be traced safely; discard it and
			// idle rather than let it corrupt the ISR's arithmetic.
			c.queue.DiscardCurrent()
			c.nextTimerTicks = uint16(c.cfg.TimerFrequency / c.cfg.IdleTickHz)
			ticks := c.nextTimerTicks
			c.mu.Unlock()
			return ticks
		}

		b.Busy = true
		c.current = b
		c.trap = NewTrapezoidState(c.table, b)
		c.bres = NewBresenhamState(b)
		c.stepEventsCompleted = 0
		core.RecordTiming(core.EvtBlockPicked, 0, now, b.StepEventCount, 0)

		if b.Steps[AxisZ] > 0 && c.cfg.ZLateEnable {
			c.pulse.SetEnabled(AxisZ, true)
			c.awaitingSettle = true
			c.nextTimerTicks = uint16(c.cfg.TicksFromUS(c.cfg.SettlingDelayUS))
			ticks := c.nextTimerTicks
			c.mu.Unlock()
			return ticks
		}
	}

	if c.awaitingSettle {
		c.awaitingSettle = false
	}

	block := c.current

	dir := c.pulse.ProgramDirection(block)
	c.countDirection = dir

	c.endstop.Sample(block, &c.countPosition, &c.countDirection, &c.stepEventsCompleted)

	if c.stepEventsCompleted >= block.StepEventCount {
		core.RecordTiming(core.EvtEndstopHit, 0, now, c.stepEventsCompleted, 0)
	} else {
		loops := int(c.trap.stepLoops)
		for i := 0; i < loops && c.stepEventsCompleted < block.StepEventCount; i++ {
			evt := c.bres.Advance(block)
			for a := Axis(0); a < NumAxes; a++ {
				if !evt.Pulse[a] {
					continue
				}
				c.pulse.StepHigh(a, block.ActiveExtruder, c.countDirection[a])
				c.countPosition[a] += int64(c.countDirection[a])
				c.pulse.StepLow(a)
			}
			c.pulse.TickValve()
			c.stepEventsCompleted++
		}
		core.RecordTiming(core.EvtTimerFire, 0, now, c.stepEventsCompleted, uint32(loops))
	}

	result := c.trap.NextTimer(block, c.stepEventsCompleted)
	c.nextTimerTicks = result.Ticks
	if result.Clamped {
		core.RecordTiming(core.EvtTimerPast, 0, now, uint32(result.Ticks), 0)
	} else {
		core.RecordTiming(core.EvtTimerSchedule, 0, now, uint32(result.Ticks), 0)
	}

	if c.stepEventsCompleted >= block.StepEventCount {
		core.RecordTiming(core.EvtBlockDone, 0, now, c.stepEventsCompleted, 0)
		c.queue.DiscardCurrent()
		c.current = nil
		c.trap = nil
		c.bres = nil
	}

	ticks := c.nextTimerTicks
	c.mu.Unlock()

	if c.serialPump != nil {
		c.serialPump()
	}

	return ticks
}
