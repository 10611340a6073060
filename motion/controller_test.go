package motion

import (
	"testing"

	"stepcore/internal/logging"
)

func newTestController(t *testing.T, cfg Config) (*Controller, PlannerSide) {
	t.Helper()
	planner, stepper := NewBlockQueue()
	ctl := New(cfg, nil, logging.Noop())
	ctl.Attach(stepper)
	ctl.StInit()
	ctl.StWakeUp()
	return ctl, planner
}

func runToIdle(t *testing.T, ctl *Controller, maxTicks int) {
	t.Helper()
	var now uint32
	for i := 0; i < maxTicks; i++ {
		next := ctl.Tick(now)
		now += uint32(next)
		stats := ctl.Stats()
		if !stats.BlockActive && stats.QueueDepth == 0 {
			return
		}
	}
	t.Fatalf("controller did not reach idle within %d ticks", maxTicks)
}

// TestControllerPureXMove drives a pure X move with no acceleration; it
// should produce exactly 100 X pulses and leave Y/Z/E untouched.
func TestControllerPureXMove(t *testing.T) {
	cfg := DefaultConfig()
	ctl, planner := newTestController(t, cfg)

	b := NewBlock()
	b.Steps[AxisX] = 100
	b.StepEventCount = 100
	b.InitialRate, b.NominalRate, b.FinalRate = 1000, 1000, 1000
	b.AccelerateUntil = 0
	b.DecelerateAfter = 100
	if err := planner.Push(b); err != nil {
		t.Fatalf("push: %v", err)
	}

	runToIdle(t, ctl, 10000)

	x, _ := ctl.StGetPosition(AxisX)
	if x != 100 {
		t.Errorf("X position = %d, want 100", x)
	}
	for _, a := range []Axis{AxisY, AxisZ, AxisE} {
		p, _ := ctl.StGetPosition(a)
		if p != 0 {
			t.Errorf("axis %s position = %d, want 0", a, p)
		}
	}
}

// TestControllerNegativeDirection checks direction_bits flips the sign
// of the position update.
func TestControllerNegativeDirection(t *testing.T) {
	cfg := DefaultConfig()
	ctl, planner := newTestController(t, cfg)

	b := NewBlock()
	b.Steps[AxisX] = 100
	b.StepEventCount = 100
	b.InitialRate, b.NominalRate, b.FinalRate = 1000, 1000, 1000
	b.DecelerateAfter = 100
	b.DirectionBits = DirNegX
	if err := planner.Push(b); err != nil {
		t.Fatalf("push: %v", err)
	}

	runToIdle(t, ctl, 10000)

	x, _ := ctl.StGetPosition(AxisX)
	if x != -100 {
		t.Errorf("X position = %d, want -100", x)
	}
}

// TestControllerQuickStopDuringMotion checks that quickStop during motion
// clears the current block and drains the queue, leaving position exactly
// where it was.
func TestControllerQuickStopDuringMotion(t *testing.T) {
	cfg := DefaultConfig()
	ctl, planner := newTestController(t, cfg)

	for i := 0; i < 3; i++ {
		b := NewBlock()
		b.Steps[AxisX] = 5000
		b.StepEventCount = 5000
		b.InitialRate, b.NominalRate, b.FinalRate = 200, 4000, 200
		b.AccelerateUntil = 1000
		b.DecelerateAfter = 4000
		b.AccelerationRate = 1 << 18
		if err := planner.Push(b); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	var now uint32
	for i := 0; i < 50; i++ {
		now += uint32(ctl.Tick(now))
	}

	beforeX, _ := ctl.StGetPosition(AxisX)

	ctl.QuickStop()

	afterX, _ := ctl.StGetPosition(AxisX)
	if afterX != beforeX {
		t.Errorf("QuickStop altered position: before=%d after=%d", beforeX, afterX)
	}

	stats := ctl.Stats()
	if stats.BlockActive {
		t.Errorf("QuickStop left a block active")
	}
	if stats.QueueDepth != 0 {
		t.Errorf("QuickStop left %d blocks queued", stats.QueueDepth)
	}
}

// TestControllerQuickStopIdempotentOnEmptyQueue checks that quickStop on
// an already-idle controller is a harmless no-op.
func TestControllerQuickStopIdempotentOnEmptyQueue(t *testing.T) {
	cfg := DefaultConfig()
	ctl, _ := newTestController(t, cfg)
	ctl.QuickStop()
	ctl.QuickStop()
	stats := ctl.Stats()
	if stats.BlockActive || stats.QueueDepth != 0 {
		t.Errorf("QuickStop on empty queue left state: %+v", stats)
	}
}

// TestControllerHighRateStepLoops checks that a high nominal rate, which
// exercises step_loops=4, loses no pulses.
func TestControllerHighRateStepLoops(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxStepFrequency = 40000
	ctl, planner := newTestController(t, cfg)

	b := NewBlock()
	b.Steps[AxisX] = 8000
	b.StepEventCount = 8000
	b.InitialRate, b.NominalRate, b.FinalRate = 1000, 30000, 1000
	b.AccelerateUntil = 500
	b.DecelerateAfter = 7500
	b.AccelerationRate = 1 << 20
	if err := planner.Push(b); err != nil {
		t.Fatalf("push: %v", err)
	}

	runToIdle(t, ctl, 20000)

	x, _ := ctl.StGetPosition(AxisX)
	if x != 8000 {
		t.Errorf("X position = %d, want 8000", x)
	}
}

// TestControllerActiveBlockReportsQueueEmpty checks the diagnostic accessor
// against both the idle and active states.
func TestControllerActiveBlockReportsQueueEmpty(t *testing.T) {
	cfg := DefaultConfig()
	ctl, planner := newTestController(t, cfg)

	if _, err := ctl.ActiveBlock(); err != ErrQueueEmpty {
		t.Fatalf("ActiveBlock on idle controller = %v, want ErrQueueEmpty", err)
	}

	b := NewBlock()
	b.Steps[AxisX] = 10
	b.StepEventCount = 10
	b.InitialRate, b.NominalRate, b.FinalRate = 1000, 1000, 1000
	b.DecelerateAfter = 10
	if err := planner.Push(b); err != nil {
		t.Fatalf("push: %v", err)
	}

	ctl.Tick(0)
	active, err := ctl.ActiveBlock()
	if err != nil {
		t.Fatalf("ActiveBlock after pickup: %v", err)
	}
	if active.StepEventCount != 10 {
		t.Errorf("ActiveBlock returned wrong block: %+v", active)
	}
}

// TestControllerTickDiscardsStaleBusyBlock checks that a block reaching the
// head of the queue already marked Busy is discarded rather than traced.
func TestControllerTickDiscardsStaleBusyBlock(t *testing.T) {
	cfg := DefaultConfig()
	ctl, planner := newTestController(t, cfg)

	b := NewBlock()
	b.Steps[AxisX] = 10
	b.StepEventCount = 10
	b.InitialRate, b.NominalRate, b.FinalRate = 1000, 1000, 1000
	b.DecelerateAfter = 10
	b.Busy = true
	if err := planner.Push(b); err != nil {
		t.Fatalf("push: %v", err)
	}

	ctl.Tick(0)

	if _, err := ctl.ActiveBlock(); err != ErrQueueEmpty {
		t.Fatalf("stale busy block was picked up instead of discarded: %v", err)
	}
	stats := ctl.Stats()
	if stats.QueueDepth != 0 || stats.BlockActive {
		t.Errorf("stale busy block left in queue: %+v", stats)
	}
}
