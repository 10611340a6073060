package motion

import "testing"

// TestTrapezoidBounds checks that after accelerate_until the rate is near
// nominal, stays there through cruise, and by step_event_count is near
// final_rate.
func TestTrapezoidBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxStepFrequency = 40000
	table := NewTimingTable(cfg)

	b := &Block{
		Steps:            [NumAxes]uint32{AxisX: 4000},
		StepEventCount:   4000,
		InitialRate:      500,
		NominalRate:      4000,
		FinalRate:        500,
		AccelerationRate: uint32(4000) << 12, // generous fixed-point accel constant
		AccelerateUntil:  1000,
		DecelerateAfter:  3000,
	}

	trap := NewTrapezoidState(table, b)

	var lastRate uint32
	for completed := uint32(0); completed < b.StepEventCount; completed++ {
		r := trap.NextTimer(b, completed)
		if r.Ticks == 0 {
			t.Fatalf("zero timer period at completed=%d", completed)
		}
		// Recover the approximate rate this period implies to check
		// bounds; a shorter period means a higher rate.
		rate := cfg.TimerFrequency / uint32(r.Ticks)
		lastRate = rate

		if completed == b.AccelerateUntil {
			if within := withinPercent(rate, b.NominalRate, 5); !within {
				t.Errorf("at accelerate_until=%d: rate %d not within 5%% of nominal %d", completed, rate, b.NominalRate)
			}
		}
		if completed > b.AccelerateUntil && completed <= b.DecelerateAfter {
			if within := withinPercent(rate, b.NominalRate, 5); !within {
				t.Errorf("during cruise at %d: rate %d not within 5%% of nominal %d", completed, rate, b.NominalRate)
			}
		}
	}
	if within := withinPercent(lastRate, b.FinalRate, 10); !within {
		t.Errorf("final rate %d not within 10%% of final_rate %d", lastRate, b.FinalRate)
	}
}

func withinPercent(got, want uint32, pct int) bool {
	if want == 0 {
		return got == 0
	}
	diff := int64(got) - int64(want)
	if diff < 0 {
		diff = -diff
	}
	return diff*100 <= int64(want)*int64(pct)
}

// TestTrapezoidPhasesMutuallyExclusive checks that exactly one of the
// three branches applies to any given completed count.
func TestTrapezoidPhasesMutuallyExclusive(t *testing.T) {
	table := NewTimingTable(DefaultConfig())
	b := &Block{
		Steps:            [NumAxes]uint32{AxisX: 1000},
		StepEventCount:   1000,
		InitialRate:      200,
		NominalRate:      2000,
		FinalRate:        200,
		AccelerationRate: 1 << 20,
		AccelerateUntil:  300,
		DecelerateAfter:  700,
	}
	trap := NewTrapezoidState(table, b)
	for completed := uint32(0); completed <= b.StepEventCount; completed++ {
		accel := completed <= b.AccelerateUntil
		cruise := completed > b.AccelerateUntil && completed <= b.DecelerateAfter
		decel := completed > b.DecelerateAfter
		count := 0
		for _, v := range []bool{accel, cruise, decel} {
			if v {
				count++
			}
		}
		if count != 1 {
			t.Fatalf("completed=%d matched %d phases, want exactly 1", completed, count)
		}
		trap.NextTimer(b, completed)
	}
}
