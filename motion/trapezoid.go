package motion

// TrapezoidState is the per-block trapezoid-generator execution state. It
// is recreated on each block pickup and discarded with it; nothing here
// survives across blocks.
type TrapezoidState struct {
	table *TimingTable

	accelerationTime uint32
	decelerationTime uint32
	accStepRate      uint32

	stepLoops        uint8
	ocr1aNominal     uint16
	stepLoopsNominal uint8
}

// NewTrapezoidState initializes the trapezoid generator for a freshly
// picked-up block, matching trapezoid_generator_reset in the original: the
// nominal timer period is cached up front so cruise phase never
// recomputes it, and the initial rate's timer period seeds
// accelerationTime. No timer is programmed here; the first period the
// controller programs for a block is the one NextTimer returns.
func NewTrapezoidState(table *TimingTable, b *Block) *TrapezoidState {
	s := &TrapezoidState{table: table}
	nominal := table.CalcTimer(b.NominalRate)
	s.ocr1aNominal = nominal.Ticks
	s.stepLoopsNominal = nominal.Loops

	s.accStepRate = b.InitialRate
	initial := table.CalcTimer(s.accStepRate)
	s.accelerationTime = uint32(initial.Ticks)
	s.stepLoops = initial.Loops
	return s
}

// NextTimer runs one trapezoid update: pick the phase by comparing
// completed against the block's milestones, advance the corresponding
// accumulator, and return the timer period to program next. During cruise
// it also resets stepLoops to the cached nominal value.
func (s *TrapezoidState) NextTimer(b *Block, completed uint32) CalcTimerResult {
	switch {
	case completed <= b.AccelerateUntil:
		s.accStepRate = b.InitialRate + uint32((uint64(s.accelerationTime)*uint64(b.AccelerationRate))>>24)
		if s.accStepRate > b.NominalRate {
			s.accStepRate = b.NominalRate
		}
		r := s.table.CalcTimer(s.accStepRate)
		s.accelerationTime += uint32(r.Ticks)
		s.stepLoops = r.Loops
		return r

	case completed <= b.DecelerateAfter:
		s.stepLoops = s.stepLoopsNominal
		return CalcTimerResult{Ticks: s.ocr1aNominal, Loops: s.stepLoopsNominal}

	default:
		delta := uint32((uint64(s.decelerationTime) * uint64(b.AccelerationRate)) >> 24)
		var rate uint32
		if delta > s.accStepRate {
			rate = b.FinalRate
		} else {
			rate = s.accStepRate - delta
			if rate < b.FinalRate {
				rate = b.FinalRate
			}
		}
		r := s.table.CalcTimer(rate)
		s.decelerationTime += uint32(r.Ticks)
		s.stepLoops = r.Loops
		return r
	}
}
