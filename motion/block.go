package motion

import uuid "github.com/satori/go.uuid"

// DirBit is the direction bitmask carried on a Block: bit set means
// negative direction on that axis.
type DirBit uint8

const (
	DirNegX DirBit = 1 << AxisX
	DirNegY DirBit = 1 << AxisY
	DirNegZ DirBit = 1 << AxisZ
	DirNegE DirBit = 1 << AxisE
)

// Block is the planner's motion record: a fully-resolved run of steps with
// a trapezoidal velocity profile already computed. The stepper core holds
// a non-owning reference to the head block for the duration of its
// execution; the planner's ring buffer remains the owner.
type Block struct {
	// TraceID is a per-block UUID stamped by NewBlock. The stepper core's
	// own log lines do not include it.
	TraceID uuid.UUID

	Steps          [NumAxes]uint32
	StepEventCount uint32
	DirectionBits  DirBit

	InitialRate      uint32
	NominalRate      uint32
	FinalRate        uint32
	AccelerationRate uint32 // fixed-point, scaled for the >>24 trapezoid update

	AccelerateUntil uint32
	DecelerateAfter uint32

	ActiveExtruder int

	Busy bool
}

// Validate checks the structural invariants a well-formed Block must hold.
// The planner is expected to enforce these before enqueueing; the stepper
// re-checks them at pickup since it is the last line of defense against a
// malformed block corrupting the ISR's arithmetic.
func (b *Block) Validate(maxRate uint16) error {
	if b.AccelerateUntil > b.DecelerateAfter || b.DecelerateAfter > b.StepEventCount {
		return ErrInvalidBlock
	}
	if b.InitialRate > b.NominalRate || b.FinalRate > b.NominalRate {
		return ErrInvalidBlock
	}
	if b.NominalRate > uint32(maxRate) {
		return ErrInvalidBlock
	}
	var maxSteps uint32
	for _, s := range b.Steps {
		if s > maxSteps {
			maxSteps = s
		}
	}
	if maxSteps != b.StepEventCount {
		return ErrInvalidBlock
	}
	return nil
}

// Direction reports the signed travel direction (+1/-1) an axis takes
// under this block's DirectionBits.
func (b *Block) Direction(a Axis) int32 {
	if b.DirectionBits&(1<<a) != 0 {
		return -1
	}
	return 1
}

// NewBlock stamps a fresh TraceID onto a planner-produced block. The
// planner is expected to call this once per block before pushing it onto
// the queue, so each queued block carries its own UUID.
func NewBlock() Block {
	return Block{TraceID: uuid.NewV4()}
}
