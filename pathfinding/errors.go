package pathfinding

import (
	"errors"
	"fmt"
)

var (
	// ErrSearchExhausted means no node remained at the minimum node distance.
	ErrSearchExhausted = errors.New("pathfinding: search exhausted")
	// ErrInconsistentGraph means a parent lookup failed while rebuilding a
	// path. It points at a bookkeeping defect, not at the world.
	ErrInconsistentGraph = errors.New("pathfinding: inconsistent search graph")
)

type JumpReason int

const (
	JumpNotCharged JumpReason = iota + 1
	JumpInGravity
	JumpStaticGrid
	JumpAlreadyJumping
	JumpDestOutsideWorld
	JumpCannotJumpMin
	JumpObstructed
	JumpFailed
)

func (r JumpReason) String() string {
	switch r {
	case JumpNotCharged:
		return "not charged"
	case JumpInGravity:
		return "in gravity"
	case JumpStaticGrid:
		return "attached to a static grid"
	case JumpAlreadyJumping:
		return "already jumping"
	case JumpDestOutsideWorld:
		return "destination outside world"
	case JumpCannotJumpMin:
		return "destination closer than minimum jump"
	case JumpObstructed:
		return "obstructed"
	case JumpFailed:
		return "jump failed"
	default:
		return fmt.Sprintf("JumpReason(%d)", int(r))
	}
}

// JumpRejected explains why a jump was not attempted or failed.
type JumpRejected struct {
	Reason JumpReason
	Err    error
}

func (e *JumpRejected) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pathfinding: jump rejected: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("pathfinding: jump rejected: %s", e.Reason)
}

func (e *JumpRejected) Unwrap() error {
	return e.Err
}

func rejectJump(reason JumpReason) error {
	return &JumpRejected{Reason: reason}
}
