package bounds

import (
	"errors"
	"fmt"

	"github.com/1broseidon/wingroup/internal/group"
	"github.com/1broseidon/wingroup/internal/platform"
)

// ErrConstraintViolation matches every ConstraintViolation via errors.Is.
var ErrConstraintViolation = errors.New("constraint violation")

// ConstraintViolation is returned when a requested leader rectangle cannot
// be honored without breaking a member's size limits. Nothing is applied.
type ConstraintViolation struct {
	Leader    group.Identity
	Requested platform.Rect
	// Achievable is what the leader would have ended up with.
	Achievable platform.Rect
	// Blocker is the member whose limits stopped the propagation.
	Blocker group.Identity
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("cannot set %s to %s: limited to %s by %s",
		e.Leader, e.Requested, e.Achievable, e.Blocker)
}

func (e *ConstraintViolation) Unwrap() error {
	return ErrConstraintViolation
}
