package workflow

import (
	"errors"
	"fmt"
)

// TransitionReason explains why a transition was rejected, for UI display.
type TransitionReason string

const (
	ReasonNoTransition        TransitionReason = "no transition"
	ReasonNoPermission        TransitionReason = "no permission"
	ReasonNoMatchingCondition TransitionReason = "no matching condition"
	ReasonCommentRequired     TransitionReason = "comment required"
	ReasonCompleted           TransitionReason = "instance completed"
)

// InvalidTransitionError rejects a transition call. Reason distinguishes the
// failure class; Detail carries the human-readable specifics.
type InvalidTransitionError struct {
	InstanceID  string
	FromStateID string
	ToStateID   string
	Reason      TransitionReason
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s on instance %s: %s",
		e.FromStateID, e.ToStateID, e.InstanceID, e.Reason)
}

// IsInvalidTransition reports whether err is a transition rejection.
func IsInvalidTransition(err error) bool {
	var invalidErr *InvalidTransitionError

	return errors.As(err, &invalidErr)
}
