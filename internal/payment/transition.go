package payment

// Transition classifies a status change by the side effects it owes.
type Transition int

const (
	// TransitionNone means the status did not change.
	TransitionNone Transition = iota
	// TransitionProgress is a change that owes no side effects, e.g.
	// capture to settlement or pending to authorize.
	TransitionProgress
	// TransitionSuccess is a crossing from non-successful into successful.
	TransitionSuccess
	// TransitionFailure is a crossing from non-failed into the failed set.
	TransitionFailure
)

// Classify computes the transition from old to next.
func Classify(old, next Status) Transition {
	switch {
	case old == next:
		return TransitionNone
	case next.IsSuccessful() && !old.IsSuccessful():
		return TransitionSuccess
	case next.IsFailed() && !old.IsFailed():
		return TransitionFailure
	default:
		return TransitionProgress
	}
}

func (t Transition) String() string {
	switch t {
	case TransitionNone:
		return "none"
	case TransitionProgress:
		return "progress"
	case TransitionSuccess:
		return "success"
	case TransitionFailure:
		return "failure"
	default:
		return "unknown"
	}
}
