package billing

// transitions is the data-driven state machine for subscription lifecycle.
// Direct commands and webhook reconciliation both consult this table so
// neither can move a record along an edge the other would reject.
var transitions = map[Status][]Status{
	StatusIncomplete:      {StatusActive, StatusExpired},
	StatusActive:          {StatusActive, StatusPastDue, StatusCanceledPending, StatusCanceled},
	StatusPastDue:         {StatusActive, StatusCanceledPending, StatusCanceled},
	StatusCanceledPending: {StatusActive, StatusCanceled},
	StatusCanceled:        {},
	StatusExpired:         {},
}

// CanTransition reports whether the state machine permits moving from one
// status to another. Self-transitions are valid only where listed (an active
// subscription may stay active through a plan change or renewal).
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
