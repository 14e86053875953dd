package core

import "fmt"

// Status is the lifecycle state of a translation unit.
type Status string

const (
	Draft            Status = "draft"
	PendingReview    Status = "pending_review"
	UnderReview      Status = "under_review"
	Approved         Status = "approved"
	ChangesRequested Status = "changes_requested"
)

func (s Status) Valid() bool {
	switch s {
	case Draft, PendingReview, UnderReview, Approved, ChangesRequested:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Event is a requested transition. There is no terminal state, approved and
// changes_requested both accept further events.
type Event string

const (
	EventSubmit      Event = "submit"
	EventResubmit    Event = "resubmit"
	EventBeginReview Event = "begin_review"
	EventApprove     Event = "approve"
	EventReject      Event = "reject"
	EventDirectEdit  Event = "direct_edit"
)

// transitions maps each event to its legal source states. direct_edit is
// absent here because it is legal from any state and gated by role alone.
var transitions = map[Event]map[Status]Status{
	EventSubmit:      {Draft: PendingReview},
	EventResubmit:    {ChangesRequested: PendingReview},
	EventBeginReview: {PendingReview: UnderReview},
	EventApprove:     {UnderReview: Approved},
	EventReject:      {UnderReview: ChangesRequested},
}

// NextStatus validates an event against the current status and returns the
// target status. State is never coerced, an event from an unlisted state is
// an InvalidTransition error.
func NextStatus(ev Event, from Status) (Status, error) {
	if ev == EventDirectEdit {
		return Approved, nil
	}
	if to, ok := transitions[ev][from]; ok {
		return to, nil
	}
	return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, from)
}
