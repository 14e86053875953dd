package core

import "fmt"

// Evaluate gates a requested transition. It is a pure function of the actor,
// the event, the unit as read (nil if the unit does not exist yet) and the
// languages the transition touches. It must be called before any mutation, a
// non-nil return is a hard stop: no state change, no side effects.
func Evaluate(actor DBUser, ev Event, unit DBUnit, touched []Language) error {

	if actor == nil {
		return ErrPermissionDenied
	}

	switch ev {

	case EventSubmit, EventResubmit:
		// editors act on their own submission cycle, SuperAdmin on any
		if actor.Role() == SuperAdmin {
			return nil
		}
		if actor.Role() != ContentEditor && actor.Role() != Admin {
			return fmt.Errorf("%w: role %s cannot %s", ErrPermissionDenied, actor.Role(), ev)
		}
		if unit != nil && unit.SubmittedBy() != 0 && unit.SubmittedBy() != actor.ID() {
			return fmt.Errorf("%w: unit %s is owned by another editor", ErrNotOwner, unit.Key())
		}
		return nil

	case EventBeginReview, EventApprove, EventReject:
		switch actor.Role() {
		case SuperAdmin:
			return nil
		case Admin:
			covered, err := hasLanguages(actor, touched)
			if err != nil {
				return err
			}
			if !covered {
				return fmt.Errorf("%w: %s touches languages outside the admin's scope", ErrInsufficientScope, ev)
			}
			return nil
		default:
			return fmt.Errorf("%w: role %s cannot %s", ErrPermissionDenied, actor.Role(), ev)
		}

	case EventDirectEdit:
		if actor.Role() != SuperAdmin {
			return fmt.Errorf("%w: direct edit requires superadmin", ErrPermissionDenied)
		}
		return nil
	}

	return fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, ev)
}

// requireSuperAdmin gates read operations which expose the whole review
// queue or the audit trail.
func requireSuperAdmin(actor DBUser) error {
	if actor.Role() != SuperAdmin {
		return fmt.Errorf("%w: superadmin only", ErrPermissionDenied)
	}
	return nil
}
