package core

import "errors"

// Errors which abort a transition. No partial state change has happened and
// no side effect has fired when one of these is returned.
var (
	ErrInvalidTransition     = errors.New("invalid transition")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrInsufficientScope     = errors.New("insufficient language scope")
	ErrNotOwner              = errors.New("not the owner of this submission")
	ErrMissingRequiredField  = errors.New("missing required field")
	ErrConflictingTransition = errors.New("conflicting transition, re-read and retry")
	ErrNotFound              = errors.New("translation unit not found")
)

// Warning codes. A warning accompanies a committed transition, it never rolls
// one back.
const (
	WarnPersistencyDegraded   = "persistency_degraded"    // audit write failed
	WarnDownstreamUnavailable = "downstream_unavailable"  // notification or cache invalidation failed
)

// Warning reports a failed post-commit side effect.
type Warning struct {
	Code string
	Err  error
}

func (w Warning) String() string {
	return w.Code + ": " + w.Err.Error()
}
