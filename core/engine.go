package core

import (
	"fmt"
	"strings"
	"time"
)

// The state machine engine. Every operation follows the same shape: resolve
// the actor, read the unit, validate the event, gate it through Evaluate,
// compute the Change, commit it under the (status, version) precondition and
// only then fire side effects. A failed precondition surfaces as
// ErrConflictingTransition, the caller re-reads and retries.

// Submit moves a unit into pending_review. It covers both the initial submit
// from draft and the resubmit from changes_requested, and creates the unit
// if the key does not exist yet.
func (c *CoreDB) Submit(actorToken, key string, edits UnitEdits) (*Unit, []Warning, error) {

	actor, err := c.resolveActor(actorToken)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(key) == "" {
		return nil, nil, fmt.Errorf("%w: key", ErrMissingRequiredField)
	}

	dbUnit, created, err := c.getOrCreate(actor, key, edits)
	if err != nil {
		return nil, nil, err
	}

	var ev = EventSubmit
	if dbUnit.Status() == ChangesRequested {
		ev = EventResubmit
	}
	if _, err := NextStatus(ev, dbUnit.Status()); err != nil {
		return nil, nil, err
	}

	var newContent = dbUnit.Content().Merge(edits.Content)
	if err := Evaluate(actor, ev, dbUnit, newContent.ChangedLanguages(dbUnit.Content())); err != nil {
		return nil, nil, err
	}

	var now = time.Now().Unix()
	var ch = Change{
		FromStatus:   dbUnit.Status(),
		FromVersion:  dbUnit.Version(),
		ToStatus:     PendingReview,
		Content:      newContent,
		Metadata:     edits.Metadata,
		SetSubmitted: true,
		SubmittedBy:  actor.ID(),
		SubmittedAt:  now,
		ReviewNotes:  dbUnit.ReviewNotes(),
		PublishedAt:  0,
	}
	if created {
		ch.Metadata = Metadata{} // already applied on insert
	}

	newUnit, err := c.UnitDB.ApplyTransition(dbUnit, ch)
	if err != nil {
		return nil, nil, err
	}

	var warnings = c.dispatchEffects(newUnit, actor, ev, AuditSubmitted, "", "", false)
	return c.NewUnit(newUnit), warnings, nil
}

// SaveDraft stores content and metadata edits without touching the approval
// status. It is only legal while the unit is in draft or changes_requested,
// an explicit transition event is the only way to change status.
func (c *CoreDB) SaveDraft(actorToken, key string, edits UnitEdits) (*Unit, error) {

	actor, err := c.resolveActor(actorToken)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("%w: key", ErrMissingRequiredField)
	}

	dbUnit, created, err := c.getOrCreate(actor, key, edits)
	if err != nil {
		return nil, err
	}
	if created {
		return c.NewUnit(dbUnit), nil
	}

	if dbUnit.Status() != Draft && dbUnit.Status() != ChangesRequested {
		return nil, fmt.Errorf("%w: cannot edit a unit in %s", ErrInvalidTransition, dbUnit.Status())
	}
	if err := Evaluate(actor, EventSubmit, dbUnit, nil); err != nil {
		return nil, err
	}

	newUnit, err := c.UnitDB.ApplyTransition(dbUnit, Change{
		FromStatus:  dbUnit.Status(),
		FromVersion: dbUnit.Version(),
		ToStatus:    dbUnit.Status(),
		Content:     dbUnit.Content().Merge(edits.Content),
		Metadata:    edits.Metadata,
		SubmittedBy: dbUnit.SubmittedBy(),
		SubmittedAt: dbUnit.SubmittedAt(),
		ReviewNotes: dbUnit.ReviewNotes(),
		PublishedAt: 0,
	})
	if err != nil {
		return nil, err
	}
	return c.NewUnit(newUnit), nil
}

// BeginReview claims a pending unit for review.
func (c *CoreDB) BeginReview(actorToken, key string) (*Unit, []Warning, error) {

	actor, err := c.resolveActor(actorToken)
	if err != nil {
		return nil, nil, err
	}

	dbUnit, err := c.getUnit(key)
	if err != nil {
		return nil, nil, err
	}
	if _, err := NextStatus(EventBeginReview, dbUnit.Status()); err != nil {
		return nil, nil, err
	}

	touched, err := c.pendingLanguages(dbUnit)
	if err != nil {
		return nil, nil, err
	}
	if err := Evaluate(actor, EventBeginReview, dbUnit, touched); err != nil {
		return nil, nil, err
	}

	newUnit, err := c.UnitDB.ApplyTransition(dbUnit, Change{
		FromStatus:  dbUnit.Status(),
		FromVersion: dbUnit.Version(),
		ToStatus:    UnderReview,
		SubmittedBy: dbUnit.SubmittedBy(),
		SubmittedAt: dbUnit.SubmittedAt(),
		SetReviewed: true,
		ReviewedBy:  actor.ID(),
		ReviewedAt:  time.Now().Unix(),
		ReviewNotes: dbUnit.ReviewNotes(),
		PublishedAt: 0,
	})
	if err != nil {
		return nil, nil, err
	}
	return c.NewUnit(newUnit), nil, nil
}

// Approve publishes a unit under review. The version is bumped by exactly one
// if any language's text differs from the last published snapshot, no matter
// how many languages changed.
func (c *CoreDB) Approve(actorToken, key, notes string) (*Unit, []Warning, error) {

	actor, err := c.resolveActor(actorToken)
	if err != nil {
		return nil, nil, err
	}

	dbUnit, err := c.getUnit(key)
	if err != nil {
		return nil, nil, err
	}
	if _, err := NextStatus(EventApprove, dbUnit.Status()); err != nil {
		return nil, nil, err
	}

	lastApproved, err := c.lastApprovedContent(key)
	if err != nil {
		return nil, nil, err
	}
	var touched = dbUnit.Content().ChangedLanguages(lastApproved)
	if err := Evaluate(actor, EventApprove, dbUnit, touched); err != nil {
		return nil, nil, err
	}

	var now = time.Now().Unix()
	newUnit, err := c.UnitDB.ApplyTransition(dbUnit, Change{
		FromStatus:  dbUnit.Status(),
		FromVersion: dbUnit.Version(),
		ToStatus:    Approved,
		BumpVersion: !dbUnit.Content().Equal(lastApproved),
		SubmittedBy: dbUnit.SubmittedBy(),
		SubmittedAt: dbUnit.SubmittedAt(),
		SetReviewed: true,
		ReviewedBy:  actor.ID(),
		ReviewedAt:  now,
		ReviewNotes: notes,
		PublishedAt: now,
	})
	if err != nil {
		return nil, nil, err
	}

	var warnings = c.dispatchEffects(newUnit, actor, EventApprove, AuditApproved, notes, "", true)
	return c.NewUnit(newUnit), warnings, nil
}

// Reject sends a unit under review back to its submitter. A reason is
// required, further notes are optional.
func (c *CoreDB) Reject(actorToken, key, reason, notes string) (*Unit, []Warning, error) {

	actor, err := c.resolveActor(actorToken)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(reason) == "" {
		return nil, nil, fmt.Errorf("%w: reason", ErrMissingRequiredField)
	}

	dbUnit, err := c.getUnit(key)
	if err != nil {
		return nil, nil, err
	}
	if _, err := NextStatus(EventReject, dbUnit.Status()); err != nil {
		return nil, nil, err
	}

	touched, err := c.pendingLanguages(dbUnit)
	if err != nil {
		return nil, nil, err
	}
	if err := Evaluate(actor, EventReject, dbUnit, touched); err != nil {
		return nil, nil, err
	}

	var reviewNotes = reason
	if notes = strings.TrimSpace(notes); notes != "" {
		reviewNotes = reason + "\n\n" + notes
	}

	newUnit, err := c.UnitDB.ApplyTransition(dbUnit, Change{
		FromStatus:  dbUnit.Status(),
		FromVersion: dbUnit.Version(),
		ToStatus:    ChangesRequested,
		SubmittedBy: dbUnit.SubmittedBy(),
		SubmittedAt: dbUnit.SubmittedAt(),
		SetReviewed: true,
		ReviewedBy:  actor.ID(),
		ReviewedAt:  time.Now().Unix(),
		ReviewNotes: reviewNotes,
		PublishedAt: 0,
	})
	if err != nil {
		return nil, nil, err
	}

	var warnings = c.dispatchEffects(newUnit, actor, EventReject, AuditRejected, reviewNotes, reason, false)
	return c.NewUnit(newUnit), warnings, nil
}

// DirectEdit lets a superadmin write and publish in one step, bypassing the
// review chain. It is legal from any state.
func (c *CoreDB) DirectEdit(actorToken, key string, edits UnitEdits, notes string) (*Unit, []Warning, error) {

	actor, err := c.resolveActor(actorToken)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(key) == "" {
		return nil, nil, fmt.Errorf("%w: key", ErrMissingRequiredField)
	}
	if err := Evaluate(actor, EventDirectEdit, nil, nil); err != nil {
		return nil, nil, err
	}

	dbUnit, created, err := c.getOrCreate(actor, key, edits)
	if err != nil {
		return nil, nil, err
	}

	var newContent = dbUnit.Content().Merge(edits.Content)
	lastApproved, err := c.lastApprovedContent(key)
	if err != nil {
		return nil, nil, err
	}

	var now = time.Now().Unix()
	var ch = Change{
		FromStatus:  dbUnit.Status(),
		FromVersion: dbUnit.Version(),
		ToStatus:    Approved,
		Content:     newContent,
		Metadata:    edits.Metadata,
		BumpVersion: !newContent.Equal(lastApproved),
		SubmittedBy: dbUnit.SubmittedBy(),
		SubmittedAt: dbUnit.SubmittedAt(),
		SetReviewed: true,
		ReviewedBy:  actor.ID(),
		ReviewedAt:  now,
		ReviewNotes: notes,
		PublishedAt: now,
	}
	if created {
		ch.Metadata = Metadata{}
	}

	newUnit, err := c.UnitDB.ApplyTransition(dbUnit, ch)
	if err != nil {
		return nil, nil, err
	}

	var warnings = c.dispatchEffects(newUnit, actor, EventDirectEdit, AuditApproved, notes, "", true)
	return c.NewUnit(newUnit), warnings, nil
}

// getUnit reads a unit or maps the store's not-found to ErrNotFound.
func (c *CoreDB) getUnit(key string) (DBUnit, error) {
	dbUnit, err := c.UnitDB.GetUnit(key)
	if err != nil {
		if c.UnitDB.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return dbUnit, nil
}

// getOrCreate reads a unit or creates it in draft with the given edits
// already applied. The permission check for creation is the submit rule: any
// editor may start a new unit.
func (c *CoreDB) getOrCreate(actor DBUser, key string, edits UnitEdits) (dbUnit DBUnit, created bool, err error) {

	dbUnit, err = c.UnitDB.GetUnit(key)
	if err == nil {
		return dbUnit, false, nil
	}
	if !c.UnitDB.IsNotFound(err) {
		return nil, false, err
	}

	if err := Evaluate(actor, EventSubmit, nil, nil); err != nil {
		return nil, false, err
	}

	dbUnit, err = c.UnitDB.InsertUnit(key, edits.Content.Canonical(), edits.Metadata, time.Now().Unix())
	if err != nil {
		return nil, false, err
	}
	return dbUnit, true, nil
}

// pendingLanguages is the language scope of a review action: every language
// whose current text differs from the last published snapshot, or every
// present language if the unit has never been published.
func (c *CoreDB) pendingLanguages(dbUnit DBUnit) ([]Language, error) {
	lastApproved, err := c.lastApprovedContent(dbUnit.Key())
	if err != nil {
		return nil, err
	}
	return dbUnit.Content().ChangedLanguages(lastApproved), nil
}
