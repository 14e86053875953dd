package core

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// CoreDB aggregates the stores and the side-effect collaborators. All
// workflow calls take an explicit actor token, there is no ambient request
// identity.
type CoreDB struct {
	AuditDB
	UnitDB
	UserDB

	Notifier    Notifier    // may be nil
	Invalidator Invalidator // may be nil

	Log *logrus.Logger

	// EffectTimeout bounds each post-commit side effect call. A timeout
	// degrades to a warning, it never fails the transition.
	EffectTimeout time.Duration
}

func (c *CoreDB) Init() {
	if c.Log == nil {
		c.Log = logrus.New()
	}
	if c.EffectTimeout == 0 {
		c.EffectTimeout = 10 * time.Second
	}
}

// GetUnit returns one unit by key.
func (c *CoreDB) GetUnit(actorToken, key string) (*Unit, error) {

	if _, err := c.resolveActor(actorToken); err != nil {
		return nil, err
	}

	dbUnit, err := c.UnitDB.GetUnit(key)
	if err != nil {
		if c.UnitDB.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c.NewUnit(dbUnit), nil
}

// ListPending returns all units awaiting review, newest submission first.
// SuperAdmin only.
func (c *CoreDB) ListPending(actorToken string) ([]*Unit, error) {

	actor, err := c.resolveActor(actorToken)
	if err != nil {
		return nil, err
	}
	if err := requireSuperAdmin(actor); err != nil {
		return nil, err
	}

	dbUnits, err := c.UnitDB.ListPending()
	if err != nil {
		return nil, err
	}
	var units = make([]*Unit, len(dbUnits))
	for i := range dbUnits {
		units[i] = c.NewUnit(dbUnits[i])
	}
	return units, nil
}

// ListUnits returns units matching the filter.
func (c *CoreDB) ListUnits(actorToken string, filter UnitFilter) ([]*Unit, error) {

	if _, err := c.resolveActor(actorToken); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrMissingRequiredField, filter.Status)
	}

	dbUnits, err := c.UnitDB.ListUnits(filter)
	if err != nil {
		return nil, err
	}
	var units = make([]*Unit, len(dbUnits))
	for i := range dbUnits {
		units[i] = c.NewUnit(dbUnits[i])
	}
	return units, nil
}

// UnitRevisions returns the published snapshots of one unit, newest first.
func (c *CoreDB) UnitRevisions(actorToken, key string) ([]DBRevision, error) {
	if _, err := c.resolveActor(actorToken); err != nil {
		return nil, err
	}
	return c.UnitDB.Revisions(key)
}

// Stats is the approval dashboard aggregate.
type Stats struct {
	Total       int `json:"total"`
	Pending     int `json:"pending"`
	UnderReview int `json:"underReview"`
	Approved    int `json:"approved"`
	Rejected    int `json:"rejected"`
	Published   int `json:"published"`
}

// ApprovalStats counts units per lifecycle state.
func (c *CoreDB) ApprovalStats(actorToken string) (Stats, error) {

	if _, err := c.resolveActor(actorToken); err != nil {
		return Stats{}, err
	}

	counts, err := c.UnitDB.CountByStatus()
	if err != nil {
		return Stats{}, err
	}

	published, err := c.UnitDB.CountPublished()
	if err != nil {
		return Stats{}, err
	}

	var stats = Stats{
		Pending:     counts[PendingReview],
		UnderReview: counts[UnderReview],
		Approved:    counts[Approved],
		Rejected:    counts[ChangesRequested],
		Published:   published,
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}
