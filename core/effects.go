package core

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Notifier sends role-targeted messages for an accepted transition. The
// recipient set is resolved by the implementation: all superadmins for a new
// pending_review, the submitter for approved and changes_requested.
type Notifier interface {
	Notify(ctx context.Context, ev Event, unit DBUnit, reason string) error
}

// Invalidator tells downstream consumers that the published content behind a
// key is stale. Implementations must be idempotent per key.
type Invalidator interface {
	Invalidate(ctx context.Context, key string) error
}

// dispatchEffects runs the post-commit side effects of a transition: audit
// write, notification, cache invalidation. They run concurrently, each with
// its own timeout, and are failure-isolated: an error is logged and collected
// as a warning, the committed transition stands.
func (c *CoreDB) dispatchEffects(unit DBUnit, actor DBUser, ev Event, action AuditAction, auditNotes, reason string, invalidate bool) []Warning {

	var mu sync.Mutex
	var warnings []Warning
	var warn = func(code string, err error) {
		mu.Lock()
		warnings = append(warnings, Warning{Code: code, Err: err})
		mu.Unlock()
	}

	var wg sync.WaitGroup

	if action != "" {
		var ts = unit.ReviewedAt()
		if action == AuditSubmitted {
			ts = unit.SubmittedAt()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.AuditDB.InsertEntry(action, unit.Key(), actor.ID(), ts, auditNotes, unit.Version()); err != nil {
				c.Log.WithFields(logrus.Fields{"key": unit.Key(), "action": action}).WithError(err).Error("audit write failed")
				warn(WarnPersistencyDegraded, err)
			}
		}()
	}

	if c.Notifier != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), c.EffectTimeout)
			defer cancel()
			if err := c.Notifier.Notify(ctx, ev, unit, reason); err != nil {
				c.Log.WithFields(logrus.Fields{"key": unit.Key(), "event": ev}).WithError(err).Error("notification failed")
				warn(WarnDownstreamUnavailable, err)
			}
		}()
	}

	if invalidate && c.Invalidator != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), c.EffectTimeout)
			defer cancel()
			if err := c.Invalidator.Invalidate(ctx, unit.Key()); err != nil {
				c.Log.WithField("key", unit.Key()).WithError(err).Error("cache invalidation failed")
				warn(WarnDownstreamUnavailable, err)
			}
		}()
	}

	wg.Wait()
	return warnings
}
