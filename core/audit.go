package core

// AuditAction is the closed set of audited transitions.
type AuditAction string

const (
	AuditSubmitted AuditAction = "SUBMITTED"
	AuditApproved  AuditAction = "APPROVED"
	AuditRejected  AuditAction = "REJECTED"
)

// DBAuditEntry is an immutable, append-only record of one accepted
// transition. It captures the post-transition state.
type DBAuditEntry interface {
	Action() AuditAction
	EntityKey() string
	PerformedBy() int
	Timestamp() int64
	Notes() string
	VersionAtEvent() int
}

// AuditFilter restricts an audit trail query. Zero values mean no
// restriction.
type AuditFilter struct {
	EntityKey   string
	Action      AuditAction
	PerformedBy int
	Since       int64
	Limit       int
}

type AuditDB interface {
	// InsertEntry appends one entry. Entries are never updated or deleted.
	InsertEntry(action AuditAction, entityKey string, performedBy int, timestamp int64, notes string, versionAtEvent int) error
	GetTrail(filter AuditFilter) ([]DBAuditEntry, error) // newest first
	Writeable() bool
}

// AuditTrail returns the audit trail for one unit, newest first.
// SuperAdmin only.
func (c *CoreDB) AuditTrail(actorToken, key string) ([]DBAuditEntry, error) {

	actor, err := c.resolveActor(actorToken)
	if err != nil {
		return nil, err
	}
	if err := requireSuperAdmin(actor); err != nil {
		return nil, err
	}

	return c.AuditDB.GetTrail(AuditFilter{EntityKey: key})
}
