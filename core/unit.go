package core

// DBUnit is one translatable unit as persisted. Timestamps are unix seconds,
// zero meaning unset.
type DBUnit interface {
	Key() string
	Content() Content
	Category() string
	Page() string
	Section() string
	Description() string
	Status() Status
	Version() int // monotonically increasing
	SubmittedBy() int
	SubmittedAt() int64
	ReviewedBy() int
	ReviewedAt() int64
	ReviewNotes() string
	PublishedAt() int64 // non-zero iff Status() == Approved
	TsCreated() int64
}

// DBRevision is a published snapshot of a unit's content.
type DBRevision interface {
	Version() int
	Content() Content
	TsCreated() int64
	ApprovedBy() int
}

// Metadata is the mutable classification of a unit. Nil fields are left
// unchanged by an edit.
type Metadata struct {
	Category    *string
	Page        *string
	Section     *string
	Description *string
}

// UnitEdits is what an editor hands to submit or direct edit. Content
// languages which are present overwrite the persisted value, absent languages
// are kept.
type UnitEdits struct {
	Content  Content
	Metadata Metadata
}

// Change is a fully computed transition, applied by the store under a
// (status, version) precondition taken from the unit as it was read.
type Change struct {
	FromStatus  Status
	FromVersion int

	ToStatus    Status
	Content     Content // full new content, nil = keep
	Metadata    Metadata
	BumpVersion bool // insert a revision row for the new version

	SetSubmitted bool
	SubmittedBy  int
	SubmittedAt  int64

	SetReviewed bool
	ReviewedBy  int
	ReviewedAt  int64
	ReviewNotes string

	PublishedAt int64 // value to store, zero clears
}

// UnitFilter restricts a unit listing. Zero values mean no restriction.
type UnitFilter struct {
	Category string
	Page     string
	Status   Status
}

type UnitDB interface {
	GetUnit(key string) (DBUnit, error)
	InsertUnit(key string, content Content, meta Metadata, tsCreated int64) (DBUnit, error)
	// ApplyTransition commits ch against u's key. It must match zero rows and
	// return ErrConflictingTransition if the persisted (status, version) no
	// longer equals (ch.FromStatus, ch.FromVersion).
	ApplyTransition(u DBUnit, ch Change) (DBUnit, error)
	ListPending() ([]DBUnit, error) // submittedAt descending
	ListUnits(filter UnitFilter) ([]DBUnit, error)
	Revisions(key string) ([]DBRevision, error)
	LastRevision(key string) (DBRevision, error) // may return IsNotFound error
	CountByStatus() (map[Status]int, error)
	CountPublished() (int, error)
	IsNotFound(err error) bool
	Writeable() bool
}

// Unit wraps DBUnit with the CoreDB it came from.
type Unit struct {
	DBUnit
	db *CoreDB
}

func (c *CoreDB) NewUnit(dbUnit DBUnit) *Unit {
	return &Unit{
		DBUnit: dbUnit,
		db:     c,
	}
}

// Published returns whether the unit is live.
func (u *Unit) Published() bool {
	return u.PublishedAt() != 0
}

// Revisions shadows UnitDB.Revisions.
func (u *Unit) Revisions() ([]DBRevision, error) {
	return u.db.UnitDB.Revisions(u.Key())
}

// lastApprovedContent returns the content snapshot of the latest revision, or
// empty content if the unit has never been approved.
func (c *CoreDB) lastApprovedContent(key string) (Content, error) {
	rev, err := c.UnitDB.LastRevision(key)
	if err != nil {
		if c.UnitDB.IsNotFound(err) {
			return Content{}, nil
		}
		return nil, err
	}
	return rev.Content(), nil
}
