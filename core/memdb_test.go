package core

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// in-memory stores for engine tests

var errMemNotFound = errors.New("not found")

type memUnit struct {
	key         string
	content     Content
	category    string
	page        string
	section     string
	description string
	status      Status
	version     int
	submittedBy int
	submittedAt int64
	reviewedBy  int
	reviewedAt  int64
	reviewNotes string
	publishedAt int64
	tsCreated   int64
}

func (u *memUnit) Key() string          { return u.key }
func (u *memUnit) Content() Content     { return u.content.Canonical() }
func (u *memUnit) Category() string     { return u.category }
func (u *memUnit) Page() string         { return u.page }
func (u *memUnit) Section() string      { return u.section }
func (u *memUnit) Description() string  { return u.description }
func (u *memUnit) Status() Status       { return u.status }
func (u *memUnit) Version() int         { return u.version }
func (u *memUnit) SubmittedBy() int     { return u.submittedBy }
func (u *memUnit) SubmittedAt() int64   { return u.submittedAt }
func (u *memUnit) ReviewedBy() int      { return u.reviewedBy }
func (u *memUnit) ReviewedAt() int64    { return u.reviewedAt }
func (u *memUnit) ReviewNotes() string  { return u.reviewNotes }
func (u *memUnit) PublishedAt() int64   { return u.publishedAt }
func (u *memUnit) TsCreated() int64     { return u.tsCreated }

func (u *memUnit) clone() *memUnit {
	var c = *u
	c.content = u.content.Canonical()
	return &c
}

type memRevision struct {
	version    int
	content    Content
	tsCreated  int64
	approvedBy int
}

func (r *memRevision) Version() int     { return r.version }
func (r *memRevision) Content() Content { return r.content.Canonical() }
func (r *memRevision) TsCreated() int64 { return r.tsCreated }
func (r *memRevision) ApprovedBy() int  { return r.approvedBy }

type memUnitDB struct {
	mu        sync.Mutex
	units     map[string]*memUnit
	revisions map[string][]*memRevision

	// readBarrier, when set, is called after every GetUnit. Concurrency
	// tests use it as a rendezvous so two callers observe the same state.
	readBarrier func()
}

func newMemUnitDB() *memUnitDB {
	return &memUnitDB{
		units:     map[string]*memUnit{},
		revisions: map[string][]*memRevision{},
	}
}

func (db *memUnitDB) Writeable() bool         { return true }
func (db *memUnitDB) IsNotFound(e error) bool { return errors.Is(e, errMemNotFound) }

func (db *memUnitDB) GetUnit(key string) (DBUnit, error) {
	db.mu.Lock()
	u, ok := db.units[key]
	var clone *memUnit
	if ok {
		clone = u.clone()
	}
	db.mu.Unlock()

	if !ok {
		return nil, errMemNotFound
	}
	if db.readBarrier != nil {
		db.readBarrier()
	}
	return clone, nil
}

func (db *memUnitDB) InsertUnit(key string, content Content, meta Metadata, tsCreated int64) (DBUnit, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.units[key]; ok {
		return nil, errors.New("duplicate key")
	}
	var u = &memUnit{
		key:       key,
		content:   content.Canonical(),
		status:    Draft,
		version:   1,
		tsCreated: tsCreated,
	}
	if meta.Category != nil {
		u.category = *meta.Category
	}
	if meta.Page != nil {
		u.page = *meta.Page
	}
	if meta.Section != nil {
		u.section = *meta.Section
	}
	if meta.Description != nil {
		u.description = *meta.Description
	}
	db.units[key] = u
	return u.clone(), nil
}

func (db *memUnitDB) ApplyTransition(old DBUnit, ch Change) (DBUnit, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var u, ok = db.units[old.Key()]
	if !ok {
		return nil, errMemNotFound
	}
	if u.status != ch.FromStatus || u.version != ch.FromVersion {
		return nil, ErrConflictingTransition
	}

	u.status = ch.ToStatus
	if ch.Content != nil {
		u.content = ch.Content.Canonical()
	}
	if ch.Metadata.Category != nil {
		u.category = *ch.Metadata.Category
	}
	if ch.Metadata.Page != nil {
		u.page = *ch.Metadata.Page
	}
	if ch.Metadata.Section != nil {
		u.section = *ch.Metadata.Section
	}
	if ch.Metadata.Description != nil {
		u.description = *ch.Metadata.Description
	}
	if ch.SetSubmitted {
		u.submittedBy, u.submittedAt = ch.SubmittedBy, ch.SubmittedAt
	}
	if ch.SetReviewed {
		u.reviewedBy, u.reviewedAt = ch.ReviewedBy, ch.ReviewedAt
	}
	u.reviewNotes = ch.ReviewNotes
	u.publishedAt = ch.PublishedAt
	if ch.BumpVersion {
		u.version = ch.FromVersion + 1
		var ts = ch.PublishedAt
		if ts == 0 {
			ts = ch.ReviewedAt
		}
		db.revisions[u.key] = append(db.revisions[u.key], &memRevision{
			version:    u.version,
			content:    u.content.Canonical(),
			tsCreated:  ts,
			approvedBy: ch.ReviewedBy,
		})
	}
	return u.clone(), nil
}

func (db *memUnitDB) ListPending() ([]DBUnit, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var pending = []DBUnit{}
	for _, u := range db.units {
		if u.status == PendingReview {
			pending = append(pending, u.clone())
		}
	}
	// submittedAt descending
	for i := 0; i < len(pending); i++ {
		for j := i + 1; j < len(pending); j++ {
			if pending[j].SubmittedAt() > pending[i].SubmittedAt() {
				pending[i], pending[j] = pending[j], pending[i]
			}
		}
	}
	return pending, nil
}

func (db *memUnitDB) ListUnits(filter UnitFilter) ([]DBUnit, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var units = []DBUnit{}
	for _, u := range db.units {
		if filter.Category != "" && u.category != filter.Category {
			continue
		}
		if filter.Page != "" && u.page != filter.Page {
			continue
		}
		if filter.Status != "" && u.status != filter.Status {
			continue
		}
		units = append(units, u.clone())
	}
	return units, nil
}

func (db *memUnitDB) Revisions(key string) ([]DBRevision, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var revisions = []DBRevision{}
	for i := len(db.revisions[key]) - 1; i >= 0; i-- {
		revisions = append(revisions, db.revisions[key][i])
	}
	return revisions, nil
}

func (db *memUnitDB) LastRevision(key string) (DBRevision, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var revisions = db.revisions[key]
	if len(revisions) == 0 {
		return nil, errMemNotFound
	}
	return revisions[len(revisions)-1], nil
}

func (db *memUnitDB) CountByStatus() (map[Status]int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var counts = map[Status]int{}
	for _, u := range db.units {
		counts[u.status]++
	}
	return counts, nil
}

func (db *memUnitDB) CountPublished() (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var count = 0
	for _, u := range db.units {
		if u.publishedAt != 0 {
			count++
		}
	}
	return count, nil
}

type memUser struct {
	id        int
	name      string
	role      Role
	languages []Language
}

func (u *memUser) ID() int      { return u.id }
func (u *memUser) Name() string { return u.name }
func (u *memUser) Role() Role   { return u.role }
func (u *memUser) AssignedLanguages() ([]Language, error) {
	return u.languages, nil
}

type memUserDB struct {
	users   map[int]*memUser
	byToken map[string]*memUser
}

func newMemUserDB() *memUserDB {
	return &memUserDB{
		users:   map[int]*memUser{},
		byToken: map[string]*memUser{},
	}
}

func (db *memUserDB) add(token string, u *memUser) *memUser {
	db.users[u.id] = u
	db.byToken[token] = u
	return u
}

func (db *memUserDB) Writeable() bool { return true }

func (db *memUserDB) GetUser(id int) (DBUser, error) {
	if u, ok := db.users[id]; ok {
		return u, nil
	}
	return nil, errMemNotFound
}

func (db *memUserDB) GetUserByName(name string) (DBUser, error) {
	for _, u := range db.users {
		if u.name == name {
			return u, nil
		}
	}
	return nil, errMemNotFound
}

func (db *memUserDB) GetUserByToken(token string) (DBUser, error) {
	if u, ok := db.byToken[token]; ok {
		return u, nil
	}
	return nil, errMemNotFound
}

func (db *memUserDB) GetSuperAdmins() ([]DBUser, error) {
	var admins = []DBUser{}
	for _, u := range db.users {
		if u.role == SuperAdmin {
			admins = append(admins, u)
		}
	}
	return admins, nil
}

func (db *memUserDB) GetAllUsers(limit, offset int) ([]DBUser, error) {
	var users = []DBUser{}
	for _, u := range db.users {
		users = append(users, u)
	}
	return users, nil
}

func (db *memUserDB) InsertUser(name string, role Role, languages []Language) (DBUser, error) {
	var u = &memUser{id: len(db.users) + 1, name: name, role: role, languages: languages}
	db.users[u.id] = u
	return u, nil
}

func (db *memUserDB) SetToken(u DBUser, token string) error {
	db.byToken[token] = db.users[u.ID()]
	return nil
}

func (db *memUserDB) SetRole(u DBUser, role Role) error {
	db.users[u.ID()].role = role
	return nil
}

func (db *memUserDB) SetLanguages(u DBUser, l []Language) error {
	db.users[u.ID()].languages = l
	return nil
}

func (db *memUserDB) Delete(u DBUser) error {
	delete(db.users, u.ID())
	return nil
}

type memAuditDB struct {
	mu         sync.Mutex
	entries    []memAuditEntry
	failInsert bool
}

type memAuditEntry struct {
	action         AuditAction
	entityKey      string
	performedBy    int
	timestamp      int64
	notes          string
	versionAtEvent int
}

func (e memAuditEntry) Action() AuditAction { return e.action }
func (e memAuditEntry) EntityKey() string   { return e.entityKey }
func (e memAuditEntry) PerformedBy() int    { return e.performedBy }
func (e memAuditEntry) Timestamp() int64    { return e.timestamp }
func (e memAuditEntry) Notes() string       { return e.notes }
func (e memAuditEntry) VersionAtEvent() int { return e.versionAtEvent }

func (db *memAuditDB) Writeable() bool { return true }

func (db *memAuditDB) InsertEntry(action AuditAction, entityKey string, performedBy int, timestamp int64, notes string, versionAtEvent int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.failInsert {
		return errors.New("audit store down")
	}
	db.entries = append(db.entries, memAuditEntry{action, entityKey, performedBy, timestamp, notes, versionAtEvent})
	return nil
}

func (db *memAuditDB) GetTrail(filter AuditFilter) ([]DBAuditEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var entries = []DBAuditEntry{}
	for i := len(db.entries) - 1; i >= 0; i-- {
		var e = db.entries[i]
		if filter.EntityKey != "" && e.entityKey != filter.EntityKey {
			continue
		}
		if filter.Action != "" && e.action != filter.Action {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (db *memAuditDB) byAction(action AuditAction) []memAuditEntry {
	db.mu.Lock()
	defer db.mu.Unlock()

	var entries = []memAuditEntry{}
	for _, e := range db.entries {
		if e.action == action {
			entries = append(entries, e)
		}
	}
	return entries
}

type recNotifier struct {
	mu    sync.Mutex
	calls []recNotice
	fail  bool
}

type recNotice struct {
	event  Event
	key    string
	reason string
}

func (n *recNotifier) Notify(ctx context.Context, ev Event, unit DBUnit, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.fail {
		return errors.New("smtp down")
	}
	n.calls = append(n.calls, recNotice{event: ev, key: unit.Key(), reason: reason})
	return nil
}

type recInvalidator struct {
	mu   sync.Mutex
	keys []string
	fail bool
}

func (i *recInvalidator) Invalidate(ctx context.Context, key string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.fail {
		return errors.New("cache endpoint down")
	}
	i.keys = append(i.keys, key)
	return nil
}

type testEnv struct {
	db       *CoreDB
	units    *memUnitDB
	users    *memUserDB
	audit    *memAuditDB
	notifier *recNotifier
	caches   *recInvalidator
}

// tokens of the seeded test users
const (
	tokenEditor1 = "editor1-token"
	tokenEditor2 = "editor2-token"
	tokenAdminRU = "admin-ru-token"
	tokenSuper   = "super-token"
)

func newTestEnv() *testEnv {

	var users = newMemUserDB()
	users.add(tokenEditor1, &memUser{id: 1, name: "e1@example.com", role: ContentEditor})
	users.add(tokenEditor2, &memUser{id: 2, name: "e2@example.com", role: ContentEditor})
	users.add(tokenAdminRU, &memUser{id: 3, name: "ru-admin@example.com", role: Admin, languages: []Language{Russian}})
	users.add(tokenSuper, &memUser{id: 4, name: "boss@example.com", role: SuperAdmin})

	var env = &testEnv{
		units:    newMemUnitDB(),
		users:    users,
		audit:    &memAuditDB{},
		notifier: &recNotifier{},
		caches:   &recInvalidator{},
	}

	var logger = logrus.New()
	logger.SetOutput(io.Discard)

	env.db = &CoreDB{
		AuditDB:     env.audit,
		UnitDB:      env.units,
		UserDB:      env.users,
		Notifier:    env.notifier,
		Invalidator: env.caches,
		Log:         logger,
	}
	env.db.Init()
	return env
}
