package sqldb

import (
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/courseloc/courseloc/core"
)

type unit struct {
	key         string
	en          sql.NullString
	ru          sql.NullString
	he          sql.NullString
	category    string
	page        string
	section     string
	description string
	status      string
	version     int
	submittedBy int
	submittedAt int64
	reviewedBy  int
	reviewedAt  int64
	reviewNotes string
	publishedAt int64
	tsCreated   int64
}

func (u *unit) Key() string {
	return u.key
}

func (u *unit) Content() core.Content {
	var content = core.Content{}
	if u.en.Valid {
		content[core.English] = u.en.String
	}
	if u.ru.Valid {
		content[core.Russian] = u.ru.String
	}
	if u.he.Valid {
		content[core.Hebrew] = u.he.String
	}
	return content
}

func (u *unit) Category() string {
	return u.category
}

func (u *unit) Page() string {
	return u.page
}

func (u *unit) Section() string {
	return u.section
}

func (u *unit) Description() string {
	return u.description
}

func (u *unit) Status() core.Status {
	return core.Status(u.status)
}

func (u *unit) Version() int {
	return u.version
}

func (u *unit) SubmittedBy() int {
	return u.submittedBy
}

func (u *unit) SubmittedAt() int64 {
	return u.submittedAt
}

func (u *unit) ReviewedBy() int {
	return u.reviewedBy
}

func (u *unit) ReviewedAt() int64 {
	return u.reviewedAt
}

func (u *unit) ReviewNotes() string {
	return u.reviewNotes
}

func (u *unit) PublishedAt() int64 {
	return u.publishedAt
}

func (u *unit) TsCreated() int64 {
	return u.tsCreated
}

type revision struct {
	version    int
	en         sql.NullString
	ru         sql.NullString
	he         sql.NullString
	tsCreated  int64
	approvedBy int
}

func (r *revision) Version() int {
	return r.version
}

func (r *revision) Content() core.Content {
	var content = core.Content{}
	if r.en.Valid {
		content[core.English] = r.en.String
	}
	if r.ru.Valid {
		content[core.Russian] = r.ru.String
	}
	if r.he.Valid {
		content[core.Hebrew] = r.he.String
	}
	return content
}

func (r *revision) TsCreated() int64 {
	return r.tsCreated
}

func (r *revision) ApprovedBy() int {
	return r.approvedBy
}

const unitColumns = `unitkey, en, ru, he, category, page, section, description, status, version, submitted_by, submitted_at, reviewed_by, reviewed_at, review_notes, published_at, ts_created`

type UnitDB struct {
	*sql.DB
	countPublished *sql.Stmt
	countStatus    *sql.Stmt
	get            *sql.Stmt
	insert         *sql.Stmt
	insertRevision *sql.Stmt
	lastRevision   *sql.Stmt
	listPending    *sql.Stmt
	revisions      *sql.Stmt
	update         *sql.Stmt
}

func NewUnitDB(db *sql.DB) *UnitDB {

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS unit (
			unitkey varchar(128) PRIMARY KEY,
			en mediumtext,
			ru mediumtext,
			he mediumtext,
			category varchar(64) NOT NULL DEFAULT '',
			page varchar(64) NOT NULL DEFAULT '',
			section varchar(64) NOT NULL DEFAULT '',
			description varchar(256) NOT NULL DEFAULT '',
			status varchar(32) NOT NULL,
			version int(11) NOT NULL,
			submitted_by int(11) NOT NULL DEFAULT 0,
			submitted_at INTEGER NOT NULL DEFAULT 0,
			reviewed_by int(11) NOT NULL DEFAULT 0,
			reviewed_at INTEGER NOT NULL DEFAULT 0,
			review_notes mediumtext NOT NULL DEFAULT '',
			published_at INTEGER NOT NULL DEFAULT 0,
			ts_created INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS revision (
			unitkey varchar(128) NOT NULL,
			version int(11) NOT NULL,
			en mediumtext,
			ru mediumtext,
			he mediumtext,
			ts_created INTEGER NOT NULL,
			approved_by int(11) NOT NULL,
			PRIMARY KEY (unitkey, version)
		);
		`)
	if err != nil {
		panic(err)
	}

	var unitDB = &UnitDB{}
	unitDB.DB = db
	unitDB.countPublished = mustPrepare(db, "SELECT COUNT(1) FROM unit WHERE published_at > 0")
	unitDB.countStatus = mustPrepare(db, "SELECT status, COUNT(1) FROM unit GROUP BY status")
	unitDB.get = mustPrepare(db, "SELECT "+unitColumns+" FROM unit WHERE unitkey = ? LIMIT 1")
	unitDB.insert = mustPrepare(db, "INSERT INTO unit ("+unitColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	unitDB.insertRevision = mustPrepare(db, "INSERT INTO revision (unitkey, version, en, ru, he, ts_created, approved_by) VALUES (?, ?, ?, ?, ?, ?, ?)")
	unitDB.lastRevision = mustPrepare(db, "SELECT version, en, ru, he, ts_created, approved_by FROM revision WHERE unitkey = ? ORDER BY version DESC LIMIT 1")
	unitDB.listPending = mustPrepare(db, "SELECT "+unitColumns+" FROM unit WHERE status = 'pending_review' ORDER BY submitted_at DESC")
	unitDB.revisions = mustPrepare(db, "SELECT version, en, ru, he, ts_created, approved_by FROM revision WHERE unitkey = ? ORDER BY version DESC")
	unitDB.update = mustPrepare(db, "UPDATE unit SET en = ?, ru = ?, he = ?, category = ?, page = ?, section = ?, description = ?, status = ?, version = ?, submitted_by = ?, submitted_at = ?, reviewed_by = ?, reviewed_at = ?, review_notes = ?, published_at = ? WHERE unitkey = ? AND status = ? AND version = ?")
	return unitDB
}

func (db *UnitDB) Writeable() bool {
	return true
}

func (db *UnitDB) IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func nullable(content core.Content, l core.Language) sql.NullString {
	if text, ok := content[l]; ok {
		return sql.NullString{String: text, Valid: true}
	}
	return sql.NullString{}
}

func (db *UnitDB) scanUnit(row interface{ Scan(...interface{}) error }) (*unit, error) {
	var u = &unit{}
	return u, row.Scan(&u.key, &u.en, &u.ru, &u.he, &u.category, &u.page, &u.section, &u.description,
		&u.status, &u.version, &u.submittedBy, &u.submittedAt, &u.reviewedBy, &u.reviewedAt,
		&u.reviewNotes, &u.publishedAt, &u.tsCreated)
}

func (db *UnitDB) GetUnit(key string) (core.DBUnit, error) {
	return db.scanUnit(db.get.QueryRow(key))
}

func (db *UnitDB) InsertUnit(key string, content core.Content, meta core.Metadata, tsCreated int64) (core.DBUnit, error) {

	var u = &unit{
		key:       key,
		en:        nullable(content, core.English),
		ru:        nullable(content, core.Russian),
		he:        nullable(content, core.Hebrew),
		status:    string(core.Draft),
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

	_, err := db.insert.Exec(u.key, u.en, u.ru, u.he, u.category, u.page, u.section, u.description,
		u.status, u.version, u.submittedBy, u.submittedAt, u.reviewedBy, u.reviewedAt,
		u.reviewNotes, u.publishedAt, u.tsCreated)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ApplyTransition commits a computed change under the (status, version)
// precondition of the read. Zero affected rows means someone else committed
// first, which surfaces as ErrConflictingTransition.
func (db *UnitDB) ApplyTransition(old core.DBUnit, ch core.Change) (core.DBUnit, error) {

	var u = &unit{
		key:         old.Key(),
		en:          nullable(old.Content(), core.English),
		ru:          nullable(old.Content(), core.Russian),
		he:          nullable(old.Content(), core.Hebrew),
		category:    old.Category(),
		page:        old.Page(),
		section:     old.Section(),
		description: old.Description(),
		status:      string(ch.ToStatus),
		version:     ch.FromVersion,
		submittedBy: old.SubmittedBy(),
		submittedAt: old.SubmittedAt(),
		reviewedBy:  old.ReviewedBy(),
		reviewedAt:  old.ReviewedAt(),
		reviewNotes: ch.ReviewNotes,
		publishedAt: ch.PublishedAt,
		tsCreated:   old.TsCreated(),
	}

	if ch.Content != nil {
		u.en = nullable(ch.Content, core.English)
		u.ru = nullable(ch.Content, core.Russian)
		u.he = nullable(ch.Content, core.Hebrew)
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
		u.submittedBy = ch.SubmittedBy
		u.submittedAt = ch.SubmittedAt
	}
	if ch.SetReviewed {
		u.reviewedBy = ch.ReviewedBy
		u.reviewedAt = ch.ReviewedAt
	}
	if ch.BumpVersion {
		u.version = ch.FromVersion + 1
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}

	res, err := tx.Stmt(db.update).Exec(u.en, u.ru, u.he, u.category, u.page, u.section, u.description,
		u.status, u.version, u.submittedBy, u.submittedAt, u.reviewedBy, u.reviewedAt,
		u.reviewNotes, u.publishedAt,
		u.key, string(ch.FromStatus), ch.FromVersion)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if affected == 0 {
		tx.Rollback()
		return nil, core.ErrConflictingTransition
	}

	if ch.BumpVersion {
		var ts = ch.PublishedAt
		if ts == 0 {
			ts = ch.ReviewedAt
		}
		if _, err := tx.Stmt(db.insertRevision).Exec(u.key, u.version, u.en, u.ru, u.he, ts, ch.ReviewedBy); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return u, nil
}

func (db *UnitDB) listStmt(stmt *sql.Stmt, args ...interface{}) ([]core.DBUnit, error) {

	rows, err := stmt.Query(args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return db.collect(rows)
}

func (db *UnitDB) collect(rows *sql.Rows) ([]core.DBUnit, error) {
	var units = []core.DBUnit{}
	for rows.Next() {
		u, err := db.scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func (db *UnitDB) ListPending() ([]core.DBUnit, error) {
	return db.listStmt(db.listPending)
}

// ListUnits builds its query dynamically because every filter field is
// optional.
func (db *UnitDB) ListUnits(filter core.UnitFilter) ([]core.DBUnit, error) {

	var query = sq.Select(unitColumns).From("unit").OrderBy("unitkey")
	if filter.Category != "" {
		query = query.Where(sq.Eq{"category": filter.Category})
	}
	if filter.Page != "" {
		query = query.Where(sq.Eq{"page": filter.Page})
	}
	if filter.Status != "" {
		query = query.Where(sq.Eq{"status": string(filter.Status)})
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return db.collect(rows)
}

func (db *UnitDB) Revisions(key string) ([]core.DBRevision, error) {

	rows, err := db.revisions.Query(key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var revisions = []core.DBRevision{}
	for rows.Next() {
		var r = &revision{}
		if err := rows.Scan(&r.version, &r.en, &r.ru, &r.he, &r.tsCreated, &r.approvedBy); err != nil {
			return nil, err
		}
		revisions = append(revisions, r)
	}
	return revisions, rows.Err()
}

func (db *UnitDB) LastRevision(key string) (core.DBRevision, error) {
	var r = &revision{}
	return r, db.lastRevision.QueryRow(key).Scan(&r.version, &r.en, &r.ru, &r.he, &r.tsCreated, &r.approvedBy)
}

func (db *UnitDB) CountByStatus() (map[core.Status]int, error) {

	rows, err := db.countStatus.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts = map[core.Status]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[core.Status(status)] = count
	}
	return counts, rows.Err()
}

func (db *UnitDB) CountPublished() (int, error) {
	var count int
	return count, db.countPublished.QueryRow().Scan(&count)
}
