package sqldb

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/courseloc/courseloc/core"
)

type auditEntry struct {
	action         string
	entityKey      string
	performedBy    int
	timestamp      int64
	notes          string
	versionAtEvent int
}

func (e *auditEntry) Action() core.AuditAction {
	return core.AuditAction(e.action)
}

func (e *auditEntry) EntityKey() string {
	return e.entityKey
}

func (e *auditEntry) PerformedBy() int {
	return e.performedBy
}

func (e *auditEntry) Timestamp() int64 {
	return e.timestamp
}

func (e *auditEntry) Notes() string {
	return e.notes
}

func (e *auditEntry) VersionAtEvent() int {
	return e.versionAtEvent
}

// AuditDB is append-only. There are no update or delete statements on the
// audit_log table, and none may be added.
type AuditDB struct {
	*sql.DB
	insert *sql.Stmt
}

func NewAuditDB(db *sql.DB) *AuditDB {

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY,
			action varchar(16) NOT NULL,
			entity_key varchar(128) NOT NULL,
			performed_by int(11) NOT NULL,
			ts INTEGER NOT NULL,
			notes mediumtext NOT NULL DEFAULT '',
			version_at_event int(11) NOT NULL
		);`)
	if err != nil {
		panic(err)
	}

	var auditDB = &AuditDB{}
	auditDB.DB = db
	auditDB.insert = mustPrepare(db, "INSERT INTO audit_log (action, entity_key, performed_by, ts, notes, version_at_event) VALUES (?, ?, ?, ?, ?, ?)")
	return auditDB
}

func (db *AuditDB) Writeable() bool {
	return true
}

func (db *AuditDB) InsertEntry(action core.AuditAction, entityKey string, performedBy int, timestamp int64, notes string, versionAtEvent int) error {
	_, err := db.insert.Exec(string(action), entityKey, performedBy, timestamp, notes, versionAtEvent)
	return err
}

// GetTrail builds its query dynamically because every filter field is
// optional.
func (db *AuditDB) GetTrail(filter core.AuditFilter) ([]core.DBAuditEntry, error) {

	var query = sq.Select("action", "entity_key", "performed_by", "ts", "notes", "version_at_event").
		From("audit_log").
		OrderBy("ts DESC", "id DESC")
	if filter.EntityKey != "" {
		query = query.Where(sq.Eq{"entity_key": filter.EntityKey})
	}
	if filter.Action != "" {
		query = query.Where(sq.Eq{"action": string(filter.Action)})
	}
	if filter.PerformedBy != 0 {
		query = query.Where(sq.Eq{"performed_by": filter.PerformedBy})
	}
	if filter.Since != 0 {
		query = query.Where(sq.GtOrEq{"ts": filter.Since})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
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

	var entries = []core.DBAuditEntry{}
	for rows.Next() {
		var e = &auditEntry{}
		if err := rows.Scan(&e.action, &e.entityKey, &e.performedBy, &e.timestamp, &e.notes, &e.versionAtEvent); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
