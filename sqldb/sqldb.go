// Package sqldb implements the core store interfaces on database/sql.
// Statements stick to what sqlite3 and mysql both speak.
package sqldb

import "database/sql"

func mustPrepare(db *sql.DB, query string) *sql.Stmt {
	stmt, err := db.Prepare(query)
	if err != nil {
		panic(err)
	}
	return stmt
}
