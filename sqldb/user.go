package sqldb

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/courseloc/courseloc/core"
)

var ErrAuth = errors.New("authentication failed")

func clean(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	return name
}

// hashToken stores API tokens as unsalted sha256. Tokens are high-entropy
// random strings, unlike passwords, so a lookup by hash is fine.
func hashToken(token string) string {
	var hash = sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

type user struct {
	db              *UserDB // required for lazy loading
	id              int
	name            string
	role            string
	languages       []core.Language
	languagesLoaded bool
}

func (u *user) ID() int {
	return u.id
}

func (u *user) Name() string {
	return u.name
}

func (u *user) Role() core.Role {
	if role, ok := core.ParseRole(u.role); ok {
		return role
	}
	return 0
}

func (u *user) AssignedLanguages() ([]core.Language, error) {

	if !u.languagesLoaded {

		u.languages = []core.Language{}

		rows, err := u.db.languages.Query(u.id)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		for rows.Next() {
			var lang string
			if err = rows.Scan(&lang); err != nil {
				return nil, err
			}
			u.languages = append(u.languages, core.Language(lang))
		}

		u.languagesLoaded = true
	}

	return u.languages, nil
}

type UserDB struct {
	*sql.DB
	clearLanguages *sql.Stmt
	delete         *sql.Stmt
	get            *sql.Stmt
	getAll         *sql.Stmt
	getByName      *sql.Stmt
	getByToken     *sql.Stmt
	getByRole      *sql.Stmt
	insert         *sql.Stmt
	insertLanguage *sql.Stmt
	languages      *sql.Stmt
	setRole        *sql.Stmt
	setToken       *sql.Stmt
}

func NewUserDB(db *sql.DB) *UserDB {

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS usr (
			id INTEGER PRIMARY KEY,
			mail varchar(128) NOT NULL,
			role varchar(16) NOT NULL,
			token_hash varchar(64) NOT NULL DEFAULT '',
			UNIQUE(mail)
		);
		CREATE TABLE IF NOT EXISTS usr_language (
			usr int(11) NOT NULL,
			lang varchar(8) NOT NULL,
			PRIMARY KEY (usr, lang)
		);`)
	if err != nil {
		panic(err)
	}

	var userDB = &UserDB{}
	userDB.DB = db
	userDB.clearLanguages = mustPrepare(db, "DELETE FROM usr_language WHERE usr = ?")
	userDB.delete = mustPrepare(db, "DELETE FROM usr WHERE id = ?")
	userDB.get = mustPrepare(db, "SELECT id, mail, role FROM usr WHERE id = ? LIMIT 1")
	userDB.getAll = mustPrepare(db, "SELECT id, mail, role FROM usr ORDER BY mail LIMIT ? OFFSET ?")
	userDB.getByName = mustPrepare(db, "SELECT id, mail, role FROM usr WHERE mail = ? LIMIT 1")
	userDB.getByToken = mustPrepare(db, "SELECT id, mail, role FROM usr WHERE token_hash = ? AND token_hash != '' LIMIT 1")
	userDB.getByRole = mustPrepare(db, "SELECT id, mail, role FROM usr WHERE role = ? ORDER BY mail")
	userDB.insert = mustPrepare(db, "INSERT INTO usr (mail, role) VALUES (?, ?)")
	userDB.insertLanguage = mustPrepare(db, "INSERT INTO usr_language (usr, lang) VALUES (?, ?)")
	userDB.languages = mustPrepare(db, "SELECT lang FROM usr_language WHERE usr = ?")
	userDB.setRole = mustPrepare(db, "UPDATE usr SET role = ? WHERE id = ?")
	userDB.setToken = mustPrepare(db, "UPDATE usr SET token_hash = ? WHERE id = ?")
	return userDB
}

func (db *UserDB) Writeable() bool {
	return true
}

func (db *UserDB) scanUser(row *sql.Row) (core.DBUser, error) {
	var u = &user{
		db: db,
	}
	return u, row.Scan(&u.id, &u.name, &u.role)
}

func (db *UserDB) GetUser(id int) (core.DBUser, error) {
	return db.scanUser(db.get.QueryRow(id))
}

func (db *UserDB) GetUserByName(name string) (core.DBUser, error) {
	return db.scanUser(db.getByName.QueryRow(clean(name)))
}

// GetUserByToken resolves an opaque actor token. Unknown tokens return
// ErrAuth, never row details.
func (db *UserDB) GetUserByToken(token string) (core.DBUser, error) {
	u, err := db.scanUser(db.getByToken.QueryRow(hashToken(token)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAuth
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (db *UserDB) getMultiple(stmt *sql.Stmt, args ...interface{}) ([]core.DBUser, error) {

	rows, err := stmt.Query(args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users = []core.DBUser{}
	for rows.Next() {
		var u = &user{
			db: db,
		}
		if err = rows.Scan(&u.id, &u.name, &u.role); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (db *UserDB) GetSuperAdmins() ([]core.DBUser, error) {
	return db.getMultiple(db.getByRole, core.SuperAdmin.String())
}

func (db *UserDB) GetAllUsers(limit, offset int) ([]core.DBUser, error) {
	return db.getMultiple(db.getAll, limit, offset)
}

func (db *UserDB) InsertUser(name string, role core.Role, languages []core.Language) (core.DBUser, error) {

	name = clean(name)

	res, err := db.insert.Exec(name, role.String())
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	var u = &user{
		db:   db,
		id:   int(id),
		name: name,
		role: role.String(),
	}
	if err := db.SetLanguages(u, languages); err != nil {
		return nil, err
	}
	return u, nil
}

func (db *UserDB) SetToken(u core.DBUser, token string) error {
	if token == "" {
		return errors.New("refusing to set empty token")
	}
	_, err := db.setToken.Exec(hashToken(token), u.ID())
	return err
}

func (db *UserDB) SetRole(u core.DBUser, role core.Role) error {
	if !role.Valid() {
		return errors.New("unknown role")
	}
	_, err := db.setRole.Exec(role.String(), u.ID())
	if err == nil {
		u.(*user).role = role.String()
	}
	return err
}

func (db *UserDB) SetLanguages(u core.DBUser, languages []core.Language) error {

	tx, err := db.Begin()
	if err != nil {
		return err
	}

	if _, err := tx.Stmt(db.clearLanguages).Exec(u.ID()); err != nil {
		tx.Rollback()
		return err
	}

	for _, lang := range languages {
		if !lang.Valid() {
			tx.Rollback()
			return errors.New("unknown language " + string(lang))
		}
		if _, err := tx.Stmt(db.insertLanguage).Exec(u.ID(), string(lang)); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	u.(*user).languages = append([]core.Language{}, languages...)
	u.(*user).languagesLoaded = true
	return nil
}

func (db *UserDB) Delete(u core.DBUser) error {

	tx, err := db.Begin()
	if err != nil {
		return err
	}

	if _, err := tx.Stmt(db.clearLanguages).Exec(u.ID()); err != nil {
		tx.Rollback()
		return err
	}

	if _, err := tx.Stmt(db.delete).Exec(u.ID()); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}
