package core

// Role is the closed set of workflow roles. It is evaluated once per request
// in Evaluate, handlers never re-check roles ad hoc.
type Role int

const (
	ContentEditor Role = 100
	Admin         Role = 200 // review rights limited to assigned languages
	SuperAdmin    Role = 300
)

func (r Role) String() string {
	switch r {
	case ContentEditor:
		return "editor"
	case Admin:
		return "admin"
	case SuperAdmin:
		return "superadmin"
	}
	return "unknown"
}

func (r Role) Valid() bool {
	switch r {
	case ContentEditor, Admin, SuperAdmin:
		return true
	default:
		return false
	}
}

func ParseRole(s string) (Role, bool) {
	switch s {
	case "editor":
		return ContentEditor, true
	case "admin":
		return Admin, true
	case "superadmin":
		return SuperAdmin, true
	}
	return 0, false
}

type DBUser interface {
	ID() int
	Name() string // email address
	Role() Role
	AssignedLanguages() ([]Language, error) // relevant for Admin only
}

type UserDB interface {
	GetUser(id int) (DBUser, error)
	GetUserByName(name string) (DBUser, error)
	GetUserByToken(token string) (DBUser, error)
	GetSuperAdmins() ([]DBUser, error)
	GetAllUsers(limit, offset int) ([]DBUser, error)
	InsertUser(name string, role Role, languages []Language) (DBUser, error)
	SetToken(u DBUser, token string) error
	SetRole(u DBUser, role Role) error
	SetLanguages(u DBUser, languages []Language) error
	Delete(u DBUser) error
	Writeable() bool
}

// resolveActor maps an opaque actor token to its identity. An unknown or
// empty token is a permission error, not an internal one.
func (c *CoreDB) resolveActor(token string) (DBUser, error) {
	if token == "" {
		return nil, ErrPermissionDenied
	}
	actor, err := c.UserDB.GetUserByToken(token)
	if err != nil {
		return nil, ErrPermissionDenied
	}
	return actor, nil
}

// hasLanguages returns whether the actor's assigned languages cover all of
// langs. SuperAdmin covers everything.
func hasLanguages(actor DBUser, langs []Language) (bool, error) {

	if actor.Role() == SuperAdmin {
		return true, nil
	}

	assigned, err := actor.AssignedLanguages()
	if err != nil {
		return false, err
	}

	var set = make(map[Language]interface{}, len(assigned))
	for _, l := range assigned {
		set[l] = struct{}{}
	}
	for _, l := range langs {
		if _, ok := set[l]; !ok {
			return false, nil
		}
	}
	return true, nil
}
