package auth

import "time"

type Role string

const (
	RolePending  Role = "pending_teacher"
	RoleTeacher  Role = "teacher"
	RoleAdmin    Role = "admin"
	RoleRejected Role = "rejected"
)

func (r Role) Valid() bool {
	switch r {
	case RolePending, RoleTeacher, RoleAdmin, RoleRejected:
		return true
	}
	return false
}

// CanManageGames reports whether the role may run games.
func (r Role) CanManageGames() bool {
	return r == RoleTeacher || r == RoleAdmin
}

type Teacher struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (t Teacher) DisplayName() string {
	switch {
	case t.FirstName != "" && t.LastName != "":
		return t.FirstName + " " + t.LastName
	case t.FirstName != "":
		return t.FirstName
	default:
		return t.Email
	}
}
