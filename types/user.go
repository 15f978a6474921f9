package types

import "time"

const (
	// RoleUser is the default role assigned at registration.
	RoleUser = "user"

	// RoleAdmin grants access to the administrative user endpoints.
	RoleAdmin = "admin"
)

// User represents an account in the system.
// It contains identity, role, and login metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's unique email address.
	Email string `json:"email" db:"email"`

	// Role indicates the user's authorization level
	// within the system ("user" or "admin").
	Role string `json:"role" db:"role"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// LastLogin is the timestamp of the most recent successful login.
	// It is nil until the user logs in for the first time.
	LastLogin *time.Time `json:"last_login" db:"last_login"`
}

// UserUpdate carries the optional fields of a user update.
// Nil fields are left untouched.
type UserUpdate struct {
	Username *string
	Email    *string
	Role     *string
}

// Empty reports whether the update sets no field at all.
func (u UserUpdate) Empty() bool {
	return u.Username == nil && u.Email == nil && u.Role == nil
}

// Role is an entry in the role registry.
type Role struct {
	ID   int    `json:"id" db:"id"`
	Name string `json:"role_name" db:"role_name"`
}
