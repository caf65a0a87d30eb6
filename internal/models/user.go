package models

import "time"

// User represents an account stored in the users table. The session
// lifecycle only ever reads it, apart from the last_login stamp.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Summary returns the public view of the user.
func (u *User) Summary() UserInfo {
	return UserInfo{ID: u.ID, Email: u.Email, FullName: u.FullName}
}
