package models

import (
	"time"
)

// User is an account known to the blog. Registration and credentials live
// outside this service; only identity, contact address and display name are
// needed here.
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"-" db:"email"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SameUser reports whether a and b identify the same account. Anonymous
// (nil) users never match anyone.
func SameUser(a, b *User) bool {
	return a != nil && b != nil && a.ID == b.ID
}
