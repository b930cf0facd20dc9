// Package models defines server-side records shared by repositories and services.
package models

import (
	"strings"
	"time"
)

// User is a stored credential record. PasswordHash is never serialized.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// NormalizeEmail is applied to every email before it is stored or looked up,
// which makes uniqueness case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
