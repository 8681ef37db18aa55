package models

import (
	"strings"
	"time"
)

// Account represents a chat user with a coin balance
type Account struct {
	Username  string    `db:"username"`
	Balance   int64     `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// NormalizeUsername lowercases and trims a chat username so that the same
// person maps to the same account regardless of how the server cased them.
func NormalizeUsername(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
