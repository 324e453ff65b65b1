// Package model defines domain entities for the application.
package model

import "time"

// User represents one account record stored in the users table.
// ID and CreatedAt are assigned by the database on insert.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
