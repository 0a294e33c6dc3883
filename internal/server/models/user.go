// Package models defines server-side data models persisted in the database.
package models

import "time"

type User struct {
	ID           int64
	Email        string
	Username     string
	PasswordHash string
	Name         string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
