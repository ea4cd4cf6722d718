package models

import (
	"time"

	"github.com/google/uuid"
)

// UserRole controls which maintenance operations a user may perform
type UserRole string

const (
	RoleReporter UserRole = "reporter"
	RoleManager  UserRole = "manager"
	RoleAdmin    UserRole = "admin"
)

// User represents an authenticated account
type User struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	ProviderID *string   `json:"provider_id,omitempty"`
	Name       *string   `json:"name,omitempty"`
	Role       UserRole  `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user may override detections and manage other users' issues
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
