package models

import (
	"time"

	"github.com/google/uuid"
)

// Device identifies one client installation. Registration and bookkeeping
// happen elsewhere; sync only consults ownership and active status.
type Device struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	Name       string     `json:"name"`
	Platform   string     `json:"platform"`
	IsActive   bool       `json:"is_active"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// CanSync reports whether the device may pull or push for the given user.
func (d *Device) CanSync(userID uuid.UUID) bool {
	return d.IsActive && d.UserID == userID
}
