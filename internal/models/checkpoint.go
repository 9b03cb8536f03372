package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncCheckpoint records the last successful pull/push instants per device.
// It lives in redis as a diagnostic aid; losing it never affects correctness
// because clients carry their own checkpoint timestamps.
type SyncCheckpoint struct {
	DeviceID     uuid.UUID  `json:"device_id"`
	UserID       uuid.UUID  `json:"user_id"`
	LastPulledAt *time.Time `json:"last_pulled_at,omitempty"`
	LastPushedAt *time.Time `json:"last_pushed_at,omitempty"`
}
