package models

import "time"

// Observer is a client watching the simulation
type Observer struct {
	ID string `json:"id"` // per-connection uuid

	// From JWT claims; empty for anonymous observers
	UserID      string `json:"user_id,omitempty"`
	Username    string `json:"username"`
	Email       string `json:"email,omitempty"`
	Permissions int64  `json:"permissions,omitempty"` // bitwise permission flags
	Activated   int64  `json:"activated,omitempty"`   // activation timestamp or ban status
	AuthMethod  string `json:"auth_method,omitempty"`
	Anonymous   bool   `json:"anonymous"`

	// Connection state
	ConnectedAt time.Time `json:"connected_at"`
	SessionID   string    `json:"session_id"`
}

// PermControl allows the observer to steer the player.
const PermControl int64 = 1

// IsActive checks if the account is activated and not banned
func (o *Observer) IsActive() bool {
	return o.Anonymous || o.Activated > 0
}

// IsBanned checks if the account is banned
func (o *Observer) IsBanned() bool {
	return o.Activated == -1
}

// CanControl reports whether the observer may issue storage commands.
// Anonymous observers can when the server runs without authentication.
func (o *Observer) CanControl() bool {
	return o.Anonymous || o.Permissions&PermControl != 0
}
