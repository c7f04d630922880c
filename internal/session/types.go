package session

import (
	"errors"
	"time"
)

// DefaultUserID is the identity a connection carries until it identifies.
const DefaultUserID = "default_user"

var (
	ErrNotFound          = errors.New("session not found")
	ErrAlreadyIdentified = errors.New("connection already identified")
)

// Session binds one live connection to a user id.
type Session struct {
	ID             string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	Identified     bool      `json:"identified"`
	ConnectedAt    time.Time `json:"connected_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}
