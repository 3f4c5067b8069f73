package auth

import "time"

// EventType classifies an auth-state change pushed on the auth-state stream.
type EventType string

const (
	// EventSignedIn is published when a user establishes a session.
	EventSignedIn EventType = "signed_in"
	// EventSignedOut is published when a user ends their session.
	EventSignedOut EventType = "signed_out"
	// EventDisabled is published when an admin disables a user; subscribers
	// must drop any live sessions for that user.
	EventDisabled EventType = "disabled"
	// EventDeleted is published when an account is removed.
	EventDeleted EventType = "deleted"
	// EventUpdated is published when identity attributes change
	// (display name, verification).
	EventUpdated EventType = "updated"
)

// Event is a single auth-state change. UserID is empty only for
// EventSignedOut where the subject is implied by the session being ended.
type Event struct {
	Type   EventType `json:"type"`
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}
