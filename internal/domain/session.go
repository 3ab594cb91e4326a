package domain

import (
	"time"

	"github.com/google/uuid"
)

type SessionID string

// NewSessionID mints an id independent of any request id, so a session can
// be looked up and resumed long after its originating request is gone.
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

type SessionState string

const (
	SessionForming           SessionState = "forming"
	SessionActive            SessionState = "active"
	SessionAwaitingReconnect SessionState = "awaiting_reconnect"
	SessionEnded             SessionState = "ended"
)

type EndReason string

const (
	EndUserInitiated    EndReason = "user_initiated"
	EndReconnectTimeout EndReason = "reconnection_timeout"
	EndDisconnect       EndReason = "disconnect"
	EndIdleTimeout      EndReason = "idle_timeout"
)

// Session is the matched pairing. Connection slots live in the manager's
// table entry, not here; the entity carries only identity and lifecycle.
type Session struct {
	ID           SessionID     `json:"id"`
	RequesterID  ParticipantID `json:"requester_id"`
	ResponderID  ParticipantID `json:"responder_id"`
	Language     string        `json:"language"`
	Type         SessionType   `json:"type"`
	State        SessionState  `json:"state"`
	Reason       EndReason     `json:"reason,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActivity time.Time     `json:"last_activity"`
}
