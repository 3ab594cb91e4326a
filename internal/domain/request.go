package domain

import (
	"time"

	"github.com/google/uuid"
)

type RequestID string

func NewRequestID() RequestID {
	return RequestID(uuid.NewString())
}

type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencyStandard  Urgency = "standard"
)

type SessionType string

const (
	SessionVideo SessionType = "video"
	SessionAudio SessionType = "audio"
)

type RequestStatus string

const (
	RequestPending      RequestStatus = "pending"
	RequestClaimed      RequestStatus = "claimed"
	RequestExpired      RequestStatus = "expired"
	RequestNoResponders RequestStatus = "no_responders"
)

// CallRequest is one attempt to find a responder. The broker owns every
// mutation; nothing else may touch Status after creation.
type CallRequest struct {
	ID            RequestID     `json:"id"`
	RequesterID   ParticipantID `json:"requester_id"`
	RequesterName string        `json:"requester_name"`
	Language      string        `json:"language"`
	Urgency       Urgency       `json:"urgency"`
	SessionType   SessionType   `json:"session_type"`
	CreatedAt     time.Time     `json:"created_at"`
	ExpiresAt     time.Time     `json:"expires_at"`
	Status        RequestStatus `json:"status"`
}
