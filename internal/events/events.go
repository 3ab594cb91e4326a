// Package events defines the wire protocol: event names, payload shapes and
// a marshal-and-send helper shared by adapters and app-layer timers.
package events

import (
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"github.com/terpcall/terpcall/internal/core"
	"github.com/terpcall/terpcall/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Inbound event types.
const (
	TypeJoin                 = "join"
	TypeRegisterCapabilities = "register_capabilities"
	TypeSubmitRequest        = "submit_request"
	TypeClaimRequest         = "claim_request"
	TypeDeclineRequest       = "decline_request"
	TypeCancelRequest        = "cancel_request"
	TypeOffer                = "offer"
	TypeAnswer               = "answer"
	TypeCandidate            = "candidate"
	TypeChat                 = "chat"
	TypeEndSession           = "end_session"
	TypePing                 = "ping"
)

// Outbound event types.
const (
	TypeJoined              = "joined"
	TypeCapabilitiesAck     = "capabilities_ack"
	TypeRequestSubmitted    = "request_submitted"
	TypeRequestBroadcast    = "request_broadcast"
	TypeClaimConfirmed      = "claim_confirmed"
	TypeClaimSucceeded      = "claim_succeeded"
	TypeClaimTaken          = "claim_taken"
	TypeRequestExpired      = "request_expired"
	TypeRequestNoResponders = "request_no_responders"
	TypeSessionState        = "session_state"
	TypeError               = "error"
	TypePong                = "pong"
)

type Joined struct {
	Type        string           `json:"type"`
	Participant string           `json:"participant"`
	Role        domain.Role      `json:"role"`
	SessionID   domain.SessionID `json:"session_id,omitempty"`
}

type CapabilitiesAck struct {
	Type         string              `json:"type"`
	Languages    []string            `json:"languages"`
	Availability domain.Availability `json:"availability"`
}

type RequestSubmitted struct {
	Type      string           `json:"type"`
	RequestID domain.RequestID `json:"request_id"`
	Notified  int              `json:"notified"`
	ExpiresAt time.Time        `json:"expires_at"`
}

type RequestBroadcast struct {
	Type          string             `json:"type"`
	RequestID     domain.RequestID   `json:"request_id"`
	RequesterName string             `json:"requester_name"`
	Language      string             `json:"language"`
	Urgency       domain.Urgency     `json:"urgency"`
	SessionType   domain.SessionType `json:"session_type"`
	ExpiresAt     time.Time          `json:"expires_at"`
}

type ClaimOutcome struct {
	Type            string               `json:"type"`
	RequestID       domain.RequestID     `json:"request_id"`
	SessionID       domain.SessionID     `json:"session_id,omitempty"`
	Counterpart     domain.ParticipantID `json:"counterpart,omitempty"`
	CounterpartName string               `json:"counterpart_name,omitempty"`
}

type RequestClosed struct {
	Type      string           `json:"type"`
	RequestID domain.RequestID `json:"request_id"`
}

type SessionState struct {
	Type        string              `json:"type"`
	SessionID   domain.SessionID    `json:"session_id"`
	State       domain.SessionState `json:"state"`
	MissingRole domain.Role         `json:"missing_role,omitempty"`
	Reason      domain.EndReason    `json:"reason,omitempty"`
}

type Error struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type Pong struct {
	Type string `json:"type"`
}

// Send marshals v and pushes it on the connection without blocking. A full
// send buffer drops the frame; control events are recoverable by re-join.
func Send(conn core.SignalConnection, v any) {
	if conn == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "events").Msg("marshal event")
		return
	}
	if err := conn.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "events").Msg("dropped event")
	}
}
