// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxNameLen = 36

var (
	ErrNameTooLong = errors.New("display name too long")
	ErrNameEmpty   = errors.New("display name empty")
	ErrBadRole     = errors.New("unknown role")
)

type ParticipantID string

type Role string

const (
	RoleRequester Role = "requester"
	RoleResponder Role = "responder"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleRequester, RoleResponder:
		return Role(s), nil
	}
	return "", ErrBadRole
}

type Availability string

const (
	Available   Availability = "available"
	Busy        Availability = "busy"
	Unavailable Availability = "unavailable"
)

type Participant struct {
	ID   ParticipantID `json:"id"`
	Name string        `json:"name"`
	Role Role          `json:"role"`
}

// NewParticipant is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewParticipant(id ParticipantID, name string, role Role) (*Participant, error) {
	if len(name) == 0 {
		return nil, ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return nil, ErrNameTooLong
	}
	return &Participant{ID: id, Name: name, Role: role}, nil
}

// Capabilities is what a responder advertises for routing.
type Capabilities struct {
	Languages       []string     `json:"languages"`
	Specializations []string     `json:"specializations,omitempty"`
	Availability    Availability `json:"availability"`
}
