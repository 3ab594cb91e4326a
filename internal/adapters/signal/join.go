package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/terpcall/terpcall/internal/core"
	"github.com/terpcall/terpcall/internal/domain"
	"github.com/terpcall/terpcall/internal/events"
)

func (ctl *SignalWSController) handleJoin(
	connID core.ConnID,
	conn *wsSignalConn,
	data []byte,
) {
	type joinPayload struct {
		Type        string `json:"type"`
		Participant string `json:"participant"`
		Name        string `json:"name"`
		Role        string `json:"role"`
		SessionID   string `json:"session_id,omitempty"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad_payload", "malformed join")
		return
	}
	role, err := domain.ParseRole(p.Role)
	if err != nil {
		ctl.sendError(conn, "bad_payload", "unknown role")
		return
	}
	if _, err := domain.NewParticipant(domain.ParticipantID(p.Participant), p.Name, role); err != nil {
		ctl.sendError(conn, "bad_payload", err.Error())
		return
	}

	err = ctl.Orch.Join(connID, conn, domain.ParticipantID(p.Participant), p.Name, role, domain.SessionID(p.SessionID))
	if err != nil {
		ctl.sendError(conn, errCode(err), err.Error())
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(connID)).Str("participant", p.Participant).Str("role", p.Role).Msg("join")
	events.Send(conn, events.Joined{
		Type:        events.TypeJoined,
		Participant: p.Participant,
		Role:        role,
		SessionID:   domain.SessionID(p.SessionID),
	})
}

func (ctl *SignalWSController) handleCapabilities(
	connID core.ConnID,
	conn *wsSignalConn,
	data []byte,
) {
	type capsPayload struct {
		Type            string   `json:"type"`
		Languages       []string `json:"languages"`
		Specializations []string `json:"specializations,omitempty"`
		Availability    string   `json:"availability"`
	}
	var p capsPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad capabilities payload")
		ctl.sendError(conn, "bad_payload", "malformed capabilities")
		return
	}
	if p.Availability == "" {
		p.Availability = string(domain.Available)
	}
	caps := domain.Capabilities{
		Languages:       p.Languages,
		Specializations: p.Specializations,
		Availability:    domain.Availability(p.Availability),
	}
	if err := ctl.Orch.Registry.SetCapabilities(connID, caps); err != nil {
		ctl.sendError(conn, errCode(err), err.Error())
		return
	}
	events.Send(conn, events.CapabilitiesAck{
		Type:         events.TypeCapabilitiesAck,
		Languages:    p.Languages,
		Availability: caps.Availability,
	})
}
