package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/terpcall/terpcall/internal/core"
	"github.com/terpcall/terpcall/internal/domain"
)

func (ctl *SignalWSController) handleSubmit(
	connID core.ConnID,
	conn *wsSignalConn,
	data []byte,
) {
	type submitPayload struct {
		Type        string `json:"type"`
		Language    string `json:"language"`
		Urgency     string `json:"urgency"`
		SessionType string `json:"session_type"`
	}
	var p submitPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad submit payload")
		ctl.sendError(conn, "bad_payload", "malformed request")
		return
	}
	if p.Language == "" {
		ctl.sendError(conn, "bad_payload", "language required")
		return
	}
	if !ctl.limiter.Allow(connID) {
		ctl.sendError(conn, "rate_limited", "too many requests")
		return
	}
	urgency := domain.Urgency(p.Urgency)
	if urgency == "" {
		urgency = domain.UrgencyStandard
	}
	sessionType := domain.SessionType(p.SessionType)
	if sessionType == "" {
		sessionType = domain.SessionVideo
	}

	if _, err := ctl.Orch.Broker.Submit(connID, p.Language, urgency, sessionType); err != nil {
		ctl.sendError(conn, errCode(err), err.Error())
	}
}

func (ctl *SignalWSController) handleClaim(
	connID core.ConnID,
	conn *wsSignalConn,
	data []byte,
) {
	id, ok := ctl.requestID(conn, data)
	if !ok {
		return
	}
	if _, err := ctl.Orch.Broker.Claim(id, connID); err != nil {
		ctl.sendError(conn, errCode(err), err.Error())
	}
}

func (ctl *SignalWSController) handleDecline(
	connID core.ConnID,
	conn *wsSignalConn,
	data []byte,
) {
	id, ok := ctl.requestID(conn, data)
	if !ok {
		return
	}
	if err := ctl.Orch.Broker.Decline(id, connID); err != nil {
		ctl.sendError(conn, errCode(err), err.Error())
	}
}

func (ctl *SignalWSController) handleCancel(
	connID core.ConnID,
	conn *wsSignalConn,
	data []byte,
) {
	id, ok := ctl.requestID(conn, data)
	if !ok {
		return
	}
	if err := ctl.Orch.Broker.Cancel(id, connID); err != nil {
		ctl.sendError(conn, errCode(err), err.Error())
	}
}

func (ctl *SignalWSController) requestID(conn *wsSignalConn, data []byte) (domain.RequestID, bool) {
	var p struct {
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.RequestID == "" {
		ctl.sendError(conn, "bad_payload", "request_id required")
		return "", false
	}
	return domain.RequestID(p.RequestID), true
}
