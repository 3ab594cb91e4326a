package signal

import (
	"github.com/terpcall/terpcall/internal/core"
	"github.com/terpcall/terpcall/internal/domain"
	"github.com/terpcall/terpcall/internal/events"
)

func (ctl *SignalWSController) handlePing(
	conn *wsSignalConn,
) {
	events.Send(conn, events.Pong{Type: events.TypePong})
}

func (ctl *SignalWSController) handleEnd(
	connID core.ConnID,
	conn *wsSignalConn,
	data []byte,
) {
	var p struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.SessionID == "" {
		ctl.sendError(conn, "bad_payload", "session_id required")
		return
	}
	if err := ctl.Orch.Sessions.End(domain.SessionID(p.SessionID), connID); err != nil {
		ctl.sendError(conn, errCode(err), err.Error())
	}
}
