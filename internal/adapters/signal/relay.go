package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/terpcall/terpcall/internal/core"
	"github.com/terpcall/terpcall/internal/domain"
)

// handleRelay forwards offer/answer/candidate/chat frames. The full frame is
// passed through verbatim; only session_id is read here, for scoping.
func (ctl *SignalWSController) handleRelay(
	connID core.ConnID,
	conn *wsSignalConn,
	data []byte,
) {
	var p struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.SessionID == "" {
		log.Error().Str("module", "signal").Msg("bad relay payload")
		ctl.sendError(conn, "bad_payload", "session_id required")
		return
	}
	if err := ctl.Orch.Relay.Forward(domain.SessionID(p.SessionID), connID, data); err != nil {
		ctl.sendError(conn, errCode(err), err.Error())
	}
}
