package signal

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"github.com/terpcall/terpcall/internal/app"
	"github.com/terpcall/terpcall/internal/config"
	"github.com/terpcall/terpcall/internal/core"
	"github.com/terpcall/terpcall/internal/events"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type SignalWSController struct {
	Orch    *app.Orchestrator
	cfg     *config.Config
	limiter *SubmitRateLimiter
}

func NewSignalWSController(orch *app.Orchestrator, cfg *config.Config) *SignalWSController {
	return &SignalWSController{
		Orch:    orch,
		cfg:     cfg,
		limiter: NewSubmitRateLimiter(cfg.SubmitLimit, cfg.SubmitInterval),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.cfg.ReadLimit)

	connID := core.ConnID(uuid.NewString())
	log.Info().Str("module", "signal").Str("conn", string(connID)).Msg("new WS connection")

	conn := newWSSignalConn(ws)
	ctx, cancel := context.WithCancel(ctx)

	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, connID, conn)
	}()
}

func (ctl *SignalWSController) handleSignal(connID core.ConnID, c *wsSignalConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case events.TypeJoin:
		ctl.handleJoin(connID, c, data)
	case events.TypeRegisterCapabilities:
		ctl.handleCapabilities(connID, c, data)
	case events.TypeSubmitRequest:
		ctl.handleSubmit(connID, c, data)
	case events.TypeClaimRequest:
		ctl.handleClaim(connID, c, data)
	case events.TypeDeclineRequest:
		ctl.handleDecline(connID, c, data)
	case events.TypeCancelRequest:
		ctl.handleCancel(connID, c, data)
	case events.TypeOffer, events.TypeAnswer, events.TypeCandidate, events.TypeChat:
		ctl.handleRelay(connID, c, data)
	case events.TypeEndSession:
		ctl.handleEnd(connID, c, data)
	case events.TypePing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *SignalWSController) sendError(c *wsSignalConn, code, msg string) {
	events.Send(c, events.Error{Type: events.TypeError, Code: code, Message: msg})
}

// errCode maps app-layer sentinels to wire error codes.
func errCode(err error) string {
	switch err {
	case app.ErrNotFound:
		return "not_found"
	case app.ErrAlreadyTaken:
		return "already_taken"
	case app.ErrExpired:
		return "expired"
	case app.ErrNotAMember:
		return "not_a_member"
	case app.ErrDuplicateRegistration:
		return "duplicate_registration"
	case app.ErrInvalidRole:
		return "invalid_role"
	default:
		return "internal"
	}
}
