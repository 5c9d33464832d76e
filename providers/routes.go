package providers

import (
	"encoding/json"
	"strings"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/meetscribe/realtime/src/types"
)

var upgrader = websocket.FastHTTPUpgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// RegisterRoutes registers the realtime info route via Fiber.
// The WebSocket upgrade uses FastHTTPHandler, registered at the app
// level since Fiber v3 does not expose *fasthttp.RequestCtx.
func (p *RealtimePlugin) RegisterRoutes(group fiber.Router) {
	group.Get("/realtime/info", p.handleInfo)
}

func (p *RealtimePlugin) handleInfo(c fiber.Ctx) error {
	lastType := ""
	if msg := p.router.LastMessage(); msg != nil {
		lastType = msg.Type
	}
	return c.JSON(fiber.Map{
		"connected":          p.manager.IsConnected(),
		"state":              p.manager.State().String(),
		"reconnect_attempts": p.manager.ReconnectAttempts(),
		"last_message_type":  lastType,
	})
}

// FastHTTPHandler returns a raw fasthttp handler serving a local
// development realtime endpoint: it rejects tokenless requests, acks
// new connections, and answers pings, so the client has something to
// dial before the real backend exists. Register on the fasthttp
// server at the endpoint path.
func (p *RealtimePlugin) FastHTTPHandler() fasthttp.RequestHandler {
	logger := p.ctx.Logger
	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}
		if len(ctx.QueryArgs().Peek("token")) == 0 {
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			ctx.SetBodyString(`{"error":"unauthorized","message":"token required"}`)
			return
		}

		clientID := uuid.New().String()
		err := upgrader.Upgrade(ctx, func(c *websocket.Conn) {
			defer c.Close()
			_ = c.WriteJSON(types.Message{Type: types.TypeConnectionAck})
			for {
				_, frame, err := c.ReadMessage()
				if err != nil {
					return
				}
				var msg types.Message
				if json.Unmarshal(frame, &msg) == nil && msg.Type == types.TypePing {
					_ = c.WriteJSON(types.Message{Type: types.TypePong})
				}
			}
		})
		if err != nil {
			logger.Error().Err(err).Str("client_id", clientID).Msg("websocket upgrade failed")
		}
	}
}
