package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zarshamwaleed/edulearn-chat/internal/auth"
	"github.com/zarshamwaleed/edulearn-chat/internal/config"
	"github.com/zarshamwaleed/edulearn-chat/internal/domain"
	"github.com/zarshamwaleed/edulearn-chat/internal/hub"
	"github.com/zarshamwaleed/edulearn-chat/internal/service"
	"github.com/zarshamwaleed/edulearn-chat/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSHandler struct {
	hub      *hub.Hub
	router   service.Router
	provider auth.Provider
	wsCfg    config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, router service.Router, provider auth.Provider, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:      h,
		router:   router,
		provider: provider,
		wsCfg:    wsCfg,
	}
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.HandleWebSocket)
}

func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	// The handshake must carry credentials; the token itself stays opaque
	// to the router.
	if h.provider != nil {
		if _, err := h.provider.Verify(c.Request.Context(), auth.TokenFromRequest(c.Request)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, domain.APIResponse{
				Success: false,
				Error:   "invalid credentials",
			})
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleMessage, func(cl *hub.Client) {
		// Request context is gone by the time the pump exits.
		h.router.HandleDisconnect(context.Background(), cl)
	})
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.Push(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid message format"))
		return
	}

	ctx := log.WithLogger(context.Background(), log.L().With().Str(log.FieldConnID, client.ID).Logger())

	switch base.Type {
	case domain.MsgTypeRegister:
		var msg domain.RegisterMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.Push(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid register_user message"))
			return
		}
		if err := h.router.HandleRegister(ctx, client, msg.Username); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Msg("register failed")
		}

	case domain.MsgTypeSend:
		var msg domain.SendMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.Push(domain.NewErrorMessage(domain.ErrCodeBadRequest, "invalid send_message"))
			return
		}
		if err := h.router.HandleSend(ctx, client, msg); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Msg("send_message failed")
		}

	case domain.MsgTypePing:
		client.Push(map[string]string{"type": domain.MsgTypePong})

	default:
		client.Push(domain.NewErrorMessage(domain.ErrCodeBadRequest, "unknown message type"))
	}
}
