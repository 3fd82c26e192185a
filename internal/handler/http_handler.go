package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zarshamwaleed/edulearn-chat/internal/auth"
	"github.com/zarshamwaleed/edulearn-chat/internal/domain"
	"github.com/zarshamwaleed/edulearn-chat/internal/service"
)

type HTTPHandler struct {
	router service.Router
}

func NewHTTPHandler(router service.Router) *HTTPHandler {
	return &HTTPHandler{router: router}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine, identity gin.HandlerFunc) {
	api := r.Group("/api/v1")
	if identity != nil {
		api.Use(identity)
	}
	{
		api.GET("/conversations/:identity", h.ListConversations)
		api.GET("/history/:identity/:peer", h.GetHistory)
		api.POST("/messages", h.SendMessage)
	}

	r.GET("/health", h.HealthCheck)
	r.GET("/stats", h.Stats)
}

func (h *HTTPHandler) ListConversations(c *gin.Context) {
	identity := c.Param("identity")
	if identity == "" {
		c.JSON(http.StatusBadRequest, domain.APIResponse{
			Success: false,
			Error:   "identity is required",
		})
		return
	}

	peers, err := h.router.ListConversations(c.Request.Context(), identity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, domain.APIResponse{
			Success: false,
			Error:   "failed to list conversations",
		})
		return
	}

	c.JSON(http.StatusOK, domain.APIResponse{
		Success: true,
		Data:    peers,
	})
}

func (h *HTTPHandler) GetHistory(c *gin.Context) {
	identity := c.Param("identity")
	peer := c.Param("peer")
	if identity == "" || peer == "" {
		c.JSON(http.StatusBadRequest, domain.APIResponse{
			Success: false,
			Error:   "identity and peer are required",
		})
		return
	}

	messages, err := h.router.GetHistory(c.Request.Context(), identity, peer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, domain.APIResponse{
			Success: false,
			Error:   "failed to get history",
		})
		return
	}

	c.JSON(http.StatusOK, domain.APIResponse{
		Success: true,
		Data:    messages,
	})
}

// SendMessage is the request/response twin of the realtime send_message
// frame. It runs the identical persistence path and is how a brand-new
// conversation is originated before any realtime exchange.
func (h *HTTPHandler) SendMessage(c *gin.Context) {
	var req struct {
		Sender   string `json:"sender"`
		Receiver string `json:"receiver"`
		Body     string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.APIResponse{
			Success: false,
			Error:   "invalid request body",
		})
		return
	}

	// Default the sender from the authenticated identity.
	if actor := auth.IdentityFromContext(c); actor != "" && req.Sender == "" {
		req.Sender = actor
	}

	if err := h.router.Send(c.Request.Context(), req.Sender, req.Receiver, req.Body); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			c.JSON(http.StatusBadRequest, domain.APIResponse{
				Success: false,
				Error:   err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, domain.APIResponse{
			Success: false,
			Error:   "failed to send message",
		})
		return
	}

	c.JSON(http.StatusOK, domain.APIResponse{Success: true})
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, domain.APIResponse{
		Success: true,
		Data:    gin.H{"online": h.router.OnlineCount()},
	})
}
