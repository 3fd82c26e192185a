package service

import (
	"context"

	"github.com/zarshamwaleed/edulearn-chat/internal/domain"
	"github.com/zarshamwaleed/edulearn-chat/internal/hub"
)

// Router validates and dispatches chat messages: persist first, then
// deliver live to the receiver if one is registered.
type Router interface {
	// Send persists the message, records the conversation pair in both
	// directions, and pushes a live event to the receiver's connection if
	// one is registered. An offline receiver is not an error.
	Send(ctx context.Context, sender, receiver, body string) error

	// ListConversations returns the peers that have an open conversation
	// with identity. Order is unspecified.
	ListConversations(ctx context.Context, identity string) ([]domain.ConversationSummary, error)

	// GetHistory returns every message between the two identities in
	// either direction, ordered by creation time ascending.
	GetHistory(ctx context.Context, identityA, identityB string) ([]domain.Message, error)

	// OnlineCount reports how many identities are registered for live delivery.
	OnlineCount() int

	// HandleRegister binds an identity to its websocket client.
	HandleRegister(ctx context.Context, c *hub.Client, identity string) error

	// HandleSend services a send_message frame from a registered connection.
	HandleSend(ctx context.Context, c *hub.Client, msg domain.SendMessage) error

	// HandleDisconnect releases the presence binding of a closing connection.
	HandleDisconnect(ctx context.Context, c *hub.Client)
}
