package repository

import (
	"context"

	"github.com/zarshamwaleed/edulearn-chat/internal/domain"
)

// MessageRepository is the durable history store. Messages are append-only:
// nothing here updates or deletes a persisted row.
type MessageRepository interface {
	// Append persists a message and stamps its creation time.
	Append(ctx context.Context, msg *domain.Message) error

	// GetConversation returns every message exchanged between the two
	// identities, in either direction, ordered by creation time ascending
	// with persistence order breaking ties.
	GetConversation(ctx context.Context, identityA, identityB string) ([]domain.Message, error)
}

// ConversationRepository is the directory store: which peers have an open
// conversation with a given identity.
type ConversationRepository interface {
	// UpsertPair records the conversation in both directions. Calling it
	// again for a known pair is a no-op.
	UpsertPair(ctx context.Context, identityA, identityB string) error

	// ListPeers returns the peers of the given identity. Order is
	// store-defined; callers must not depend on it.
	ListPeers(ctx context.Context, identity string) ([]domain.ConversationSummary, error)
}
