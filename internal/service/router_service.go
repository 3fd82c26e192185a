package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/zarshamwaleed/edulearn-chat/internal/audit"
	"github.com/zarshamwaleed/edulearn-chat/internal/cache"
	"github.com/zarshamwaleed/edulearn-chat/internal/domain"
	"github.com/zarshamwaleed/edulearn-chat/internal/hub"
	"github.com/zarshamwaleed/edulearn-chat/internal/presence"
	"github.com/zarshamwaleed/edulearn-chat/internal/repository"
	"github.com/zarshamwaleed/edulearn-chat/pkg/log"
)

type routerService struct {
	messages repository.MessageRepository
	convs    repository.ConversationRepository
	presence *presence.Registry
	cache    cache.HistoryCache // nil disables caching
	cacheTTL time.Duration
	sf       singleflight.Group

	// Per-key invalidation generation. A cache fill records the
	// generation before its repo read and drops its snapshot if a send
	// bumped the key while the fill was in flight.
	genMu sync.Mutex
	gens  map[string]uint64
}

func NewRouter(
	messages repository.MessageRepository,
	convs repository.ConversationRepository,
	reg *presence.Registry,
	historyCache cache.HistoryCache,
	cacheTTL time.Duration,
) Router {
	return &routerService{
		messages: messages,
		convs:    convs,
		presence: reg,
		cache:    historyCache,
		cacheTTL: cacheTTL,
		gens:     make(map[string]uint64),
	}
}

func (s *routerService) Send(ctx context.Context, sender, receiver, body string) error {
	if strings.TrimSpace(sender) == "" || strings.TrimSpace(receiver) == "" {
		return domain.ErrValidation
	}

	l := log.Ctx(ctx)

	// Persist first. A storage failure fails the whole send; live
	// delivery is never attempted for a message that was not recorded.
	msg := &domain.Message{Sender: sender, Receiver: receiver, Body: body}
	if err := s.messages.Append(ctx, msg); err != nil {
		return fmt.Errorf("failed to persist message: %w", err)
	}

	// Directory update is non-fatal: the message is already durable, so
	// the user-visible operation has succeeded.
	if err := s.convs.UpsertPair(ctx, sender, receiver); err != nil {
		l.Warn().Err(err).
			Str(log.FieldSender, sender).
			Str(log.FieldReceiver, receiver).
			Msg("conversation directory update failed")
	}

	s.invalidateHistory(ctx, sender, receiver)

	audit.LogWithDetail(ctx, audit.ActionSendMessage, sender, receiver, "message sent")

	// Offline receiver is a normal outcome, not an error: the message is
	// retrievable via history.
	handle, ok := s.presence.Lookup(receiver)
	if !ok {
		l.Debug().Str(log.FieldReceiver, receiver).Msg("receiver offline, skipping live delivery")
		return nil
	}

	event := &domain.NewMessageEvent{
		Type:   domain.MsgTypeNewMessage,
		Sender: sender,
		Body:   body,
	}
	if err := handle.Push(event); err != nil {
		l.Warn().Err(err).Str(log.FieldReceiver, receiver).Msg("live delivery failed")
	}
	return nil
}

func (s *routerService) ListConversations(ctx context.Context, identity string) ([]domain.ConversationSummary, error) {
	if strings.TrimSpace(identity) == "" {
		return nil, domain.ErrValidation
	}
	return s.convs.ListPeers(ctx, identity)
}

func (s *routerService) GetHistory(ctx context.Context, identityA, identityB string) ([]domain.Message, error) {
	if strings.TrimSpace(identityA) == "" || strings.TrimSpace(identityB) == "" {
		return nil, domain.ErrValidation
	}

	if s.cache == nil {
		return s.messages.GetConversation(ctx, identityA, identityB)
	}

	key := s.cache.BuildKey(identityA, identityB)

	// Singleflight collapses concurrent identical reads into one fetch.
	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		return s.fetchWithCache(ctx, identityA, identityB, key)
	})
	if err != nil {
		return nil, err
	}

	messages, ok := result.([]domain.Message)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	return messages, nil
}

func (s *routerService) fetchWithCache(ctx context.Context, identityA, identityB, key string) ([]domain.Message, error) {
	cached, err := s.cache.Get(ctx, key)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("history cache get error")
	}

	gen := s.generation(key)

	messages, err := s.messages.GetConversation(ctx, identityA, identityB)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, messages, s.cacheTTL); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("history cache set error")
	} else if s.generation(key) != gen {
		// A send landed while this snapshot was being built; drop it so
		// the next read sees the new message instead of a stale page
		// pinned for a full TTL.
		if err := s.cache.Invalidate(ctx, key); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Msg("history cache invalidate error")
		}
	}

	return messages, nil
}

func (s *routerService) generation(key string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[key]
}

func (s *routerService) invalidateHistory(ctx context.Context, sender, receiver string) {
	if s.cache == nil {
		return
	}
	key := s.cache.BuildKey(sender, receiver)

	s.genMu.Lock()
	s.gens[key]++
	s.genMu.Unlock()

	if err := s.cache.Invalidate(ctx, key); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("history cache invalidate error")
	}
}

func (s *routerService) OnlineCount() int {
	return s.presence.Count()
}

func (s *routerService) HandleRegister(ctx context.Context, c *hub.Client, identity string) error {
	if strings.TrimSpace(identity) == "" {
		return c.Push(domain.NewErrorMessage(domain.ErrCodeValidation, "username is required"))
	}

	// A connection may re-register under a new identity; release the old
	// binding so the dead identity cannot keep pointing at this
	// connection after it closes.
	if c.Session.IsRegistered() {
		if prev := c.Session.GetIdentity(); prev != identity {
			s.presence.Unregister(prev, c)
		}
	}

	c.Session.RegisterIdentity(identity)
	s.presence.Register(identity, c)

	audit.Log(ctx, audit.ActionRegister, identity, "identity registered for live delivery")
	return nil
}

func (s *routerService) HandleSend(ctx context.Context, c *hub.Client, msg domain.SendMessage) error {
	sender := msg.Sender
	if sender == "" && c.Session.IsRegistered() {
		sender = c.Session.GetIdentity()
	}

	if err := s.Send(ctx, sender, msg.Receiver, msg.Body); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return c.Push(domain.NewErrorMessage(domain.ErrCodeValidation, err.Error()))
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldSender, sender).Msg("send failed")
		return c.Push(domain.NewErrorMessage(domain.ErrCodeInternalError, "failed to send message"))
	}
	return nil
}

func (s *routerService) HandleDisconnect(ctx context.Context, c *hub.Client) {
	if !c.Session.IsRegistered() {
		return
	}
	identity := c.Session.GetIdentity()

	// Only the owning connection removes its own binding; the matched
	// unregister keeps a newer registration for the same identity intact.
	s.presence.Unregister(identity, c)
	audit.Log(ctx, audit.ActionDisconnect, identity, "identity disconnected")
}
