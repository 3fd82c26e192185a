package client

import (
	"context"
	"sync"
)

// Conversation is one open conversation view: it subscribes to the
// session's live delivery for the peer, fetches the authoritative
// history, and keeps the merged timeline current.
type Conversation struct {
	Peer string

	session  *Session
	rest     *RESTClient
	timeline *Timeline

	mu     sync.Mutex
	cancel context.CancelFunc
}

// OpenConversation starts a view on the conversation with peer. The
// subscription is taken before the history fetch so a live message that
// races the fetch is never lost; the fetch result replaces base state
// and racing events are merged on top. On fetch failure the view stays
// usable with its previous (possibly empty) timeline and the error is
// returned for a user-visible retry.
func (s *Session) OpenConversation(ctx context.Context, rest *RESTClient, peer string) (*Conversation, error) {
	c := &Conversation{
		Peer:     peer,
		session:  s,
		rest:     rest,
		timeline: NewTimeline(s.opts.Identity, peer),
	}

	events := s.Subscribe(peer)

	pumpCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.pump(pumpCtx, events)

	if err := c.Refresh(ctx); err != nil {
		return c, err
	}
	return c, nil
}

// Refresh re-fetches the history and merges it into the timeline. Prior
// entries are kept untouched when the fetch fails.
func (c *Conversation) Refresh(ctx context.Context) error {
	c.timeline.BeginFetch()
	history, err := c.rest.History(ctx, c.session.opts.Identity, c.Peer)
	if err != nil {
		c.timeline.FailFetch()
		return err
	}
	c.timeline.CompleteFetch(history)
	return nil
}

// Send emits text to the peer with an optimistic local echo. A locally
// rejected send removes the echo again and returns the error so the
// caller can restore the input; the text is never silently discarded.
func (c *Conversation) Send(text string) error {
	echo := c.timeline.AppendEcho(text)
	if err := c.session.SendMessage(c.Peer, text); err != nil {
		c.timeline.RemoveEcho(echo.ID)
		return err
	}
	return nil
}

// Timeline returns the merged timeline snapshot.
func (c *Conversation) Timeline() []Entry {
	return c.timeline.Entries()
}

// Close releases the view's delivery subscription. The session itself
// stays open for other conversations.
func (c *Conversation) Close() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.session.Unsubscribe(c.Peer)
}

func (c *Conversation) pump(ctx context.Context, events <-chan LiveMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			c.timeline.ApplyLive(msg)
		}
	}
}
