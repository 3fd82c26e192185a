package client

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zarshamwaleed/edulearn-chat/internal/domain"
)

// State is the connection lifecycle state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateRegistered
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateRegistered:
		return "registered"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

var (
	ErrEmptyMessage  = errors.New("message body is empty")
	ErrSessionClosed = errors.New("session is closed")
)

// LiveMessage is one new_message event as seen by conversation views.
type LiveMessage struct {
	Sender string
	Body   string
}

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
	subscribeBuffer   = 64
	pendingEventCap   = 256
)

// Options configures a Session.
type Options struct {
	// URL is the websocket endpoint, e.g. ws://host:8090/ws.
	URL string
	// Identity is registered on every (re)connect.
	Identity string
	// Token is the opaque credential attached to the handshake.
	Token string

	MinBackoff time.Duration
	MaxBackoff time.Duration

	Dialer *websocket.Dialer
	Logger zerolog.Logger
}

// Session manages one persistent connection: registration, inbound
// delivery, outbound send, and reconnection with capped backoff.
// Presence is not durable on the server, so the identity is re-registered
// after every reconnect.
type Session struct {
	opts Options

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	subs    map[string]chan LiveMessage // peer -> delivery channel
	pending map[string][]LiveMessage    // events for peers with no open view yet
	queue   []domain.SendMessage        // outbound, waiting for re-register

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSession(opts Options) *Session {
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = defaultMinBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Session{
		opts:    opts,
		state:   StateDisconnected,
		subs:    make(map[string]chan LiveMessage),
		pending: make(map[string][]LiveMessage),
	}
}

// Open starts the connect/register/read loop. It returns immediately;
// delivery begins once the transport is up and the registration frame
// has been written.
func (s *Session) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	if s.cancel != nil {
		return nil // already open
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
	return nil
}

// Close tears the session down: the retry task is cancelled, the
// transport closed, and all delivery subscriptions released. The session
// cannot be reopened.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	cancel := s.cancel
	conn := s.conn
	s.conn = nil
	for peer, ch := range s.subs {
		close(ch)
		delete(s.subs, peer)
	}
	s.pending = make(map[string][]LiveMessage)
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if done != nil {
		<-done
	}
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe returns the live delivery channel for a peer. Events that
// arrived for the peer before any view subscribed are drained into the
// channel first, so nothing is lost across an open. The channel is
// closed on session teardown.
func (s *Session) Subscribe(peer string) <-chan LiveMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		ch := make(chan LiveMessage)
		close(ch)
		return ch
	}

	if ch, ok := s.subs[peer]; ok {
		return ch
	}

	ch := make(chan LiveMessage, subscribeBuffer)
	for _, msg := range s.pending[peer] {
		select {
		case ch <- msg:
		default:
		}
	}
	delete(s.pending, peer)
	s.subs[peer] = ch
	return ch
}

// Unsubscribe releases the delivery channel for a peer. Later events for
// that peer are buffered again.
func (s *Session) Unsubscribe(peer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[peer]; ok {
		close(ch)
		delete(s.subs, peer)
	}
}

// SendMessage emits a send request for the given receiver. Empty or
// whitespace-only text is rejected locally without touching the network.
// While the session is not registered the message is queued and flushed
// right after the next successful registration.
func (s *Session) SendMessage(receiver, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	frame := domain.SendMessage{
		Type:     domain.MsgTypeSend,
		Sender:   s.opts.Identity,
		Receiver: receiver,
		Body:     text,
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state != StateRegistered || s.conn == nil {
		s.queue = append(s.queue, frame)
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	s.mu.Unlock()

	if err := conn.WriteJSON(frame); err != nil {
		// Transport just died; keep the message for the reconnect flush.
		s.mu.Lock()
		s.queue = append(s.queue, frame)
		s.mu.Unlock()
		return nil
	}
	return nil
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	backoff := s.opts.MinBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		s.setState(StateConnecting)

		conn, err := s.dial(ctx)
		if err != nil {
			s.setState(StateDisconnected)
			s.opts.Logger.Warn().Err(err).Dur("backoff", backoff).Msg("chat connect failed")
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, s.opts.MaxBackoff)
			continue
		}

		// Registration is fire-and-forget: no application-level ack is
		// awaited before the session counts as registered.
		register := domain.RegisterMessage{
			Type:     domain.MsgTypeRegister,
			Username: s.opts.Identity,
		}
		if err := conn.WriteJSON(register); err != nil {
			conn.Close()
			s.setState(StateDisconnected)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, s.opts.MaxBackoff)
			continue
		}

		s.mu.Lock()
		if s.state == StateClosed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		s.state = StateRegistered
		flush := s.queue
		s.queue = nil
		s.mu.Unlock()

		backoff = s.opts.MinBackoff

		for _, frame := range flush {
			if err := conn.WriteJSON(frame); err != nil {
				s.mu.Lock()
				s.queue = append(s.queue, frame)
				s.mu.Unlock()
				break
			}
		}

		s.readLoop(conn)

		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		closed := s.state == StateClosed
		if !closed {
			s.state = StateDisconnected
		}
		s.mu.Unlock()
		conn.Close()

		if closed {
			return
		}
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, s.opts.MaxBackoff)
	}
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	url := s.opts.URL
	if s.opts.Token != "" {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "token=" + s.opts.Token
	}
	conn, _, err := s.opts.Dialer.DialContext(ctx, url, nil)
	return conn, err
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var base domain.BaseMessage
		if err := json.Unmarshal(data, &base); err != nil {
			continue
		}

		switch base.Type {
		case domain.MsgTypeNewMessage:
			var evt domain.NewMessageEvent
			if err := json.Unmarshal(data, &evt); err != nil {
				continue
			}
			s.dispatch(LiveMessage{Sender: evt.Sender, Body: evt.Body})

		case domain.MsgTypeError:
			var evt domain.ErrorMessage
			if err := json.Unmarshal(data, &evt); err != nil {
				continue
			}
			s.opts.Logger.Warn().Str("code", evt.Code).Str("detail", evt.Message).Msg("chat server error")
		}
	}
}

// dispatch hands an inbound event to the subscribed view for its sender,
// or buffers it for a view opened later. It never blocks the read loop.
func (s *Session) dispatch(msg LiveMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.subs[msg.Sender]; ok {
		select {
		case ch <- msg:
		default:
			s.opts.Logger.Warn().Str("sender", msg.Sender).Msg("subscription buffer full, dropping event")
		}
		return
	}

	buf := s.pending[msg.Sender]
	if len(buf) >= pendingEventCap {
		buf = buf[1:]
	}
	s.pending[msg.Sender] = append(buf, msg)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		s.state = st
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
