package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zarshamwaleed/edulearn-chat/internal/cache"
	"github.com/zarshamwaleed/edulearn-chat/internal/config"
	"github.com/zarshamwaleed/edulearn-chat/internal/domain"
	"github.com/zarshamwaleed/edulearn-chat/internal/hub"
	"github.com/zarshamwaleed/edulearn-chat/internal/presence"
)

type memMessageRepo struct {
	mu        sync.Mutex
	messages  []domain.Message
	appendErr error
	readErr   error
	reads     int
}

func (r *memMessageRepo) Append(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	msg.CreatedAt = time.Now()
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *memMessageRepo) GetConversation(ctx context.Context, a, b string) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if r.readErr != nil {
		return nil, r.readErr
	}
	var out []domain.Message
	for _, m := range r.messages {
		if (m.Sender == a && m.Receiver == b) || (m.Sender == b && m.Receiver == a) {
			out = append(out, m)
		}
	}
	return out, nil
}

type memConvRepo struct {
	mu        sync.Mutex
	peers     map[string][]string
	upsertErr error
}

func newMemConvRepo() *memConvRepo {
	return &memConvRepo{peers: make(map[string][]string)}
}

func (r *memConvRepo) UpsertPair(ctx context.Context, a, b string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.add(a, b)
	r.add(b, a)
	return nil
}

func (r *memConvRepo) add(owner, peer string) {
	for _, p := range r.peers[owner] {
		if p == peer {
			return
		}
	}
	r.peers[owner] = append(r.peers[owner], peer)
}

func (r *memConvRepo) ListPeers(ctx context.Context, identity string) ([]domain.ConversationSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ConversationSummary
	for _, p := range r.peers[identity] {
		out = append(out, domain.ConversationSummary{Peer: p})
	}
	return out, nil
}

type recordingHandle struct {
	mu     sync.Mutex
	events []interface{}
}

func (h *recordingHandle) Push(event interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return nil
}

func (h *recordingHandle) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func newTestRouter(msgs *memMessageRepo, convs *memConvRepo, reg *presence.Registry) Router {
	return NewRouter(msgs, convs, reg, nil, 0)
}

func TestSendValidation(t *testing.T) {
	msgs := &memMessageRepo{}
	router := newTestRouter(msgs, newMemConvRepo(), presence.NewRegistry())

	cases := []struct {
		name             string
		sender, receiver string
	}{
		{"empty sender", "", "bob"},
		{"empty receiver", "alice", ""},
		{"whitespace sender", "   ", "bob"},
		{"both empty", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := router.Send(context.Background(), tc.sender, tc.receiver, "hi")
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	if len(msgs.messages) != 0 {
		t.Fatal("rejected sends must not be persisted")
	}
}

func TestSendStorageFailureIsFatal(t *testing.T) {
	msgs := &memMessageRepo{appendErr: errors.New("disk full")}
	reg := presence.NewRegistry()
	receiver := &recordingHandle{}
	reg.Register("bob", receiver)

	router := newTestRouter(msgs, newMemConvRepo(), reg)

	err := router.Send(context.Background(), "alice", "bob", "hi")
	if err == nil {
		t.Fatal("expected storage error to propagate")
	}
	if receiver.count() != 0 {
		t.Fatal("no live delivery may happen after a failed persist")
	}
}

func TestSendDirectoryFailureIsNonFatal(t *testing.T) {
	msgs := &memMessageRepo{}
	convs := newMemConvRepo()
	convs.upsertErr = errors.New("directory down")

	router := newTestRouter(msgs, convs, presence.NewRegistry())

	if err := router.Send(context.Background(), "alice", "bob", "hi"); err != nil {
		t.Fatalf("directory failure must not fail the send: %v", err)
	}
	if len(msgs.messages) != 1 {
		t.Fatal("message should have been persisted")
	}
}

func TestSendDeliveryMiss(t *testing.T) {
	msgs := &memMessageRepo{}
	convs := newMemConvRepo()
	router := newTestRouter(msgs, convs, presence.NewRegistry())

	// Receiver offline: send still succeeds and the message is readable
	// via history.
	if err := router.Send(context.Background(), "alice", "bob", "Hello!"); err != nil {
		t.Fatalf("offline receiver must not fail the send: %v", err)
	}

	history, err := router.GetHistory(context.Background(), "alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Sender != "alice" || history[0].Body != "Hello!" {
		t.Fatalf("unexpected history: %+v", history)
	}

	// Directory symmetry: both sides see each other.
	for owner, want := range map[string]string{"alice": "bob", "bob": "alice"} {
		peers, err := router.ListConversations(context.Background(), owner)
		if err != nil {
			t.Fatal(err)
		}
		if len(peers) != 1 || peers[0].Peer != want {
			t.Fatalf("conversations for %s: got %+v, want peer %s", owner, peers, want)
		}
	}
}

func TestSendLiveDelivery(t *testing.T) {
	msgs := &memMessageRepo{}
	reg := presence.NewRegistry()
	receiver := &recordingHandle{}
	reg.Register("bob", receiver)

	router := newTestRouter(msgs, newMemConvRepo(), reg)

	if err := router.Send(context.Background(), "alice", "bob", "How are you?"); err != nil {
		t.Fatal(err)
	}

	if receiver.count() != 1 {
		t.Fatalf("expected 1 delivered event, got %d", receiver.count())
	}
	evt, ok := receiver.events[0].(*domain.NewMessageEvent)
	if !ok {
		t.Fatalf("unexpected event type %T", receiver.events[0])
	}
	if evt.Type != domain.MsgTypeNewMessage || evt.Sender != "alice" || evt.Body != "How are you?" {
		t.Fatalf("unexpected event: %+v", evt)
	}
}

func TestSendDeliversOnlyToNewestRegistration(t *testing.T) {
	msgs := &memMessageRepo{}
	reg := presence.NewRegistry()
	c1 := &recordingHandle{}
	c2 := &recordingHandle{}
	reg.Register("bob", c1)
	reg.Register("bob", c2)

	router := newTestRouter(msgs, newMemConvRepo(), reg)

	if err := router.Send(context.Background(), "alice", "bob", "hi"); err != nil {
		t.Fatal(err)
	}

	if c1.count() != 0 {
		t.Fatal("superseded connection must not receive deliveries")
	}
	if c2.count() != 1 {
		t.Fatal("newest registration should receive the delivery")
	}
}

func TestGetHistoryIdempotentAndOrdered(t *testing.T) {
	msgs := &memMessageRepo{}
	router := newTestRouter(msgs, newMemConvRepo(), presence.NewRegistry())

	ctx := context.Background()
	if err := router.Send(ctx, "alice", "bob", "m1"); err != nil {
		t.Fatal(err)
	}
	if err := router.Send(ctx, "alice", "bob", "m2"); err != nil {
		t.Fatal(err)
	}
	if err := router.Send(ctx, "bob", "alice", "m3"); err != nil {
		t.Fatal(err)
	}

	first, err := router.GetHistory(ctx, "alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	second, err := router.GetHistory(ctx, "alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("expected 3 messages, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatal("repeated reads must return identical sequences")
		}
	}
	if first[0].Body != "m1" || first[1].Body != "m2" {
		t.Fatal("single-sender messages must keep issuance order")
	}

	// Symmetry: both directions return the same set.
	reversed, err := router.GetHistory(ctx, "bob", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(reversed) != len(first) {
		t.Fatal("getHistory(A,B) and getHistory(B,A) must return the same messages")
	}
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]domain.Message
	gets int
	sets int
	dels int
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]domain.Message)}
}

func (c *memCache) Get(ctx context.Context, key string) ([]domain.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if msgs, ok := c.data[key]; ok {
		return msgs, nil
	}
	return nil, cache.ErrCacheMiss
}

func (c *memCache) Set(ctx context.Context, key string, msgs []domain.Message, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.data[key] = msgs
	return nil
}

func (c *memCache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dels++
	delete(c.data, key)
	return nil
}

func (c *memCache) BuildKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

func (c *memCache) Close() error { return nil }

func (c *memCache) setCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets
}

func (c *memCache) delCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dels
}

func TestGetHistoryUsesCache(t *testing.T) {
	msgs := &memMessageRepo{}
	historyCache := newMemCache()
	router := NewRouter(msgs, newMemConvRepo(), presence.NewRegistry(), historyCache, time.Minute)

	ctx := context.Background()
	if err := router.Send(ctx, "alice", "bob", "m1"); err != nil {
		t.Fatal(err)
	}

	if _, err := router.GetHistory(ctx, "alice", "bob"); err != nil {
		t.Fatal(err)
	}
	repoReads := msgs.reads
	if historyCache.setCount() == 0 {
		t.Fatal("first read should have filled the cache")
	}

	if _, err := router.GetHistory(ctx, "bob", "alice"); err != nil {
		t.Fatal(err)
	}
	if msgs.reads != repoReads {
		t.Fatal("second read should have been served from cache")
	}

	// A new send invalidates the cached pair.
	if err := router.Send(ctx, "bob", "alice", "m2"); err != nil {
		t.Fatal(err)
	}
	if historyCache.delCount() == 0 {
		t.Fatal("send should invalidate the cached history")
	}
}

// gatedCache runs a hook before the first Set, simulating work that
// lands between the repo read and the cache fill.
type gatedCache struct {
	*memCache
	beforeSet func()
}

func (c *gatedCache) Set(ctx context.Context, key string, msgs []domain.Message, ttl time.Duration) error {
	if f := c.beforeSet; f != nil {
		c.beforeSet = nil
		f()
	}
	return c.memCache.Set(ctx, key, msgs, ttl)
}

func TestSendDuringCacheFillDoesNotPinStaleHistory(t *testing.T) {
	msgs := &memMessageRepo{}
	historyCache := &gatedCache{memCache: newMemCache()}
	router := NewRouter(msgs, newMemConvRepo(), presence.NewRegistry(), historyCache, time.Minute)
	ctx := context.Background()

	if err := router.Send(ctx, "alice", "bob", "m1"); err != nil {
		t.Fatal(err)
	}

	// m2 is persisted and the key invalidated after the fill's repo read
	// but before its cache write. The stale one-message snapshot must not
	// survive as the cached history.
	historyCache.beforeSet = func() {
		if err := router.Send(ctx, "alice", "bob", "m2"); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := router.GetHistory(ctx, "alice", "bob"); err != nil {
		t.Fatal(err)
	}

	history, err := router.GetHistory(ctx, "alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("persisted message missing from history: got %d messages", len(history))
	}
	if history[1].Body != "m2" {
		t.Fatalf("unexpected history tail: %+v", history)
	}
}

func TestReregisterReleasesPreviousIdentity(t *testing.T) {
	reg := presence.NewRegistry()
	router := newTestRouter(&memMessageRepo{}, newMemConvRepo(), reg)
	ctx := context.Background()

	client := hub.NewClient("c1", nil, nil, config.WebSocketConfig{SendBuffer: 4})

	if err := router.HandleRegister(ctx, client, "A"); err != nil {
		t.Fatal(err)
	}
	if err := router.HandleRegister(ctx, client, "B"); err != nil {
		t.Fatal(err)
	}

	if _, ok := reg.Lookup("A"); ok {
		t.Fatal("re-registration must release the previous identity")
	}
	if _, ok := reg.Lookup("B"); !ok {
		t.Fatal("current identity should be registered")
	}

	router.HandleDisconnect(ctx, client)
	if _, ok := reg.Lookup("B"); ok {
		t.Fatal("disconnect must release the current identity")
	}
}

func TestSendToClosedConnectionIsDeliveryMiss(t *testing.T) {
	msgs := &memMessageRepo{}
	reg := presence.NewRegistry()
	router := newTestRouter(msgs, newMemConvRepo(), reg)
	ctx := context.Background()

	client := hub.NewClient("c1", nil, nil, config.WebSocketConfig{SendBuffer: 4})
	if err := router.HandleRegister(ctx, client, "A"); err != nil {
		t.Fatal(err)
	}

	// The connection dies with its binding still visible to a concurrent
	// lookup. Delivery must degrade to a miss, not crash the router.
	client.CloseSend()

	if err := router.Send(ctx, "x", "A", "hi"); err != nil {
		t.Fatalf("send to a closing connection must still succeed: %v", err)
	}
	if len(msgs.messages) != 1 {
		t.Fatal("message should have been persisted despite the dead connection")
	}
}
