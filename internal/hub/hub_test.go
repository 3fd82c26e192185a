package hub

import (
	"errors"
	"testing"
	"time"

	"github.com/zarshamwaleed/edulearn-chat/internal/config"
)

func testConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     4,
	}
}

func TestPushAfterCloseSend(t *testing.T) {
	c := NewClient("c1", nil, nil, testConfig())

	if err := c.Push(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("push to open client failed: %v", err)
	}

	c.CloseSend()
	c.CloseSend() // second close is a no-op

	// A presence lookup can still hold this handle after the connection
	// closed; pushing must report the closed connection, not panic.
	if err := c.Push(map[string]string{"type": "ping"}); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestUnregisterClosesSendQueue(t *testing.T) {
	h := NewHub(testConfig())
	go h.Run()
	defer h.Stop()

	c := NewClient("c1", h, nil, testConfig())
	h.Register(c)

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.Unregister(c)
	deadline = time.Now().Add(2 * time.Second)
	for {
		if err := c.Push(map[string]string{"type": "ping"}); errors.Is(err, ErrConnectionClosed) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("send queue never closed after unregister")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if h.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", h.ClientCount())
	}
}

func TestStopEndsRunLoop(t *testing.T) {
	h := NewHub(testConfig())

	stopped := make(chan struct{})
	go func() {
		h.Run()
		close(stopped)
	}()

	h.Stop()
	h.Stop() // idempotent

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	// Register after stop must not block forever.
	done := make(chan struct{})
	go func() {
		h.Register(NewClient("late", h, nil, testConfig()))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Register blocked after Stop")
	}
}
