package client

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zarshamwaleed/edulearn-chat/internal/domain"
)

// Entry is one row of a conversation timeline. Entries appended as
// optimistic local echoes carry a provisional client-assigned ID until a
// server-confirmed copy reconciles them.
type Entry struct {
	ID          string
	Sender      string
	Body        string
	Timestamp   time.Time
	Provisional bool
}

// Timeline assembles one conversation view: a single authoritative
// history fetch merged with live-delivered and locally-echoed messages.
// Ordering is append-order as observed by the client; entries are never
// re-sorted once displayed.
type Timeline struct {
	self string
	peer string

	mu             sync.Mutex
	entries        []Entry
	liveSinceFetch []LiveMessage
	fetching       bool
	loaded         bool
}

func NewTimeline(self, peer string) *Timeline {
	return &Timeline{self: self, peer: peer}
}

// BeginFetch marks a history fetch in flight. Live events applied while
// the fetch is pending stay visible and are recorded so the merge in
// CompleteFetch cannot lose them.
func (t *Timeline) BeginFetch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fetching = true
	t.liveSinceFetch = nil
}

// CompleteFetch replaces the timeline's base state with the fetch result,
// then re-applies anything the fetch cannot know about: unconfirmed
// optimistic echoes and live events that raced the fetch. Live events
// already present in the fetched history are not appended again.
func (t *Timeline) CompleteFetch(history []domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var echoes []Entry
	for _, e := range t.entries {
		if e.Provisional {
			echoes = append(echoes, e)
		}
	}

	entries := make([]Entry, 0, len(history)+len(echoes))
	seen := make(map[string]int, len(history))
	for _, m := range history {
		entries = append(entries, Entry{
			Sender:    m.Sender,
			Body:      m.Body,
			Timestamp: m.CreatedAt,
		})
		seen[pairKey(m.Sender, m.Body)]++
	}

	// An echo whose server copy made it into the fetch is confirmed by
	// the fetched row; re-append only the ones still in flight.
	for _, e := range echoes {
		key := pairKey(e.Sender, e.Body)
		if seen[key] > 0 {
			seen[key]--
			continue
		}
		entries = append(entries, e)
	}

	for _, m := range t.liveSinceFetch {
		key := pairKey(m.Sender, m.Body)
		if seen[key] > 0 {
			seen[key]--
			continue
		}
		entries = append(entries, Entry{
			Sender:    m.Sender,
			Body:      m.Body,
			Timestamp: time.Now(),
		})
	}

	t.entries = entries
	t.liveSinceFetch = nil
	t.fetching = false
	t.loaded = true
}

// FailFetch abandons a pending fetch, leaving the previous timeline
// state intact.
func (t *Timeline) FailFetch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fetching = false
	t.liveSinceFetch = nil
}

// ApplyLive appends a live-delivered message. A copy of a message this
// client sent itself reconciles the oldest matching optimistic echo
// instead of creating a duplicate row.
func (t *Timeline) ApplyLive(msg LiveMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fetching {
		t.liveSinceFetch = append(t.liveSinceFetch, msg)
	}

	if msg.Sender == t.self {
		for i := range t.entries {
			if t.entries[i].Provisional && t.entries[i].Body == msg.Body {
				t.entries[i].Provisional = false
				return
			}
		}
	}

	t.entries = append(t.entries, Entry{
		Sender:    msg.Sender,
		Body:      msg.Body,
		Timestamp: time.Now(),
	})
}

// AppendEcho adds an optimistic local echo for a just-sent message and
// returns it. The entry renders before any server confirmation.
func (t *Timeline) AppendEcho(body string) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := Entry{
		ID:          uuid.New().String(),
		Sender:      t.self,
		Body:        body,
		Timestamp:   time.Now(),
		Provisional: true,
	}
	t.entries = append(t.entries, entry)
	return entry
}

// RemoveEcho drops a provisional entry, used when the send it echoed was
// rejected so the typed text can be restored to the input.
func (t *Timeline) RemoveEcho(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		if t.entries[i].ID == id && t.entries[i].Provisional {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// Entries returns a snapshot of the timeline.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Loaded reports whether at least one history fetch has completed.
func (t *Timeline) Loaded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loaded
}

func pairKey(sender, body string) string {
	return sender + "\x00" + body
}
