package zensync

import (
	"sync"
	"time"
)

// Sync event types, one per remote-side outcome worth observing.
const (
	EventRemoteWrite        = "remote_write"
	EventRemoteWriteFailed  = "remote_write_failed"
	EventRemoteDelete       = "remote_delete"
	EventRemoteDeleteFailed = "remote_delete_failed"
	EventRemoteReadFailed   = "remote_read_failed"
	EventConnectionTest     = "connection_test"
)

// SyncEvent is a point-in-time record of a remote interaction. Local writes
// never emit events; they are synchronous and their errors surface directly.
type SyncEvent struct {
	Type       string `json:"type"`
	Collection string `json:"collection,omitempty"`
	UserEmail  string `json:"userEmail,omitempty"`
	EntityID   string `json:"entityId,omitempty"`
	Error      string `json:"error,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

const defaultEventLimit = 256

// eventHub fans sync events out to subscribers and keeps a bounded ring of
// recent events for late joiners. Publishing never blocks: a subscriber that
// cannot keep up loses events rather than stalling the write path.
type eventHub struct {
	mu     sync.Mutex
	limit  int
	recent []SyncEvent
	subs   map[chan SyncEvent]struct{}
}

func newEventHub(limit int) *eventHub {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	return &eventHub{limit: limit, subs: map[chan SyncEvent]struct{}{}}
}

func (h *eventHub) publish(event SyncEvent) {
	if h == nil {
		return
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recent = append(h.recent, event)
	if len(h.recent) > h.limit {
		h.recent = h.recent[len(h.recent)-h.limit:]
	}
	for sub := range h.subs {
		select {
		case sub <- event:
		default:
		}
	}
}

// subscribe returns a channel of future events plus an unsubscribe func.
func (h *eventHub) subscribe() (<-chan SyncEvent, func()) {
	ch := make(chan SyncEvent, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *eventHub) recentEvents() []SyncEvent {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]SyncEvent, len(h.recent))
	copy(out, h.recent)
	return out
}
