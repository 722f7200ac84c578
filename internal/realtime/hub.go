package realtime

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// subscriberBuffer bounds how far a slow consumer may fall behind
// before events are dropped for it.
const subscriberBuffer = 32

type (
	// Row is the wire form of a bookmark row. Insert and update events
	// carry the new state, delete events carry the old row.
	Row struct {
		ID        string    `json:"id"`
		Title     string    `json:"title"`
		URL       string    `json:"url"`
		Category  *string   `json:"category"`
		UserID    string    `json:"user_id"`
		CreatedAt time.Time `json:"created_at"`
	}

	Event struct {
		Type     EventType `json:"type"`
		Bookmark Row       `json:"bookmark"`
	}

	// Hub fans mutation events out to every live subscription of the
	// owning user, the originating session included.
	Hub struct {
		mu     sync.Mutex
		subs   map[string]map[chan Event]struct{}
		logger *zap.SugaredLogger
	}
)

func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		subs:   make(map[string]map[chan Event]struct{}),
		logger: logger,
	}
}

// Subscribe registers a new event channel for the user. The returned
// cancel func unregisters and closes the channel; it is safe to call
// more than once.
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subs[userID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[userID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, userID)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to all of the user's subscribers without
// blocking; events for a full subscriber buffer are dropped, the
// periodic client reload covers the gap.
func (h *Hub) Publish(userID string, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[userID] {
		select {
		case ch <- event:
		default:
			h.logger.Warnw("dropping realtime event for slow subscriber",
				"user_id", userID, "type", event.Type)
		}
	}
}

// SubscriberCount reports live subscriptions for the user.
func (h *Hub) SubscriberCount(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs[userID])
}
