package app

import (
	"sync"

	"livequiz/internal/domain"
)

// Event types published on the hub.
const (
	EventState       = "state"
	EventLeaderboard = "leaderboard"
	EventCancelled   = "cancelled"
)

// Event is a change notification for one game.
type Event struct {
	Type    string `json:"type"`
	GameID  string `json:"gameId"`
	Payload any    `json:"payload"`
}

// Hub fans out game events to in-process subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe returns a channel of events for a game.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(gameID string) (<-chan Event, func()) {
	ch := make(chan Event, 8)

	h.mu.Lock()
	if h.subs[gameID] == nil {
		h.subs[gameID] = make(map[chan Event]struct{})
	}
	h.subs[gameID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[gameID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.subs, gameID)
			}
		}
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber of the game without blocking.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.GameID] {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop the oldest pending event.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// Close ends every subscription of a game.
func (h *Hub) Close(gameID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[gameID] {
		close(ch)
	}
	delete(h.subs, gameID)
}

func (h *Hub) publishState(game domain.Game) {
	h.Publish(Event{Type: EventState, GameID: game.ID, Payload: game.Public()})
}

func (h *Hub) publishLeaderboard(lb domain.Leaderboard) {
	h.Publish(Event{Type: EventLeaderboard, GameID: lb.GameID, Payload: lb})
}
