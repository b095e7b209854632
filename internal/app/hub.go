package app

import (
	"sync"

	"live-quiz-service/internal/domain"
)

// hub fans committed session updates out to subscribers.
//
// Commits publish after the store lock is released, so two racing commits can
// arrive out of order. The hub remembers the newest revision it delivered per
// watched session and drops anything not newer.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[chan domain.SessionUpdate]struct{}
	last map[string]domain.SessionUpdate
}

func newHub() *hub {
	return &hub{
		subs: make(map[string]map[chan domain.SessionUpdate]struct{}),
		last: make(map[string]domain.SessionUpdate),
	}
}

func (h *hub) subscribe(sessionID string, initial domain.SessionUpdate) (<-chan domain.SessionUpdate, func()) {
	ch := make(chan domain.SessionUpdate, 8)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan domain.SessionUpdate]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	if last, ok := h.last[sessionID]; ok && last.Revision > initial.Revision {
		initial = last
	} else {
		h.last[sessionID] = initial
	}
	ch <- initial
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		set := h.subs[sessionID]
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
			if len(set) == 0 {
				delete(h.subs, sessionID)
				delete(h.last, sessionID)
			}
		}
	}
	return ch, cancel
}

func (h *hub) publish(update domain.SessionUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[update.SessionID]
	if len(set) == 0 {
		return
	}
	if last, ok := h.last[update.SessionID]; ok && update.Revision <= last.Revision {
		return
	}
	h.last[update.SessionID] = update
	for ch := range set {
		select {
		case ch <- update:
		default:
			// Slow subscriber: drop its oldest pending update rather than block the publisher.
			select {
			case <-ch:
			default:
			}
			ch <- update
		}
	}
}

// closeAll ends every subscription, used when the store is cleared.
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.subs {
		for ch := range set {
			close(ch)
		}
		delete(h.subs, id)
	}
	h.last = make(map[string]domain.SessionUpdate)
}

func updateOf(s *domain.Session) domain.SessionUpdate {
	return domain.SessionUpdate{
		SessionID:  s.ID,
		State:      s.State,
		AtQuestion: s.AtQuestion,
		Players:    playerNames(s),
		UpdatedAt:  s.UpdatedAt,
		Revision:   s.Revision,
	}
}

func playerNames(s *domain.Session) []string {
	names := make([]string, len(s.Players))
	for i, p := range s.Players {
		names[i] = p.Name
	}
	return names
}
