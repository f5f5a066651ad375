package session

import (
	"sync"

	"session-service/internal/models"
	"session-service/internal/presencestore"
)

// fakeSink records delivered events for assertions.
type fakeSink struct {
	mu     sync.Mutex
	events []models.ServerEvent
}

func (s *fakeSink) Deliver(ev models.ServerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *fakeSink) all() []models.ServerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ServerEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *fakeSink) byType(eventType string) []models.ServerEvent {
	var out []models.ServerEvent
	for _, ev := range s.all() {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (s *fakeSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func newTestHub() (*Registry, *Hub) {
	registry := NewRegistry(presencestore.NewMemoryStore())
	return registry, NewHub(registry)
}

func memberIDs(members []models.Member) []int64 {
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids
}
