package tabsync

import (
	"sync"

	"timetracker/internal/models"
)

// Relay is the same-process stand-in for a same-origin broadcast channel:
// subscribers in one process hear each other's locally-initiated mutations
// without a server round trip. Events it carries are tagged local-relay so a
// receiver can tell them from server-pushed ones; both get identical
// handling downstream.
type Relay struct {
	mu   sync.Mutex
	next int
	subs map[int]chan models.SyncEvent
}

func NewRelay() *Relay {
	return &Relay{subs: make(map[int]chan models.SyncEvent)}
}

type Subscription struct {
	Events <-chan models.SyncEvent

	relay *Relay
	id    int
}

func (s *Subscription) Close() {
	s.relay.mu.Lock()
	defer s.relay.mu.Unlock()
	if ch, ok := s.relay.subs[s.id]; ok {
		delete(s.relay.subs, s.id)
		close(ch)
	}
}

func (r *Relay) Subscribe() *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan models.SyncEvent, 16)
	id := r.next
	r.next++
	r.subs[id] = ch
	return &Subscription{Events: ch, relay: r, id: id}
}

// Publish fans ev out to every subscriber. Slow subscribers lose the event
// rather than block the publisher; the next event converges them anyway.
func (r *Relay) Publish(ev models.SyncEvent) {
	ev.Source = models.SourceLocalRelay
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
