package store

import "sync"

// Resources named in events.
const (
	ResourcePlaces    = "places"
	ResourcePOIs      = "pois"
	ResourceDiscovery = "discovery"
	ResourceCursor    = "cursor"
	ResourceMode      = "mode"
	ResourceFilters   = "filters"
	ResourceSearch    = "search-centers"
)

// Event describes one store mutation.
type Event struct {
	Resource string // e.g. "places"
	Action   string // "created", "updated", "deleted", "moved", "cleared"...
	ID       string // entity id when the mutation targets one
}

// EventBus is a fan-out pub/sub for store change events.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]struct{})}
}

// Publish sends e to every subscriber without blocking.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber too slow, skip
		}
	}
}

// Subscribe returns a buffered channel that receives events.
func (b *EventBus) Subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
