package analysis

import (
	"encoding/json"
	"sync"
)

// Event is one progress update broadcast to session subscribers.
type Event struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	PersonaID string          `json:"persona_id,omitempty"`
	Status    string          `json:"status,omitempty"`
	Text      string          `json:"text,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

const (
	EventStatus      = "status"
	EventChunk       = "chunk"
	EventComplete    = "complete"
	EventError       = "error"
	EventAllComplete = "all_complete"
)

// Subscription is one observer's ordered event feed.
type Subscription struct {
	C  <-chan Event
	ch chan Event
}

// ObserverSet fans progress events out to the live subscribers of one
// session. Slow subscribers drop their oldest buffered event rather
// than blocking the orchestrator.
type ObserverSet struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewObserverSet returns an empty observer set.
func NewObserverSet() *ObserverSet {
	return &ObserverSet{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new observer.
func (o *ObserverSet) Subscribe() *Subscription {
	ch := make(chan Event, 64)
	sub := &Subscription{C: ch, ch: ch}

	o.mu.Lock()
	o.subs[sub] = struct{}{}
	o.mu.Unlock()
	return sub
}

// Unsubscribe removes an observer and closes its feed.
func (o *ObserverSet) Unsubscribe(sub *Subscription) {
	o.mu.Lock()
	if _, ok := o.subs[sub]; ok {
		delete(o.subs, sub)
		close(sub.ch)
	}
	o.mu.Unlock()
}

// Broadcast delivers ev to every subscriber. Delivery is ordered per
// subscriber but carries no cross-subscriber ordering guarantee.
func (o *ObserverSet) Broadcast(ev Event) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for sub := range o.subs {
		select {
		case sub.ch <- ev:
		default:
			// Full buffer: drop the oldest event and retry once.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}
}

// Len reports the number of live subscribers.
func (o *ObserverSet) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.subs)
}
