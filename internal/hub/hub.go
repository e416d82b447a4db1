// Package hub fans session events out to the connections watching a session.
// Delivery never blocks the caller: each subscription has a bounded buffer and
// a slow consumer loses its oldest pending event, never the producer's time.
// State is recovered on reconnect via a fresh snapshot, so a dropped
// intermediate update is harmless.
package hub

import (
	"sync"

	"quizroom/internal/domain"
)

const subscriptionBuffer = 16

// Subscription is one connection's membership in a session group.
type Subscription struct {
	sessionCode   string
	participantID string
	events        chan domain.Event
	closed        bool
}

// Events is the channel the transport drains for this connection.
func (s *Subscription) Events() <-chan domain.Event {
	return s.events
}

// SessionCode returns the session this subscription watches.
func (s *Subscription) SessionCode() string {
	return s.sessionCode
}

// Hub maintains subscription groups keyed by session code.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[*Subscription]struct{}
}

func New() *Hub {
	return &Hub{groups: make(map[string]map[*Subscription]struct{})}
}

// Subscribe adds a connection to the session's group.
func (h *Hub) Subscribe(sessionCode string) *Subscription {
	sub := &Subscription{
		sessionCode: sessionCode,
		events:      make(chan domain.Event, subscriptionBuffer),
	}

	h.mu.Lock()
	group, ok := h.groups[sessionCode]
	if !ok {
		group = make(map[*Subscription]struct{})
		h.groups[sessionCode] = group
	}
	group[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// BindParticipant associates the subscription with a participant so unicast
// events (answer results) reach only this connection.
func (h *Hub) BindParticipant(sub *Subscription, participantID string) {
	h.mu.Lock()
	sub.participantID = participantID
	h.mu.Unlock()
}

// Unsubscribe removes the connection from its group and closes its channel.
// Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

// Send delivers an event to a single subscription.
func (h *Hub) Send(sub *Subscription, event domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if sub.closed {
		return
	}
	deliver(sub.events, event)
}

// Broadcast delivers events to every member of the session's group, in the
// order given. Events carrying a ParticipantID go only to that participant's
// subscriptions.
func (h *Hub) Broadcast(sessionCode string, events ...domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	group := h.groups[sessionCode]
	for _, event := range events {
		for sub := range group {
			if event.ParticipantID != "" && sub.participantID != event.ParticipantID {
				continue
			}
			deliver(sub.events, event)
		}
	}
}

// GroupSize reports how many connections watch the session.
func (h *Hub) GroupSize(sessionCode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[sessionCode])
}

// CloseGroup drops every subscription of a torn-down session.
func (h *Hub) CloseGroup(sessionCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.groups[sessionCode] {
		h.removeLocked(sub)
	}
}

func (h *Hub) removeLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	if group, ok := h.groups[sub.sessionCode]; ok {
		delete(group, sub)
		if len(group) == 0 {
			delete(h.groups, sub.sessionCode)
		}
	}
	close(sub.events)
}

// deliver is non-blocking: on a full buffer the oldest pending event is
// dropped to make room.
func deliver(ch chan domain.Event, event domain.Event) {
	select {
	case ch <- event:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- event:
		default:
		}
	}
}
