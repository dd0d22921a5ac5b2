package gateway

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pixelplace/go/internal/canvas/events"
)

// Observer receives the encoded events of one session. Deliver must not block;
// returning false marks the observer as too slow and the hub drops it.
type Observer interface {
	Deliver(msg []byte) bool
	Close()
}

// Hub fans canvas events out to the observers registered for each session.
type Hub struct {
	observers map[uuid.UUID]map[Observer]struct{}
	mu        sync.RWMutex

	broadcastCh chan *events.Envelope
}

// NewHub creates a hub whose broadcast queue holds buffer pending events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 1000
	}
	return &Hub{
		observers:   make(map[uuid.UUID]map[Observer]struct{}),
		broadcastCh: make(chan *events.Envelope, buffer),
	}
}

// Start delivers queued events until ctx is cancelled.
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("canvas hub started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("canvas hub shutting down")
			return
		case env := <-h.broadcastCh:
			h.handleBroadcast(env)
		}
	}
}

// Subscribe registers o for events of sessionID. The returned func removes it
// and is safe to call more than once.
func (h *Hub) Subscribe(sessionID uuid.UUID, o Observer) (unsubscribe func()) {
	h.mu.Lock()
	if h.observers[sessionID] == nil {
		h.observers[sessionID] = make(map[Observer]struct{})
	}
	h.observers[sessionID][o] = struct{}{}
	total := len(h.observers[sessionID])
	h.mu.Unlock()

	log.Debug().
		Str("session_id", sessionID.String()).
		Int("total_observers", total).
		Msg("observer subscribed")

	return func() { h.remove(sessionID, o) }
}

func (h *Hub) remove(sessionID uuid.UUID, o Observer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.observers[sessionID]
	if !ok {
		return false
	}
	if _, ok := set[o]; !ok {
		return false
	}
	delete(set, o)
	if len(set) == 0 {
		delete(h.observers, sessionID)
	}
	return true
}

// Publish queues env for delivery. When the queue is full the event is dropped;
// observers are expected to tolerate gaps.
func (h *Hub) Publish(_ context.Context, env *events.Envelope) error {
	select {
	case h.broadcastCh <- env:
	default:
		log.Warn().
			Str("session_id", env.SessionID).
			Str("event_type", string(env.EventType)).
			Msg("broadcast channel full, dropping event")
	}
	return nil
}

// ObserverCount returns how many observers are registered for sessionID.
func (h *Hub) ObserverCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers[sessionID])
}

// Stats returns the number of observers per session.
func (h *Hub) Stats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := make(map[string]int, len(h.observers))
	for id, set := range h.observers {
		stats[id.String()] = len(set)
	}
	return stats
}

func (h *Hub) handleBroadcast(env *events.Envelope) {
	sessionID, err := uuid.Parse(env.SessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", env.SessionID).Msg("event has invalid session id")
		return
	}

	h.mu.RLock()
	set := h.observers[sessionID]
	targets := make([]Observer, 0, len(set))
	for o := range set {
		targets = append(targets, o)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, o := range targets {
		if o.Deliver(data) {
			continue
		}
		log.Warn().
			Str("session_id", env.SessionID).
			Msg("observer too slow, dropping it")
		if h.remove(sessionID, o) {
			o.Close()
		}
	}

	log.Debug().
		Str("event_type", string(env.EventType)).
		Str("session_id", env.SessionID).
		Int("observers", len(targets)).
		Msg("event broadcasted")
}
