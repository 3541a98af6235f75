package realtime

import (
	"encoding/json"
	"sync"

	"github.com/mind-engage/mindengage-school/internal/logger"
)

const (
	EventStarted     = "started"
	EventAnswered    = "answered"
	EventSubmitted   = "submitted"
	EventTimerUpdate = "timer_update"
)

type Message struct {
	Type      string      `json:"type"`
	AttemptID string      `json:"attempt_id"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Hub fans attempt events out to websocket subscribers of that attempt.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
	log  logger.Logger
}

type Subscription struct {
	hub       *Hub
	attemptID string
	send      chan []byte
	once      sync.Once
}

// C yields encoded messages. It is closed when the subscription ends or the
// subscriber falls too far behind.
func (s *Subscription) C() <-chan []byte { return s.send }

func (s *Subscription) Close() { s.hub.remove(s) }

func NewHub(log logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop{}
	}
	return &Hub{subs: map[string]map[*Subscription]struct{}{}, log: log}
}

func (h *Hub) Subscribe(attemptID string) *Subscription {
	s := &Subscription{hub: h, attemptID: attemptID, send: make(chan []byte, 64)}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[attemptID]
	if !ok {
		set = map[*Subscription]struct{}{}
		h.subs[attemptID] = set
	}
	set[s] = struct{}{}
	return s
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s *Subscription) {
	if set, ok := h.subs[s.attemptID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.attemptID)
		}
	}
	s.once.Do(func() { close(s.send) })
}

// Subscribers returns how many live subscriptions attemptID has.
func (h *Hub) Subscribers(attemptID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[attemptID])
}

// Publish never blocks: a subscriber whose buffer is full is dropped.
func (h *Hub) Publish(attemptID, typ string, payload interface{}) {
	data, err := json.Marshal(Message{Type: typ, AttemptID: attemptID, Payload: payload})
	if err != nil {
		h.log.Error("realtime: marshal message", err, map[string]interface{}{"type": typ})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[attemptID] {
		select {
		case s.send <- data:
		default:
			h.log.Warn("realtime: dropping slow subscriber", map[string]interface{}{"attempt_id": attemptID})
			h.removeLocked(s)
		}
	}
}
