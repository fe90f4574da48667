package push

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/aikyo-ai/aikyo/internal/dispatch"
	"github.com/aikyo-ai/aikyo/internal/event"
)

var _ dispatch.Publisher = (*Hub)(nil)

// Hub routes pipeline responses to realtime sessions. Each player maps to one
// topic; every session subscribed to the topic receives the same frames under
// the same sequence numbers. Sequence counters outlive individual
// connections, so a reconnecting client can detect frames it missed.
type Hub struct {
	log *slog.Logger
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{}
	seqs     map[string]int64
}

// HubOption configures a [Hub].
type HubOption func(*Hub)

// WithHubLogger sets the logger. Defaults to [slog.Default].
func WithHubLogger(log *slog.Logger) HubOption {
	return func(h *Hub) { h.log = log }
}

// WithHubClock overrides the time source.
func WithHubClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		log:      slog.Default(),
		now:      time.Now,
		sessions: make(map[string]map[*Session]struct{}),
		seqs:     make(map[string]int64),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Topic is the routing key for one player's reaction stream.
func Topic(tenant, game, player string) string {
	return tenant + "/" + game + "/player/" + player
}

// Subscribe attaches a session to a topic.
func (h *Hub) Subscribe(topic string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[topic]
	if !ok {
		set = make(map[*Session]struct{})
		h.sessions[topic] = set
	}
	set[s] = struct{}{}
}

// Unsubscribe detaches a session. The topic's sequence counter is kept so a
// later reconnect continues the same stream.
func (h *Hub) Unsubscribe(topic string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[topic]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.sessions, topic)
	}
}

// Subscribers reports how many sessions are attached to a topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[topic])
}

// PublishReaction implements [dispatch.Publisher]. It never blocks: frames
// ride each session's bounded buffer and overflow drops the oldest frame.
func (h *Hub) PublishReaction(ev *event.Event, resp *dispatch.Response) {
	topic := Topic(ev.Tenant, ev.Game, ev.Player)

	h.mu.Lock()
	set, ok := h.sessions[topic]
	if !ok {
		h.mu.Unlock()
		return
	}
	h.seqs[topic]++
	seq := h.seqs[topic]
	targets := make([]*Session, 0, len(set))
	for s := range set {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	msg := ServerMessage{
		Seq:           seq,
		Type:          TypeReaction,
		Emotion:       resp.Emotion,
		Dialogue:      resp.Dialogue,
		MemoryContext: resp.MemoryContext,
		Partial:       resp.Partial,
		EventRef:      ev.ClientSeq,
		TS:            h.now().UTC().Format(time.RFC3339Nano),
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("push: encode reaction", "topic", topic, "error", err)
		return
	}
	for _, s := range targets {
		s.enqueue(frame)
	}
}
