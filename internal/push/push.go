// Package push implements the realtime delivery channel. Game clients hold a
// WebSocket to /v1/realtime; the pipeline publishes companion reactions into a
// [Hub], which fans them out to every session subscribed to the player's
// topic. Delivery is fire-and-forget: a slow consumer loses old frames from
// its bounded buffer and learns about it from a notice message, it never
// stalls the pipeline.
package push

import (
	"time"

	"github.com/coder/websocket"

	"github.com/aikyo-ai/aikyo/internal/dialogue"
	"github.com/aikyo-ai/aikyo/internal/emotion"
)

// Application close codes, in the private 4000-4999 range.
const (
	// StatusAuthFailed is sent when the api_key is missing or unknown.
	StatusAuthFailed = websocket.StatusCode(4001)

	// StatusTenantInactive is sent when the key resolves to a suspended
	// tenant.
	StatusTenantInactive = websocket.StatusCode(4002)
)

const (
	// sessionBuffer is the per-session outbound queue depth. When it
	// overflows the oldest frame is dropped.
	sessionBuffer = 256

	// pingInterval is how often the server pings an idle connection. A
	// connection that misses two consecutive pongs is closed.
	pingInterval = 30 * time.Second

	// writeTimeout bounds a single frame write. A consumer that cannot
	// accept a frame for this long is disconnected.
	writeTimeout = 30 * time.Second
)

// Server message types.
const (
	TypeReaction = "companion.reaction"
	TypeNotice   = "companion.notice"
	TypeError    = "companion.error"
)

// ServerMessage is the wire shape of every frame the server sends.
type ServerMessage struct {
	// Seq is the per-player monotonic sequence number. Gaps mean frames
	// were dropped for this consumer. Zero on notice and error frames.
	Seq int64 `json:"seq,omitempty"`

	// Type discriminates the frame: reaction, notice or error.
	Type string `json:"type"`

	Emotion       *emotion.Result  `json:"emotion,omitempty"`
	Dialogue      *dialogue.Result `json:"dialogue,omitempty"`
	MemoryContext []string         `json:"memory_context,omitempty"`
	Partial       bool             `json:"partial,omitempty"`

	// EventRef echoes the client_seq of the event that produced this
	// reaction, when the client set one.
	EventRef int64 `json:"event_ref,omitempty"`

	// LostCount reports how many frames were dropped before this notice.
	LostCount int64 `json:"lost_count,omitempty"`

	// Error carries a short machine-readable reason on error frames.
	Error string `json:"error,omitempty"`

	// TS is the server send time, RFC 3339 UTC.
	TS string `json:"ts"`
}

// ClientMessage is the wire shape of every frame a client sends. Only
// type "event" carries a body; "ack" frames are accepted and ignored.
type ClientMessage struct {
	Type      string         `json:"type"`
	ClientSeq int64          `json:"client_seq,omitempty"`
	Kind      string         `json:"kind,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Persona   string         `json:"persona,omitempty"`
	Language  string         `json:"language,omitempty"`
	GameID    string         `json:"game_id,omitempty"`
}
