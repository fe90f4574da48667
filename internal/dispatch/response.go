package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/aikyo-ai/aikyo/internal/dialogue"
	"github.com/aikyo-ai/aikyo/internal/emotion"
)

// Degradation reasons surfaced in Response.DegradedReasons.
const (
	ReasonMemoryTimeout  = "memory_timeout"
	ReasonEmotionTimeout = "emotion_timeout"
	ReasonOverloaded     = "overloaded"
)

// Response is the pipeline's reply for one event. The same shape is returned
// on the request/reply surface, stored in the response cache, and pushed to
// realtime subscribers.
type Response struct {
	// Emotion is the emotion engine's verdict.
	Emotion *emotion.Result `json:"emotion"`

	// Dialogue is the companion's line.
	Dialogue *dialogue.Result `json:"dialogue"`

	// MemoryContext holds the memory summaries that conditioned the reply,
	// most relevant first.
	MemoryContext []string `json:"memory_context"`

	// LatencyMS is the end-to-end handling time. Excluded from cache
	// identity: a cached replay carries its own latency.
	LatencyMS int64 `json:"latency_ms"`

	// Partial reports that a primary branch degraded.
	Partial bool `json:"partial"`

	// DegradedReasons lists what degraded, when Partial is set.
	DegradedReasons []string `json:"degraded_reasons,omitempty"`

	// Fingerprint is the cache key the response was produced under.
	Fingerprint string `json:"-"`
}

// Encode serializes the response for the cache and the push channel.
func (r *Response) Encode() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("dispatch: encode response: %w", err)
	}
	return b, nil
}

// DecodeResponse parses a cached response.
func DecodeResponse(b []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("dispatch: decode response: %w", err)
	}
	return &r, nil
}

// markCached rewrites the method fields for a response replayed from the
// cache. Paid cost stays attributed to the original request; the replay is
// free.
func (r *Response) markCached() {
	if r.Emotion != nil {
		r.Emotion.Method = emotion.MethodCached
		r.Emotion.CostUSD = 0
	}
	if r.Dialogue != nil {
		r.Dialogue.Method = dialogue.MethodCached
		r.Dialogue.CostUSD = 0
	}
}
