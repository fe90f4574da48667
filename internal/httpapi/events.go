package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aikyo-ai/aikyo/internal/event"
	"github.com/aikyo-ai/aikyo/internal/tenant"
)

// eventRequest is the POST /v1/events body. Tenant identity comes from the
// API key, never from the body.
type eventRequest struct {
	PlayerID  string         `json:"player_id"`
	GameID    string         `json:"game_id,omitempty"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Persona   string         `json:"persona,omitempty"`
	Language  string         `json:"language,omitempty"`
	ClientSeq int64          `json:"client_seq,omitempty"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	t := s.authenticate(w, r)
	if t == nil {
		return
	}
	if s.limiter != nil && !s.limiter.Allow(t.ID, t.RatePerMinute) {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "per-tenant rate limit exceeded")
		return
	}

	var req eventRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "malformed JSON: "+err.Error())
		return
	}

	kind, err := event.ParseKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_EVENT", err.Error())
		return
	}
	ev := &event.Event{
		Tenant:     t.ID,
		Game:       req.GameID,
		Player:     req.PlayerID,
		Kind:       kind,
		Payload:    req.Payload,
		Context:    req.Context,
		ClientSeq:  req.ClientSeq,
		ReceivedAt: s.now(),
	}
	profile := tenant.ResolveProfile(t, req.Persona, req.Language)

	resp, err := s.handler.Handle(r.Context(), t, profile, ev)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_EVENT", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// queryDays parses the days window parameter, defaulting to 7.
func queryDays(r *http.Request) int {
	d, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil || d <= 0 {
		return 7
	}
	return d
}
