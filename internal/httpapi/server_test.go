package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aikyo-ai/aikyo/internal/costsink"
	"github.com/aikyo-ai/aikyo/internal/dialogue"
	"github.com/aikyo-ai/aikyo/internal/dispatch"
	"github.com/aikyo-ai/aikyo/internal/emotion"
	"github.com/aikyo-ai/aikyo/internal/event"
	"github.com/aikyo-ai/aikyo/internal/tenant"
)

// fakeHandler records the call and returns a canned response.
type fakeHandler struct {
	lastTenant  *tenant.Tenant
	lastProfile tenant.Profile
	lastEvent   *event.Event
	resp        *dispatch.Response
}

func (h *fakeHandler) Handle(_ context.Context, t *tenant.Tenant, profile tenant.Profile, ev *event.Event) (*dispatch.Response, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	h.lastTenant = t
	h.lastProfile = profile
	h.lastEvent = ev
	return h.resp, nil
}

type fakeAnalytics struct {
	platform    costsink.PlatformStats
	lastTenant  string
	tenantCosts []costsink.ComponentCost
}

func (a *fakeAnalytics) Platform(_ context.Context, _ int) (costsink.PlatformStats, error) {
	return a.platform, nil
}

func (a *fakeAnalytics) TenantCosts(_ context.Context, tenantID string, _ int) ([]costsink.ComponentCost, error) {
	a.lastTenant = tenantID
	return a.tenantCosts, nil
}

func cannedResponse() *dispatch.Response {
	return &dispatch.Response{
		Emotion: &emotion.Result{
			Emotion: emotion.Excited, Intensity: 0.9, Confidence: 0.95,
			Action: "celebrate", Method: emotion.MethodRule,
		},
		Dialogue: &dialogue.Result{
			Text: "干得漂亮！", Language: tenant.LanguageZH, Persona: tenant.PersonaCheerful,
			Method: dialogue.MethodTemplate,
		},
		MemoryContext: []string{},
	}
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *fakeHandler) {
	t.Helper()
	store, err := tenant.NewMemStore([]tenant.Tenant{
		{ID: "t1", Name: "Acme", Tier: tenant.TierPro, APIKey: "key-1", Active: true},
		{ID: "t2", Name: "Dormant", Tier: tenant.TierFree, APIKey: "key-2", Active: false},
	})
	if err != nil {
		t.Fatalf("NewMemStore: %v", err)
	}
	h := &fakeHandler{resp: cannedResponse()}
	return New(store, h, opts...), h
}

func postEvent(t *testing.T, srv *Server, apiKey, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(body))
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var b errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return b.Error.Code
}

// ─── TestEvents_Success ───

func TestEvents_Success(t *testing.T) {
	t.Parallel()

	srv, h := newTestServer(t)
	body := `{"player_id":"p1","kind":"player.victory","game_id":"g1",
		"payload":{"mvp":true,"win_streak":5},"language":"zh","client_seq":9}`
	rec := postEvent(t, srv, "key-1", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp dispatch.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Emotion == nil || resp.Emotion.Emotion != emotion.Excited {
		t.Errorf("emotion = %+v, want excited", resp.Emotion)
	}
	if h.lastTenant.ID != "t1" {
		t.Errorf("tenant = %q, want t1 (from API key)", h.lastTenant.ID)
	}
	if h.lastEvent.Kind != event.KindVictory {
		t.Errorf("kind = %q, want victory (wire prefix stripped)", h.lastEvent.Kind)
	}
	if h.lastEvent.ClientSeq != 9 {
		t.Errorf("client_seq = %d, want 9", h.lastEvent.ClientSeq)
	}
	if h.lastProfile.Language != tenant.LanguageZH {
		t.Errorf("language = %q, want zh", h.lastProfile.Language)
	}
}

// ─── TestEvents_AuthFailures ───

func TestEvents_AuthFailures(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	rec := postEvent(t, srv, "", `{"player_id":"p1","kind":"victory"}`)
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "AUTH_FAILED" {
		t.Errorf("missing key: %d %s", rec.Code, rec.Body.String())
	}

	rec = postEvent(t, srv, "nope", `{"player_id":"p1","kind":"victory"}`)
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "AUTH_FAILED" {
		t.Errorf("unknown key: %d %s", rec.Code, rec.Body.String())
	}

	rec = postEvent(t, srv, "key-2", `{"player_id":"p1","kind":"victory"}`)
	if rec.Code != http.StatusForbidden || errorCode(t, rec) != "TENANT_INACTIVE" {
		t.Errorf("inactive tenant: %d %s", rec.Code, rec.Body.String())
	}
}

// ─── TestEvents_BadRequests ───

func TestEvents_BadRequests(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	rec := postEvent(t, srv, "key-1", `{not json`)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "INVALID_BODY" {
		t.Errorf("malformed body: %d %s", rec.Code, rec.Body.String())
	}

	rec = postEvent(t, srv, "key-1", `{"player_id":"p1","kind":"teleport"}`)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "INVALID_EVENT" {
		t.Errorf("unknown kind: %d %s", rec.Code, rec.Body.String())
	}

	rec = postEvent(t, srv, "key-1", `{"kind":"victory"}`)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "INVALID_EVENT" {
		t.Errorf("missing player: %d %s", rec.Code, rec.Body.String())
	}
}

// ─── TestEvents_RateLimited ───

func TestEvents_RateLimited(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(60, 1, nil)
	srv, _ := newTestServer(t, WithRateLimiter(rl))

	rec := postEvent(t, srv, "key-1", `{"player_id":"p1","kind":"victory"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	rec = postEvent(t, srv, "key-1", `{"player_id":"p1","kind":"victory"}`)
	if rec.Code != http.StatusTooManyRequests || errorCode(t, rec) != "RATE_LIMITED" {
		t.Errorf("second request: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

// ─── TestAnalytics_Platform ───

func TestAnalytics_Platform(t *testing.T) {
	t.Parallel()

	a := &fakeAnalytics{platform: costsink.PlatformStats{Requests: 42, TotalCostUSD: 1.5}}
	srv, _ := newTestServer(t, WithAnalytics(a))

	req := httptest.NewRequest(http.MethodGet, "/v1/analytics/platform?days=30", nil)
	req.Header.Set("X-API-Key", "key-1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats costsink.PlatformStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Requests != 42 {
		t.Errorf("requests = %d, want 42", stats.Requests)
	}
}

// ─── TestAnalytics_CostsOwnTenantOnly ───

func TestAnalytics_CostsOwnTenantOnly(t *testing.T) {
	t.Parallel()

	a := &fakeAnalytics{tenantCosts: []costsink.ComponentCost{
		{Component: "dialogue", Operation: "generative", Calls: 3, CostUSD: 0.006},
	}}
	srv, _ := newTestServer(t, WithAnalytics(a))

	req := httptest.NewRequest(http.MethodGet, "/v1/analytics/costs?tenant=t9", nil)
	req.Header.Set("X-API-Key", "key-1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("foreign tenant: %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/analytics/costs", nil)
	req.Header.Set("X-API-Key", "key-1")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("own tenant: %d", rec.Code)
	}
	if a.lastTenant != "t1" {
		t.Errorf("queried tenant = %q, want t1", a.lastTenant)
	}
}

// ─── TestHealth ───

func TestHealth(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
