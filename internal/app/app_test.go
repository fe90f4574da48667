package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aikyo-ai/aikyo/internal/budget"
	"github.com/aikyo-ai/aikyo/internal/config"
	"github.com/aikyo-ai/aikyo/pkg/kv"
	memmock "github.com/aikyo-ai/aikyo/pkg/memory/mock"
)

func testConfig() *config.Config {
	cfg, err := config.LoadFromReader(strings.NewReader(`
server:
  log_level: info
tenants:
  - id: t1
    name: Acme
    tier: pro
    api_key: key-1
    active: true
`))
	if err != nil {
		panic(err)
	}
	return cfg
}

// newTestApp wires an App entirely on in-memory stores.
func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, &Providers{},
		WithMemoryStore(&memmock.Store{}),
		WithLedger(budget.NewMemLedger()),
		WithKV(kv.NewMemStore()),
		WithCostWriter(nopWriter{}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

// ─── TestNew_RequiresDSNWithoutStore ───

func TestNew_RequiresDSNWithoutStore(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), testConfig(), &Providers{})
	if err == nil || !strings.Contains(err.Error(), "postgres.dsn") {
		t.Fatalf("New without DSN or stores: err = %v", err)
	}
}

// ─── TestNew_ServesEvents ───

func TestNew_ServesEvents(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig())
	a.dispatcher.Start()
	defer a.dispatcher.Stop()

	body := `{"player_id":"p1","game_id":"g1","kind":"victory","payload":{}}`
	req := httptest.NewRequest("POST", "/v1/events", strings.NewReader(body))
	req.Header.Set("X-API-Key", "key-1")
	rec := httptest.NewRecorder()
	a.httpSrv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Emotion struct {
			Type string `json:"type"`
		} `json:"emotion"`
		Dialogue struct {
			Text string `json:"text"`
		} `json:"dialogue"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Emotion.Type == "" || resp.Dialogue.Text == "" {
		t.Errorf("response = %s, want emotion and dialogue", rec.Body.String())
	}
}

// ─── TestNew_AuthRejected ───

func TestNew_AuthRejected(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig())

	req := httptest.NewRequest("POST", "/v1/events", strings.NewReader(`{}`))
	req.Header.Set("X-API-Key", "wrong")
	rec := httptest.NewRecorder()
	a.httpSrv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

// ─── TestApplyConfig_TenantHotReload ───

func TestApplyConfig_TenantHotReload(t *testing.T) {
	t.Parallel()

	old := testConfig()
	a := newTestApp(t, old)

	next := testConfig()
	next.Tenants[0].Active = false
	next.Tenants = append(next.Tenants, config.TenantEntry{
		ID: "t2", APIKey: "key-2", Tier: "free", Active: true,
	})
	a.ApplyConfig(old, next)

	got, err := a.tenants.Authenticate(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("Authenticate key-1: %v", err)
	}
	if got.Active {
		t.Error("tenant t1 still active after reload")
	}
	if _, err := a.tenants.Authenticate(context.Background(), "key-2"); err != nil {
		t.Errorf("Authenticate key-2 after add: %v", err)
	}

	removed := testConfig()
	removed.Tenants = nil
	a.ApplyConfig(next, removed)
	if _, err := a.tenants.Authenticate(context.Background(), "key-1"); err == nil {
		t.Error("tenant t1 still resolvable after removal")
	}
}

// ─── TestApplyConfig_LogLevel ───

func TestApplyConfig_LogLevel(t *testing.T) {
	t.Parallel()

	old := testConfig()
	level := new(slog.LevelVar)
	a, err := New(context.Background(), old, &Providers{},
		WithMemoryStore(&memmock.Store{}),
		WithLedger(budget.NewMemLedger()),
		WithKV(kv.NewMemStore()),
		WithCostWriter(nopWriter{}),
		WithLogLevel(level),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	next := testConfig()
	next.Server.LogLevel = config.LogDebug
	a.ApplyConfig(old, next)
	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
}

// ─── TestShutdown_Idempotent ───

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, testConfig())
	ctx := context.Background()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
