// Package httpapi is the REST ingress of the pipeline: event submission,
// health, and the analytics read endpoints. Authentication is the tenant API
// key in the X-API-Key header; rate limiting is a per-tenant token bucket.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/aikyo-ai/aikyo/internal/costsink"
	"github.com/aikyo-ai/aikyo/internal/dispatch"
	"github.com/aikyo-ai/aikyo/internal/event"
	"github.com/aikyo-ai/aikyo/internal/tenant"
)

// maxBodyBytes bounds an event submission body.
const maxBodyBytes = 64 << 10

// EventHandler processes one validated event synchronously.
// *dispatch.Dispatcher satisfies it.
type EventHandler interface {
	Handle(ctx context.Context, t *tenant.Tenant, profile tenant.Profile, ev *event.Event) (*dispatch.Response, error)
}

var _ EventHandler = (*dispatch.Dispatcher)(nil)

// Analytics serves the aggregation endpoints. *costsink.PGWriter satisfies
// it.
type Analytics interface {
	Platform(ctx context.Context, days int) (costsink.PlatformStats, error)
	TenantCosts(ctx context.Context, tenantID string, days int) ([]costsink.ComponentCost, error)
}

var _ Analytics = (*costsink.PGWriter)(nil)

// Server routes the public HTTP surface.
type Server struct {
	tenants    tenant.Store
	handler    EventHandler
	analytics  Analytics
	limiter    *RateLimiter
	log        *slog.Logger
	now        func() time.Time
	realtime   http.Handler
	metrics    http.Handler
	livez      http.Handler
	readyz     http.Handler
	middleware func(http.Handler) http.Handler
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithRateLimiter installs a per-tenant limiter. Without one, requests are
// not rate limited.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

// WithAnalytics enables the /v1/analytics endpoints.
func WithAnalytics(a Analytics) Option {
	return func(s *Server) { s.analytics = a }
}

// WithRealtime mounts the websocket gateway at /v1/realtime.
func WithRealtime(h http.Handler) Option {
	return func(s *Server) { s.realtime = h }
}

// WithMetrics mounts the Prometheus scrape handler at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithProbes mounts liveness and readiness handlers at /healthz and /readyz.
func WithProbes(livez, readyz http.Handler) Option {
	return func(s *Server) { s.livez = livez; s.readyz = readyz }
}

// WithMiddleware wraps the whole mux, outermost. Used for request metrics.
func WithMiddleware(mw func(http.Handler) http.Handler) Option {
	return func(s *Server) { s.middleware = mw }
}

// New creates the server.
func New(tenants tenant.Store, handler EventHandler, opts ...Option) *Server {
	s := &Server{
		tenants: tenants,
		handler: handler,
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	if s.analytics != nil {
		mux.HandleFunc("GET /v1/analytics/platform", s.handlePlatform)
		mux.HandleFunc("GET /v1/analytics/costs", s.handleCosts)
	}
	if s.realtime != nil {
		mux.Handle("GET /v1/realtime", s.realtime)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	if s.livez != nil {
		mux.Handle("GET /healthz", s.livez)
	}
	if s.readyz != nil {
		mux.Handle("GET /readyz", s.readyz)
	}
	if s.middleware != nil {
		return s.middleware(mux)
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authenticate resolves the caller's tenant or writes the error response and
// returns nil.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) *tenant.Tenant {
	key := r.Header.Get("X-API-Key")
	if key == "" {
		writeError(w, http.StatusUnauthorized, "AUTH_FAILED", "missing X-API-Key header")
		return nil
	}
	t, err := s.tenants.Authenticate(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH_FAILED", "unknown API key")
		return nil
	}
	if !t.Active {
		writeError(w, http.StatusForbidden, "TENANT_INACTIVE", "tenant is suspended")
		return nil
	}
	return t
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	var b errorBody
	b.Error.Code = code
	b.Error.Message = msg
	writeJSON(w, status, b)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
