package push

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/aikyo-ai/aikyo/internal/dispatch"
	"github.com/aikyo-ai/aikyo/internal/event"
	"github.com/aikyo-ai/aikyo/internal/tenant"
)

// Sink accepts events for push-only processing. *dispatch.Dispatcher
// satisfies it.
type Sink interface {
	HandleAsync(ctx context.Context, t *tenant.Tenant, profile tenant.Profile, ev *event.Event) error
}

var _ Sink = (*dispatch.Dispatcher)(nil)

// Gateway upgrades /v1/realtime requests into push sessions. Credentials ride
// the query string (api_key, player_id, and optionally game_id, persona,
// language) because browser WebSocket clients cannot set headers; the
// X-API-Key header is honored when present.
type Gateway struct {
	hub       *Hub
	tenants   tenant.Store
	sink      Sink
	log       *slog.Logger
	now       func() time.Time
	origins   []string
	sessOpts  []SessionOption
	onSession func(delta int64)
}

// GatewayOption configures a [Gateway].
type GatewayOption func(*Gateway)

// WithGatewayLogger sets the logger. Defaults to [slog.Default].
func WithGatewayLogger(log *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.log = log }
}

// WithGatewayClock overrides the time source.
func WithGatewayClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) { g.now = now }
}

// WithAllowedOrigins sets the Origin patterns accepted for cross-origin
// browser connections. Empty means same-origin only.
func WithAllowedOrigins(origins []string) GatewayOption {
	return func(g *Gateway) { g.origins = origins }
}

// WithSessionOptions sets the [SessionOption]s applied to every accepted
// session, such as [WithSessionBuffer] and [WithHeartbeat].
func WithSessionOptions(opts ...SessionOption) GatewayOption {
	return func(g *Gateway) { g.sessOpts = opts }
}

// WithSessionGauge registers a callback invoked with +1 when a session opens
// and -1 when it closes. The app wires it to the active-sessions gauge.
func WithSessionGauge(fn func(delta int64)) GatewayOption {
	return func(g *Gateway) { g.onSession = fn }
}

// NewGateway creates a gateway routing into hub and feeding events to sink.
func NewGateway(hub *Hub, tenants tenant.Store, sink Sink, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		hub:     hub,
		tenants: tenants,
		sink:    sink,
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// ServeHTTP implements the /v1/realtime endpoint.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	player := q.Get("player_id")
	if player == "" {
		http.Error(w, "player_id is required", http.StatusBadRequest)
		return
	}
	apiKey := q.Get("api_key")
	if apiKey == "" {
		apiKey = r.Header.Get("X-API-Key")
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.origins,
	})
	if err != nil {
		return
	}

	// Auth happens after the upgrade so the client sees the application
	// close code instead of a bare HTTP status.
	t, err := g.tenants.Authenticate(r.Context(), apiKey)
	if err != nil || apiKey == "" {
		_ = conn.Close(StatusAuthFailed, "AUTH_FAILED")
		return
	}
	if !t.Active {
		_ = conn.Close(StatusTenantInactive, "TENANT_INACTIVE")
		return
	}

	game := q.Get("game_id")
	profile := tenant.ResolveProfile(t, q.Get("persona"), q.Get("language"))
	topic := Topic(t.ID, game, player)

	sess := NewSession(conn, g.log, g.now, g.sessOpts...)
	g.hub.Subscribe(topic, sess)
	sess.Start(r.Context())
	if g.onSession != nil {
		g.onSession(1)
	}
	g.log.Info("push: session opened", "tenant", t.ID, "player", player)
	defer func() {
		g.hub.Unsubscribe(topic, sess)
		sess.Close(websocket.StatusNormalClosure, "")
		sess.Wait()
		if g.onSession != nil {
			g.onSession(-1)
		}
		g.log.Info("push: session closed", "tenant", t.ID, "player", player)
	}()

	g.readLoop(r.Context(), conn, sess, t, profile, game, player)
}

// readLoop consumes client frames until the connection drops. Event frames
// feed the pipeline asynchronously; their reactions come back through the
// hub. Ack frames are accepted and ignored.
func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, sess *Session, t *tenant.Tenant, profile tenant.Profile, game, player string) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sess.sendError("malformed frame")
			continue
		}
		switch msg.Type {
		case "event":
			g.handleEvent(ctx, sess, t, profile, game, player, msg)
		case "ack":
		default:
			sess.sendError("unknown frame type")
		}
	}
}

func (g *Gateway) handleEvent(ctx context.Context, sess *Session, t *tenant.Tenant, profile tenant.Profile, game, player string, msg ClientMessage) {
	kind, err := event.ParseKind(msg.Kind)
	if err != nil {
		sess.sendError("unknown event kind")
		return
	}
	if msg.Persona != "" || msg.Language != "" {
		profile = tenant.ResolveProfile(t, msg.Persona, msg.Language)
	}
	if msg.GameID != "" {
		game = msg.GameID
	}
	ev := &event.Event{
		Tenant:     t.ID,
		Game:       game,
		Player:     player,
		Kind:       kind,
		Payload:    msg.Payload,
		Context:    msg.Context,
		ClientSeq:  msg.ClientSeq,
		ReceivedAt: g.now(),
	}
	if err := g.sink.HandleAsync(ctx, t, profile, ev); err != nil {
		switch {
		case errors.Is(err, dispatch.ErrQueueFull):
			sess.sendError("overloaded")
		default:
			sess.sendError("invalid event")
		}
	}
}
