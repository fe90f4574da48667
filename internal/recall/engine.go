// Package recall implements the memory engine: importance scoring at append,
// embedding with deferred retry, hybrid temporal+semantic context retrieval,
// daily decay, and cleanup.
//
// The engine sits above [memory.Store] and adds everything the store does not
// know about: how important an event is, how to turn it into text, and how to
// rank the retrieved slices.
package recall

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/aikyo-ai/aikyo/internal/budget"
	"github.com/aikyo-ai/aikyo/internal/emotion"
	"github.com/aikyo-ai/aikyo/internal/event"
	"github.com/aikyo-ai/aikyo/internal/tenant"
	"github.com/aikyo-ai/aikyo/pkg/memory"
	"github.com/aikyo-ai/aikyo/pkg/provider/embeddings"
)

const (
	// DefaultContextK is how many memories condition a response.
	DefaultContextK = 5

	// DefaultMinImportance filters retrieval and drives cleanup.
	DefaultMinImportance = 0.3

	// DefaultFloorMult anchors the decay floor at initial importance × mult.
	DefaultFloorMult = 0.3

	// DefaultSoftCap is the per-player record count that triggers a cleanup
	// warning.
	DefaultSoftCap = 10000
)

// hybrid ranking weights: score = 0.6·importance + 0.4·exp(-age_days/14).
const (
	importanceWeight = 0.6
	recencyWeight    = 0.4
	recencyHalfDays  = 14.0
)

// Engine is the memory engine. The embedder may be nil, which disables the
// semantic slice (GetContext degrades to temporal-only).
//
// Engine is safe for concurrent use; per-player append ordering is the
// dispatcher's responsibility.
type Engine struct {
	store    memory.Store
	embedder embeddings.Provider
	governor *budget.Governor
	tenants  tenant.Store
	log      *slog.Logger
	now      func() time.Time

	contextK      int
	minImportance float64
	floorMult     float64
	softCap       int
}

// Option configures an [Engine].
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithClock replaces the engine's clock. Test hook.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithContextK sets the default context size.
func WithContextK(k int) Option {
	return func(e *Engine) { e.contextK = k }
}

// WithMinImportance sets the retrieval/cleanup importance threshold.
func WithMinImportance(min float64) Option {
	return func(e *Engine) { e.minImportance = min }
}

// WithFloorMult sets the decay floor multiplier applied to a record's
// initial importance.
func WithFloorMult(mult float64) Option {
	return func(e *Engine) { e.floorMult = mult }
}

// WithSoftCap sets the per-player record soft cap.
func WithSoftCap(n int) Option {
	return func(e *Engine) { e.softCap = n }
}

// New creates a memory engine over store. embedder and governor may be nil.
func New(store memory.Store, embedder embeddings.Provider, governor *budget.Governor, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		embedder:      embedder,
		governor:      governor,
		log:           slog.Default(),
		now:           time.Now,
		contextK:      DefaultContextK,
		minImportance: DefaultMinImportance,
		floorMult:     DefaultFloorMult,
		softCap:       DefaultSoftCap,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Worthy reports whether the event deserves a memory: high emotional
// intensity, or a kind that is notable on its own.
func Worthy(ev *event.Event, emo *emotion.Result) bool {
	if emo != nil && emo.Intensity >= 0.7 {
		return true
	}
	return MemoryKind(ev).Notable()
}

// MemoryKind maps an event to its memory classification.
func MemoryKind(ev *event.Event) memory.Kind {
	if ev.FirstTime() {
		return memory.KindFirstTime
	}
	switch ev.Kind {
	case event.KindAchievement:
		return memory.KindAchievement
	case event.KindLevelUp:
		return memory.KindMilestone
	case event.KindCombatBossDefeated:
		return memory.KindDramatic
	case event.KindSessionStart, event.KindSessionEnd:
		return memory.KindObservation
	default:
		return memory.KindEvent
	}
}

// Append scores, embeds, and persists a memory for the event. An embedding
// failure (or a budget denial) never fails the append: the record is stored
// with EmbeddingPending set and the background retrier picks it up.
func (e *Engine) Append(ctx context.Context, t *tenant.Tenant, ev *event.Event, emo *emotion.Result) (*memory.Record, error) {
	var emoName emotion.Emotion
	if emo != nil {
		emoName = emo.Emotion
	}
	kind := MemoryKind(ev)
	rec := memory.Record{
		ID:         uuid.NewString(),
		Tenant:     ev.Tenant,
		Player:     ev.Player,
		Kind:       kind,
		Content:    truncateContent(ev.Describe()),
		Emotion:    string(emoName),
		Importance: ScoreImportance(ev, emoName, kind),
		Context:    snapshotContext(ev),
		CreatedAt:  e.now(),
	}
	rec.InitialImportance = rec.Importance

	if vec, ok := e.embed(ctx, t, rec.Content); ok {
		rec.Embedding = vec
	} else {
		rec.EmbeddingPending = true
	}

	if err := e.store.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("recall: append: %w", err)
	}
	return &rec, nil
}

// GetContext returns up to k memories for the event, merged from the
// temporal and semantic slices and ranked by combined importance/recency.
// degraded reports that the semantic slice was unavailable and the result is
// temporal-only.
func (e *Engine) GetContext(ctx context.Context, t *tenant.Tenant, ev *event.Event, k int) (recs []memory.Record, degraded bool, err error) {
	if k <= 0 {
		k = e.contextK
	}
	temporal, err := e.store.Recent(ctx, ev.Tenant, ev.Player, k, e.minImportance)
	if err != nil {
		return nil, true, fmt.Errorf("recall: get context: %w", err)
	}

	merged := make(map[string]memory.Record, 2*k)
	for _, r := range temporal {
		merged[r.ID] = r
	}

	if vec, ok := e.embed(ctx, t, ev.Describe()); ok {
		semantic, serr := e.store.SemanticSearch(ctx, ev.Tenant, ev.Player, vec, k, e.minImportance)
		if serr != nil {
			e.log.Warn("recall: semantic search failed, temporal only",
				"tenant", ev.Tenant, "player", ev.Player, "error", serr)
			degraded = true
		} else {
			for _, s := range semantic {
				merged[s.Record.ID] = s.Record
			}
		}
	} else {
		degraded = true
	}

	out := make([]memory.Record, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	now := e.now()
	sort.Slice(out, func(i, j int) bool {
		si, sj := e.hybridScore(out[i], now), e.hybridScore(out[j], now)
		if si != sj {
			return si > sj
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, degraded, nil
}

// Search is pure semantic retrieval over the player's memories.
func (e *Engine) Search(ctx context.Context, t *tenant.Tenant, player, query string, k int, minImportance float64) ([]memory.Scored, error) {
	if minImportance <= 0 {
		minImportance = e.minImportance
	}
	vec, ok := e.embed(ctx, t, query)
	if !ok {
		return nil, fmt.Errorf("recall: search: embedding unavailable")
	}
	res, err := e.store.SemanticSearch(ctx, t.ID, player, vec, k, minImportance)
	if err != nil {
		return nil, fmt.Errorf("recall: search: %w", err)
	}
	return res, nil
}

// Cleanup removes the player's low-importance and over-age records. The
// per-player soft cap is enforced here: exceeding it after cleanup is logged
// for the operator.
func (e *Engine) Cleanup(ctx context.Context, tenantID, player string, minImportance float64, maxAge time.Duration) (int64, error) {
	if minImportance <= 0 {
		minImportance = e.minImportance
	}
	deleted, err := e.store.DeleteBelow(ctx, tenantID, player, minImportance, maxAge)
	if err != nil {
		return 0, fmt.Errorf("recall: cleanup: %w", err)
	}
	if n, cerr := e.store.Count(ctx, tenantID, player); cerr == nil && n > e.softCap {
		e.log.Warn("recall: player exceeds memory soft cap after cleanup",
			"tenant", tenantID, "player", player, "count", n, "cap", e.softCap)
	}
	return deleted, nil
}

// Decay applies the daily importance decay across all records.
func (e *Engine) Decay(ctx context.Context) (int64, error) {
	n, err := e.store.Decay(ctx, e.floorMult)
	if err != nil {
		return 0, fmt.Errorf("recall: decay: %w", err)
	}
	return n, nil
}

// Summaries renders records as short text summaries for prompt conditioning.
func Summaries(recs []memory.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Content)
	}
	return out
}

// embed runs one governed embedding call. A nil embedder, a budget denial,
// or a provider failure all report ok=false; the caller decides whether that
// is pending state or degradation.
func (e *Engine) embed(ctx context.Context, t *tenant.Tenant, text string) ([]float32, bool) {
	if e.embedder == nil {
		return nil, false
	}
	var res *budget.Reservation
	if e.governor != nil && t != nil {
		var err error
		res, err = e.governor.Admit(ctx, t, budget.ComponentEmbedding, false)
		if err != nil || res == nil {
			return nil, false
		}
	}
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil || len(vec) == 0 {
		res.Release(ctx)
		return nil, false
	}
	res.Commit(ctx, budget.EstimateEmbeddingUSD)
	return vec, true
}

// hybridScore ranks a record for context selection.
func (e *Engine) hybridScore(r memory.Record, now time.Time) float64 {
	ageDays := now.Sub(r.CreatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return importanceWeight*r.Importance + recencyWeight*math.Exp(-ageDays/recencyHalfDays)
}

// truncateContent clamps content to [memory.MaxContentBytes] without
// splitting a rune.
func truncateContent(s string) string {
	if len(s) <= memory.MaxContentBytes {
		return s
	}
	b := []byte(s)[:memory.MaxContentBytes]
	for len(b) > 0 && b[len(b)-1]&0xC0 == 0x80 {
		b = b[:len(b)-1]
	}
	return string(b)
}

// snapshotContext copies the well-known keys present on the event so the
// memory stays interpretable after the event is gone.
func snapshotContext(ev *event.Event) map[string]any {
	keys := []string{
		event.KeyKillCount, event.KeyIsLegendary, event.KeyMVP,
		event.KeyWinStreak, event.KeyLossStreak, event.KeyRarity,
		event.KeyFirstTime, event.KeyDifficulty,
	}
	out := make(map[string]any)
	for _, k := range keys {
		if v, ok := ev.Payload[k]; ok {
			out[k] = v
		} else if v, ok := ev.Context[k]; ok {
			out[k] = v
		}
	}
	return out
}
