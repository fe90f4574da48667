package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aikyo-ai/aikyo/internal/budget"
	"github.com/aikyo-ai/aikyo/internal/cache"
	"github.com/aikyo-ai/aikyo/internal/costsink"
	"github.com/aikyo-ai/aikyo/internal/dialogue"
	"github.com/aikyo-ai/aikyo/internal/emotion"
	"github.com/aikyo-ai/aikyo/internal/event"
	"github.com/aikyo-ai/aikyo/internal/recall"
	"github.com/aikyo-ai/aikyo/internal/tenant"
	"github.com/aikyo-ai/aikyo/pkg/kv"
	memmock "github.com/aikyo-ai/aikyo/pkg/memory/mock"
	embmock "github.com/aikyo-ai/aikyo/pkg/provider/embeddings/mock"
	"github.com/aikyo-ai/aikyo/pkg/provider/llm"
)

type testRecorder struct {
	mu      sync.Mutex
	metrics []costsink.Metric
}

func (r *testRecorder) Record(m costsink.Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, m)
}

func (r *testRecorder) byComponent(c string) []costsink.Metric {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []costsink.Metric
	for _, m := range r.metrics {
		if m.Component == c {
			out = append(out, m)
		}
	}
	return out
}

type testPublisher struct {
	mu        sync.Mutex
	published []*Response
}

func (p *testPublisher) PublishReaction(_ *event.Event, resp *Response) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, resp)
}

func (p *testPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

type fixture struct {
	d        *Dispatcher
	store    *memmock.Store
	recorder *testRecorder
	pub      *testPublisher
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store := &memmock.Store{}
	embedder := &embmock.Provider{EmbedResult: []float32{1, 0}, DimensionsValue: 2}
	gov := budget.NewGovernor(budget.NewMemLedger())

	c, err := cache.New(64, kv.NewMemStore())
	if err != nil {
		t.Fatal(err)
	}
	recorder := &testRecorder{}
	pub := &testPublisher{}
	d := New(cfg,
		emotion.New(nil, gov),
		dialogue.New(nil, gov),
		recall.New(store, embedder, gov),
		c,
		WithRecorder(recorder),
		WithPublisher(pub),
	)
	d.Start()
	t.Cleanup(d.Stop)
	return &fixture{d: d, store: store, recorder: recorder, pub: pub}
}

func testTenant() *tenant.Tenant {
	return &tenant.Tenant{
		ID: "t1", Tier: tenant.TierPro, APIKey: "key-t1",
		DailyBudgetUSD: 10, Active: true,
	}
}

func zhProfile() tenant.Profile {
	return tenant.Profile{Persona: tenant.PersonaCheerful, Language: tenant.LanguageZH}
}

func victoryEvent(player string) *event.Event {
	return &event.Event{
		Tenant: "t1", Game: "g1", Player: player, Kind: event.KindVictory,
		Payload: map[string]any{"kill_count": 15, "mvp": true, "win_streak": 5},
		Context: map[string]any{"player_health": 85, "in_combat": false},
	}
}

// ─── TestHandle_RulePathVictory ───

func TestHandle_RulePathVictory(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	resp, err := f.d.Handle(context.Background(), testTenant(), zhProfile(), victoryEvent("p1"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if resp.Emotion.Emotion != emotion.Excited || resp.Emotion.Intensity != 0.9 {
		t.Errorf("emotion = %s/%v, want excited/0.9", resp.Emotion.Emotion, resp.Emotion.Intensity)
	}
	if resp.Emotion.Method != emotion.MethodRule || resp.Emotion.CostUSD != 0 {
		t.Errorf("emotion method=%s cost=%v, want free rule verdict", resp.Emotion.Method, resp.Emotion.CostUSD)
	}
	if resp.Emotion.Action != "celebrate" {
		t.Errorf("action = %q, want celebrate", resp.Emotion.Action)
	}
	if resp.Dialogue.Method != dialogue.MethodTemplate || resp.Dialogue.Language != tenant.LanguageZH {
		t.Errorf("dialogue method=%s lang=%s, want template/zh", resp.Dialogue.Method, resp.Dialogue.Language)
	}
	reasons := strings.Join(resp.Dialogue.SpecialCaseReasons, ",")
	if !strings.Contains(reasons, dialogue.ReasonWinStreak) || !strings.Contains(reasons, dialogue.ReasonMVP) {
		t.Errorf("special case reasons = %v, want win_streak and mvp", resp.Dialogue.SpecialCaseReasons)
	}
	if resp.Partial {
		t.Errorf("partial = true, reasons %v", resp.DegradedReasons)
	}
	if f.pub.count() != 1 {
		t.Errorf("published %d responses, want 1", f.pub.count())
	}
}

// ─── TestHandle_CacheHitIdentity ───

func TestHandle_CacheHitIdentity(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	ctx := context.Background()

	first, err := f.d.Handle(ctx, testTenant(), zhProfile(), victoryEvent("p1"))
	if err != nil {
		t.Fatalf("first handle: %v", err)
	}
	second, err := f.d.Handle(ctx, testTenant(), zhProfile(), victoryEvent("p1"))
	if err != nil {
		t.Fatalf("second handle: %v", err)
	}

	if second.Dialogue.Method != dialogue.MethodCached {
		t.Errorf("second dialogue method = %s, want cached", second.Dialogue.Method)
	}
	if second.Emotion.Method != emotion.MethodCached {
		t.Errorf("second emotion method = %s, want cached", second.Emotion.Method)
	}
	if second.Dialogue.Text != first.Dialogue.Text {
		t.Errorf("cached text %q differs from original %q", second.Dialogue.Text, first.Dialogue.Text)
	}
	if second.Fingerprint != first.Fingerprint {
		t.Errorf("fingerprints differ: %s vs %s", second.Fingerprint, first.Fingerprint)
	}
	if second.Emotion.CostUSD != 0 || second.Dialogue.CostUSD != 0 {
		t.Error("cached replay must be free")
	}
	hits := 0
	for _, m := range f.recorder.byComponent(costsink.ComponentDispatcher) {
		if m.CacheHit {
			hits++
		}
	}
	if hits != 1 {
		t.Errorf("cache-hit metrics = %d, want 1", hits)
	}
}

// ─── TestHandle_FingerprintSharedAcrossPlayers ───

func TestHandle_FingerprintSharedAcrossPlayers(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	ctx := context.Background()

	first, err := f.d.Handle(ctx, testTenant(), zhProfile(), victoryEvent("p1"))
	if err != nil {
		t.Fatalf("first handle: %v", err)
	}
	// Same tenant, persona, language, and event shape: a different player
	// shares the cache entry.
	second, err := f.d.Handle(ctx, testTenant(), zhProfile(), victoryEvent("p2"))
	if err != nil {
		t.Fatalf("second handle: %v", err)
	}
	if second.Fingerprint != first.Fingerprint {
		t.Errorf("fingerprints differ across players: %s vs %s", second.Fingerprint, first.Fingerprint)
	}
	if second.Dialogue.Method != dialogue.MethodCached {
		t.Errorf("second dialogue method = %s, want cached", second.Dialogue.Method)
	}
}

// ─── TestHandle_DegradedMemory ───

func TestHandle_DegradedMemory(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	f.store.RecentErr = errors.New("memory store unreachable")

	resp, err := f.d.Handle(context.Background(), testTenant(), zhProfile(), victoryEvent("p1"))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !resp.Partial {
		t.Fatal("partial = false with the memory store down")
	}
	if len(resp.DegradedReasons) != 1 || resp.DegradedReasons[0] != ReasonMemoryTimeout {
		t.Errorf("degraded reasons = %v, want [memory_timeout]", resp.DegradedReasons)
	}
	if resp.MemoryContext == nil || len(resp.MemoryContext) != 0 {
		t.Errorf("memory context = %v, want empty non-nil slice", resp.MemoryContext)
	}
	if resp.Dialogue.Text == "" {
		t.Error("dialogue must still produce a line")
	}

	// Degraded responses are not cached: a retry after recovery is a miss.
	f.store.RecentErr = nil
	again, err := f.d.Handle(context.Background(), testTenant(), zhProfile(), victoryEvent("p1"))
	if err != nil {
		t.Fatalf("handle after recovery: %v", err)
	}
	if again.Dialogue.Method == dialogue.MethodCached {
		t.Error("degraded response was served from cache after recovery")
	}
	if again.Partial {
		t.Error("recovered response still partial")
	}
}

// ─── TestHandle_EmotionTimeout ───

type slowLLM struct {
	delay time.Duration
}

func (s *slowLLM) Complete(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	select {
	case <-time.After(s.delay):
		return &llm.CompletionResponse{Content: "curious 0.6", CostUSD: 0.0004}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *slowLLM) CountTokens([]llm.Message) (int, error) { return 0, nil }
func (s *slowLLM) Capabilities() llm.ModelCapabilities    { return llm.ModelCapabilities{} }

func TestHandle_EmotionTimeout(t *testing.T) {
	t.Parallel()

	store := &memmock.Store{}
	gov := budget.NewGovernor(budget.NewMemLedger())
	c, err := cache.New(64, kv.NewMemStore())
	if err != nil {
		t.Fatal(err)
	}
	d := New(Config{EmotionDeadline: 30 * time.Millisecond},
		emotion.New(&slowLLM{delay: time.Second}, gov),
		dialogue.New(nil, gov),
		recall.New(store, nil, gov),
		c,
	)
	d.Start()
	t.Cleanup(d.Stop)

	// Loot without a recognized rarity abstains from the rule table, forcing
	// the (slow) classifier.
	ev := &event.Event{Tenant: "t1", Player: "p1", Kind: event.KindLoot}
	resp, err := d.Handle(context.Background(), testTenant(), zhProfile(), ev)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !resp.Partial {
		t.Fatal("partial = false after an emotion timeout")
	}
	found := false
	for _, r := range resp.DegradedReasons {
		if r == ReasonEmotionTimeout {
			found = true
		}
	}
	if !found {
		t.Errorf("degraded reasons = %v, want emotion_timeout", resp.DegradedReasons)
	}
	if resp.Emotion.Emotion != emotion.Neutral || resp.Emotion.Confidence != 0 {
		t.Errorf("emotion = %s conf=%v, want neutral with confidence 0", resp.Emotion.Emotion, resp.Emotion.Confidence)
	}
	if resp.Emotion.Method != emotion.MethodRule {
		t.Errorf("method = %s, want rule on the timeout fallback", resp.Emotion.Method)
	}
}

// ─── TestHandle_InvalidEvent ───

func TestHandle_InvalidEvent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	_, err := f.d.Handle(context.Background(), testTenant(), zhProfile(), &event.Event{
		Tenant: "t1", Player: "p1", Kind: event.Kind("bogus"),
	})
	if err == nil {
		t.Fatal("expected a validation error")
	}
}

// ─── TestHandleAsync_AppendOrder ───

func TestHandleAsync_AppendOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	ctx := context.Background()

	// Achievements are memory-worthy regardless of intensity; distinct kill
	// counts make the append order observable in the stored content.
	for i := 1; i <= 3; i++ {
		ev := &event.Event{
			Tenant: "t1", Player: "p-order", Kind: event.KindAchievement,
			Payload: map[string]any{"kill_count": i},
		}
		if err := f.d.HandleAsync(ctx, testTenant(), zhProfile(), ev); err != nil {
			t.Fatalf("handle async %d: %v", i, err)
		}
	}
	f.d.Stop() // drains workers and appenders

	recs := f.store.Records()
	if len(recs) != 3 {
		t.Fatalf("stored %d memories, want 3", len(recs))
	}
	for i, want := range []string{"1 kills", "2 kills", "3 kills"} {
		if !strings.Contains(recs[i].Content, want) {
			t.Errorf("record %d content = %q, want it to mention %q", i, recs[i].Content, want)
		}
	}
}

// ─── TestHandle_NotWorthyNotAppended ───

func TestHandle_NotWorthyNotAppended(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{})
	// A plain kill scores happy/0.5: below the intensity bar and not a
	// notable kind.
	ev := &event.Event{Tenant: "t1", Player: "p1", Kind: event.KindKill}
	if _, err := f.d.Handle(context.Background(), testTenant(), zhProfile(), ev); err != nil {
		t.Fatalf("handle: %v", err)
	}
	f.d.Stop()
	if recs := f.store.Records(); len(recs) != 0 {
		t.Errorf("stored %d memories for a non-worthy event, want 0", len(recs))
	}
}
