package dialogue

import (
	"context"
	"strings"
	"testing"

	"github.com/aikyo-ai/aikyo/internal/budget"
	"github.com/aikyo-ai/aikyo/internal/emotion"
	"github.com/aikyo-ai/aikyo/internal/event"
	"github.com/aikyo-ai/aikyo/internal/tenant"
	"github.com/aikyo-ai/aikyo/pkg/provider/llm"
	llmmock "github.com/aikyo-ai/aikyo/pkg/provider/llm/mock"
)

func testTenant() *tenant.Tenant {
	return &tenant.Tenant{
		ID: "t1", Tier: tenant.TierPro, APIKey: "key-t1",
		DailyBudgetUSD: 10, Active: true,
	}
}

func victoryRequest() Request {
	return Request{
		Event: &event.Event{
			Tenant: "t1", Player: "p1", Kind: event.KindVictory,
			Payload: map[string]any{"mvp": true, "win_streak": 5, "nickname": "Rin"},
		},
		Emotion: &emotion.Result{
			Emotion: emotion.Excited, Intensity: 0.9, Method: emotion.MethodRule,
		},
		Profile:     tenant.Profile{Persona: tenant.PersonaCheerful, Language: tenant.LanguageZH},
		Fingerprint: "fp-victory-1",
	}
}

// ─── TestGenerate_TemplatePath ───

func TestGenerate_TemplatePath(t *testing.T) {
	t.Parallel()

	eng := New(nil, nil)
	req := victoryRequest()
	got := eng.Generate(context.Background(), testTenant(), req)

	if got.Method != MethodTemplate {
		t.Fatalf("method = %q, want template", got.Method)
	}
	if got.Text == "" {
		t.Fatal("empty line")
	}
	if got.Language != tenant.LanguageZH || got.Persona != tenant.PersonaCheerful {
		t.Errorf("got %s/%s, want zh/cheerful", got.Language, got.Persona)
	}
	if got.CostUSD != 0 {
		t.Errorf("cost = %v, want 0 on template path", got.CostUSD)
	}
	if !got.UsedSpecialCase {
		t.Error("detector should fire on mvp + win_streak")
	}
	want := map[string]bool{}
	for _, r := range got.SpecialCaseReasons {
		want[r] = true
	}
	if !want[ReasonWinStreak] || !want[ReasonMVP] {
		t.Errorf("reasons = %v, want win_streak and mvp", got.SpecialCaseReasons)
	}
	if strings.Contains(got.Text, "{") {
		t.Errorf("unsubstituted placeholder in %q", got.Text)
	}
}

// ─── TestGenerate_DeterministicUnderFingerprint ───

func TestGenerate_DeterministicUnderFingerprint(t *testing.T) {
	t.Parallel()

	eng := New(nil, nil)
	req := victoryRequest()
	first := eng.Generate(context.Background(), testTenant(), req)
	for i := 0; i < 10; i++ {
		got := eng.Generate(context.Background(), testTenant(), req)
		if got.Text != first.Text {
			t.Fatalf("run %d picked %q, first run picked %q", i, got.Text, first.Text)
		}
	}
}

// ─── TestGenerate_FallbackChain ───

func TestGenerate_FallbackChain(t *testing.T) {
	t.Parallel()

	eng := New(nil, nil)

	// cute/ja has no authored victory-excited lines; cheerful/ja does.
	req := victoryRequest()
	req.Profile = tenant.Profile{Persona: tenant.PersonaCute, Language: tenant.LanguageJA}
	got := eng.Generate(context.Background(), testTenant(), req)
	if got.Text == "" || got.Method != MethodTemplate {
		t.Fatalf("got %+v, want template line via persona fallback", got)
	}

	// An emotion with no authored lines at all bottoms out at the static
	// per-kind line.
	req = victoryRequest()
	req.Emotion = &emotion.Result{Emotion: emotion.Grateful, Intensity: 0.5}
	req.Profile = tenant.Profile{Persona: tenant.PersonaCool, Language: tenant.LanguageKO}
	got = eng.Generate(context.Background(), testTenant(), req)
	if got.Text != "이긴 건 이긴 거지." {
		t.Errorf("text = %q, want the ko static victory line", got.Text)
	}
}

// ─── TestGenerate_GenerativePath ───

func TestGenerate_GenerativePath(t *testing.T) {
	t.Parallel()

	gen := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "**太强了！** 传说中的五连胜！",
			CostUSD: 0.002,
		},
	}
	eng := New(gen, budget.NewGovernor(budget.NewMemLedger()))
	got := eng.Generate(context.Background(), testTenant(), victoryRequest())

	if got.Method != MethodGenerative {
		t.Fatalf("method = %q, want generative", got.Method)
	}
	if strings.Contains(got.Text, "*") {
		t.Errorf("markdown survived post-processing: %q", got.Text)
	}
	if got.CostUSD != 0.002 || got.AttemptCostUSD != 0.002 {
		t.Errorf("cost = %v / attempt = %v, want 0.002 / 0.002", got.CostUSD, got.AttemptCostUSD)
	}
	if len(gen.CompleteCalls) != 1 {
		t.Fatalf("generator called %d times, want 1", len(gen.CompleteCalls))
	}
	req := gen.CompleteCalls[0].Req
	if !strings.Contains(req.SystemPrompt, "Simplified Chinese") {
		t.Error("system prompt missing the language directive")
	}
	if !strings.Contains(req.Messages[0].Content, "Rin") {
		t.Error("user prompt missing the player nickname")
	}
}

// ─── TestGenerate_LanguageMismatchReverts ───

func TestGenerate_LanguageMismatchReverts(t *testing.T) {
	t.Parallel()

	gen := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "Amazing win, five in a row!",
			CostUSD: 0.002,
		},
	}
	gov := budget.NewGovernor(budget.NewMemLedger())
	eng := New(gen, gov)
	got := eng.Generate(context.Background(), testTenant(), victoryRequest())

	if got.Method != MethodTemplate {
		t.Fatalf("method = %q, want template after language mismatch", got.Method)
	}
	if got.FallbackReason != FallbackLanguageMismatch {
		t.Errorf("fallback_reason = %q, want %q", got.FallbackReason, FallbackLanguageMismatch)
	}
	if got.CostUSD != 0 {
		t.Errorf("cost = %v, want 0 on the reverted template verdict", got.CostUSD)
	}
	if got.AttemptCostUSD != 0.002 {
		t.Errorf("attempt cost = %v, want 0.002 (the spend stands)", got.AttemptCostUSD)
	}
	snap, err := gov.Snapshot(context.Background(), "t1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.SpentUSD != 0.002 {
		t.Errorf("ledger spent = %v, want 0.002", snap.SpentUSD)
	}
}

// ─── TestGenerate_TenantFlagBlocksGenerative ───

func TestGenerate_TenantFlagBlocksGenerative(t *testing.T) {
	t.Parallel()

	gen := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "x", CostUSD: 0.002},
	}
	eng := New(gen, budget.NewGovernor(budget.NewMemLedger()))

	tn := testTenant()
	tn.ForceGenerativeOff = true
	got := eng.Generate(context.Background(), tn, victoryRequest())

	if got.Method != MethodTemplate {
		t.Errorf("method = %q, want template when generation is off", got.Method)
	}
	if len(gen.CompleteCalls) != 0 {
		t.Errorf("generator called %d times, want 0", len(gen.CompleteCalls))
	}
}

// ─── TestGenerate_BudgetDeniedStaysTemplate ───

func TestGenerate_BudgetDeniedStaysTemplate(t *testing.T) {
	t.Parallel()

	gen := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "x", CostUSD: 0.002},
	}
	eng := New(gen, budget.NewGovernor(budget.NewMemLedger()))

	tn := testTenant()
	tn.DailyBudgetUSD = 0.0000001
	got := eng.Generate(context.Background(), tn, victoryRequest())

	if got.Method != MethodTemplate || got.CostUSD != 0 {
		t.Errorf("got method=%q cost=%v, want free template after denial", got.Method, got.CostUSD)
	}
	if len(gen.CompleteCalls) != 0 {
		t.Errorf("generator called %d times after denial, want 0", len(gen.CompleteCalls))
	}
}

// ─── TestDetectSpecialCases ───

func TestDetectSpecialCases(t *testing.T) {
	t.Parallel()

	ev := &event.Event{
		Tenant: "t1", Player: "p1", Kind: event.KindAchievement,
		Context: map[string]any{"rarity": "legendary", "first_time": true},
	}
	got := DetectSpecialCases(ev, 0)
	if len(got) != 2 {
		t.Fatalf("reasons = %v, want exactly [rarity first_time]", got)
	}
	if got[0] != ReasonRarity || got[1] != ReasonFirstTime {
		t.Errorf("reasons = %v, want [rarity first_time]", got)
	}

	plain := &event.Event{Tenant: "t1", Player: "p1", Kind: event.KindKill}
	if got := DetectSpecialCases(plain, 0); len(got) != 0 {
		t.Errorf("reasons = %v for a plain kill, want none", got)
	}
	if got := DetectSpecialCases(plain, 3); len(got) != 1 || got[0] != ReasonMemoryContext {
		t.Errorf("reasons = %v with 3 memories, want [memory_context]", got)
	}

	// Streaks encoded as signed counters still count by length.
	losing := &event.Event{
		Tenant: "t1", Player: "p1", Kind: event.KindDefeat,
		Payload: map[string]any{"loss_streak": -5},
	}
	if got := DetectSpecialCases(losing, 0); len(got) != 1 || got[0] != ReasonLossStreak {
		t.Errorf("reasons = %v for loss_streak -5, want [loss_streak]", got)
	}
}
