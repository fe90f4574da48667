// Package dialogue implements the hybrid dialogue engine.
//
// The default path selects an authored template keyed by (kind, emotion,
// persona, language), picked deterministically under the request fingerprint
// so identical requests yield identical lines. The paid generative path runs
// only when the special-case detector fires and the budget governor admits;
// its output is clamped, stripped of markdown, and checked against the
// requested language's script, reverting to the template on mismatch.
package dialogue

import (
	"context"
	"log/slog"
	"time"

	"github.com/aikyo-ai/aikyo/internal/budget"
	"github.com/aikyo-ai/aikyo/internal/emotion"
	"github.com/aikyo-ai/aikyo/internal/event"
	"github.com/aikyo-ai/aikyo/internal/tenant"
	"github.com/aikyo-ai/aikyo/pkg/provider/llm"
)

// Method records which path produced a [Result].
type Method string

const (
	// MethodTemplate marks a line from the authored template library. Zero cost.
	MethodTemplate Method = "template"

	// MethodGenerative marks a paid generated line.
	MethodGenerative Method = "generative"

	// MethodCached marks a line served verbatim from the response cache.
	MethodCached Method = "cached"
)

// FallbackLanguageMismatch is recorded when a generated line failed the
// script check and the engine reverted to the template path.
const FallbackLanguageMismatch = "language_mismatch"

// Result is the dialogue engine's output for one event.
type Result struct {
	// Text is the companion's line.
	Text string `json:"text"`

	// Language the line was produced in.
	Language tenant.Language `json:"language"`

	// Persona the line was voiced as.
	Persona tenant.Persona `json:"persona"`

	// Method is the path that produced the line.
	Method Method `json:"method"`

	// UsedSpecialCase reports whether the detector fired.
	UsedSpecialCase bool `json:"used_special_case"`

	// SpecialCaseReasons lists the detector signals, if any.
	SpecialCaseReasons []string `json:"special_case_reasons,omitempty"`

	// MemoryCount is how many memory summaries conditioned the line.
	MemoryCount int `json:"memory_count"`

	// FallbackReason notes why a paid line was discarded, if it was.
	FallbackReason string `json:"fallback_reason,omitempty"`

	// LatencyMS is the wall-clock generation time in milliseconds.
	LatencyMS int64 `json:"latency_ms"`

	// CostUSD is the paid cost attributed to this line. Zero for template and
	// cached results.
	CostUSD float64 `json:"cost_usd"`

	// AttemptCostUSD is the total paid spend for this request, including a
	// generative attempt that was discarded by post-processing. The budget
	// ledger always carries this amount; CostUSD only carries it when the
	// generated line survived. Not part of the wire result.
	AttemptCostUSD float64 `json:"-"`
}

// Request carries everything the engine needs for one line.
type Request struct {
	// Event is the validated inbound event.
	Event *event.Event

	// Emotion is the emotion engine's verdict for the event.
	Emotion *emotion.Result

	// Profile is the resolved persona and language.
	Profile tenant.Profile

	// Memories holds up to a handful of memory summaries, most relevant first.
	Memories []string

	// Fingerprint is the response fingerprint; it seeds template selection.
	Fingerprint string

	// ForceGenerative requests the paid path regardless of the detector,
	// still subject to tenant flags and the budget governor.
	ForceGenerative bool
}

// Engine is the hybrid dialogue engine. The generative provider may be nil,
// which pins the engine to the template path.
//
// Engine is safe for concurrent use.
type Engine struct {
	library   *Library
	generator llm.Provider
	governor  *budget.Governor
	log       *slog.Logger
	now       func() time.Time
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

// WithLibrary replaces the built-in template library.
func WithLibrary(lib *Library) Option {
	return func(e *Engine) { e.library = lib }
}

// New creates a dialogue engine. generator may be nil for a template-only
// deployment; governor must not be nil when generator is set.
func New(generator llm.Provider, governor *budget.Governor, opts ...Option) *Engine {
	e := &Engine{
		library:   DefaultLibrary(),
		generator: generator,
		governor:  governor,
		log:       slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Generate produces the companion's line for one event. It never fails: the
// template fallback chain bottoms out at a static per-kind line, and every
// generative problem (denial, provider error, post-check failure) reverts to
// the template verdict.
func (e *Engine) Generate(ctx context.Context, t *tenant.Tenant, req Request) *Result {
	start := e.now()
	reasons := DetectSpecialCases(req.Event, len(req.Memories))

	line := e.library.Pick(req.Event, req.Emotion.Emotion, req.Profile, Seed(req.Fingerprint))
	res := &Result{
		Text:               line,
		Language:           req.Profile.Language,
		Persona:            req.Profile.Persona,
		Method:             MethodTemplate,
		UsedSpecialCase:    len(reasons) > 0,
		SpecialCaseReasons: reasons,
		MemoryCount:        len(req.Memories),
	}

	if e.wantGenerative(t, reasons, req.ForceGenerative) {
		e.tryGenerative(ctx, t, req, reasons, res)
	}

	res.LatencyMS = e.now().Sub(start).Milliseconds()
	return res
}

// wantGenerative applies the cheap-path-first gate: the paid path needs the
// detector (or an explicit force), a configured provider, and a tenant that
// has not switched generation off.
func (e *Engine) wantGenerative(t *tenant.Tenant, reasons []string, force bool) bool {
	if e.generator == nil || e.governor == nil {
		return false
	}
	if t.ForceGenerativeOff {
		return false
	}
	return force || len(reasons) > 0
}

// tryGenerative runs the paid path and mutates res in place on success. Any
// failure leaves the template verdict untouched apart from bookkeeping.
func (e *Engine) tryGenerative(ctx context.Context, t *tenant.Tenant, req Request, reasons []string, res *Result) {
	highValue := len(reasons) >= 2
	reservation, err := e.governor.Admit(ctx, t, budget.ComponentGenerative, highValue)
	if err != nil || reservation == nil {
		return
	}

	resp, err := e.generator.Complete(ctx, buildPrompt(req))
	if err != nil || resp == nil {
		reservation.Release(ctx)
		e.log.Debug("dialogue: generative call failed, keeping template",
			"tenant", t.ID, "kind", string(req.Event.Kind), "error", err)
		return
	}
	if err := reservation.Commit(ctx, resp.CostUSD); err != nil {
		e.log.Warn("dialogue: budget commit failed", "tenant", t.ID, "error", err)
	}
	res.AttemptCostUSD = resp.CostUSD

	text := Postprocess(resp.Content)
	if text == "" {
		res.FallbackReason = "empty_generation"
		return
	}
	if !MatchesLanguage(text, req.Profile.Language) {
		// The spend stands in the ledger; the verdict reverts to the free line.
		res.FallbackReason = FallbackLanguageMismatch
		e.log.Debug("dialogue: generated line failed language check",
			"tenant", t.ID, "language", string(req.Profile.Language))
		return
	}

	res.Text = text
	res.Method = MethodGenerative
	res.CostUSD = resp.CostUSD
}
