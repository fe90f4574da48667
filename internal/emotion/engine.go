package emotion

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aikyo-ai/aikyo/internal/budget"
	"github.com/aikyo-ai/aikyo/internal/event"
	"github.com/aikyo-ai/aikyo/internal/tenant"
	"github.com/aikyo-ai/aikyo/pkg/provider/llm"
)

// classifierSystemPrompt constrains the model to the closed set and a
// machine-parseable reply shape.
const classifierSystemPrompt = `You classify a game companion's emotional reaction to an in-game event.
Reply with exactly two tokens: an emotion and an intensity between 0.0 and 1.0.
The emotion must be one of: happy, excited, proud, amazed, grateful, relieved,
determined, curious, neutral, worried, sad, frustrated, angry, sympathetic.
Example reply: excited 0.8`

// classifierConfidence is the confidence assigned to an in-set classifier
// verdict. Out-of-set replies are coerced to neutral at [outOfSetConfidence].
const (
	classifierConfidence = 0.8
	outOfSetConfidence   = 0.5
)

// Engine is the two-pass emotion engine. The classifier provider may be nil,
// which pins the engine to the rule pass.
//
// Engine is safe for concurrent use.
type Engine struct {
	classifier llm.Provider
	governor   *budget.Governor
	log        *slog.Logger
	now        func() time.Time
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

// New creates an emotion engine. classifier may be nil for a rule-only
// deployment; governor must not be nil when classifier is set.
func New(classifier llm.Provider, governor *budget.Governor, opts ...Option) *Engine {
	e := &Engine{
		classifier: classifier,
		governor:   governor,
		log:        slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyze produces the emotion verdict for one event. It never fails: on rule
// abstention the classifier is consulted if the budget admits, and every
// classifier problem (denial, provider error, unparseable reply) degrades to
// the neutral abstention fallback.
//
// forcePaid sends the event to the classifier even on a rule hit, for tenants
// that validate their rule table against the model.
func (e *Engine) Analyze(ctx context.Context, t *tenant.Tenant, ev *event.Event, contextSummary string, forcePaid bool) *Result {
	start := e.now()
	finish := func(r *Result) *Result {
		r.LatencyMS = e.now().Sub(start).Milliseconds()
		return r
	}

	ruleResult, hit := evalRules(ev)
	if hit && !forcePaid {
		return finish(ruleResult)
	}

	// Rule abstention (or forced validation): try the paid pass. The cheap
	// fallback is the rule verdict when one exists, else neutral abstention.
	fallback := ruleResult
	if fallback == nil {
		fallback = abstained()
	}
	if e.classifier == nil || e.governor == nil {
		return finish(fallback)
	}

	// A classifier call on rule abstention is high-value: it is the only way
	// to produce a real verdict for this event.
	res, err := e.governor.Admit(ctx, t, budget.ComponentClassifier, !hit)
	if err != nil || res == nil {
		return finish(fallback)
	}

	verdict, cost, err := e.classify(ctx, ev, contextSummary)
	if err != nil {
		res.Release(ctx)
		e.log.Debug("emotion: classifier failed, using fallback",
			"tenant", t.ID, "kind", string(ev.Kind), "error", err)
		return finish(fallback)
	}
	if err := res.Commit(ctx, cost); err != nil {
		e.log.Warn("emotion: budget commit failed",
			"tenant", t.ID, "error", err)
	}
	verdict.CostUSD = cost
	return finish(verdict)
}

// classify runs the paid pass and parses the reply into the closed set.
func (e *Engine) classify(ctx context.Context, ev *event.Event, contextSummary string) (*Result, float64, error) {
	var prompt strings.Builder
	prompt.WriteString("Event: ")
	prompt.WriteString(ev.Describe())
	if contextSummary != "" {
		prompt.WriteString("\nRecent context: ")
		prompt.WriteString(contextSummary)
	}

	resp, err := e.classifier.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: classifierSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: prompt.String()},
		},
		Temperature: 0.0,
		MaxTokens:   16,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("emotion: classify: %w", err)
	}
	if resp == nil {
		return nil, 0, fmt.Errorf("emotion: classify: empty response")
	}

	emo, intensity, inSet := parseVerdict(resp.Content)
	confidence := classifierConfidence
	if !inSet {
		confidence = outOfSetConfidence
	}
	return &Result{
		Emotion:    emo,
		Intensity:  intensity,
		Confidence: confidence,
		Action:     ActionFor(emo, intensity),
		Method:     MethodClassifier,
		Reasoning:  "classifier:" + strings.TrimSpace(resp.Content),
	}, resp.CostUSD, nil
}

// parseVerdict extracts "<emotion> <intensity>" from a classifier reply.
// Out-of-set emotions map to neutral. A missing or malformed intensity
// defaults to 0.5. The intensity is clamped to [0, 1].
func parseVerdict(content string) (Emotion, float64, bool) {
	fields := strings.Fields(strings.ToLower(content))
	if len(fields) == 0 {
		return Neutral, 0.3, false
	}
	emo, inSet := Parse(strings.Trim(fields[0], ".,:;"))
	if !inSet {
		emo = Neutral
	}
	intensity := 0.5
	if len(fields) > 1 {
		if f, err := strconv.ParseFloat(strings.Trim(fields[1], ".,:;"), 64); err == nil {
			intensity = f
		}
	}
	if intensity < 0 {
		intensity = 0
	} else if intensity > 1 {
		intensity = 1
	}
	return emo, intensity, inSet
}
