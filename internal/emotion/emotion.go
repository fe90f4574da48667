// Package emotion implements the two-pass emotion engine.
//
// Pass one is a deterministic rule table keyed by event kind and numeric
// payload predicates; a rule hit costs nothing and resolves in microseconds.
// Pass two, taken only on rule abstention (or when a tenant opts into rule
// validation), asks an external classifier for a verdict, gated by the budget
// governor. Classifier output is forced into the closed emotion set; anything
// unrecognised maps to neutral with confidence clamped to ≤ 0.5.
package emotion

import "strings"

// Emotion is one value of the closed emotion set consumed by avatars and the
// dialogue engine.
type Emotion string

const (
	Happy       Emotion = "happy"
	Excited     Emotion = "excited"
	Proud       Emotion = "proud"
	Amazed      Emotion = "amazed"
	Grateful    Emotion = "grateful"
	Relieved    Emotion = "relieved"
	Determined  Emotion = "determined"
	Curious     Emotion = "curious"
	Neutral     Emotion = "neutral"
	Worried     Emotion = "worried"
	Sad         Emotion = "sad"
	Frustrated  Emotion = "frustrated"
	Angry       Emotion = "angry"
	Sympathetic Emotion = "sympathetic"
)

// emotions is the closed set. Classifier output not found here is coerced to
// [Neutral].
var emotions = map[Emotion]bool{
	Happy:       true,
	Excited:     true,
	Proud:       true,
	Amazed:      true,
	Grateful:    true,
	Relieved:    true,
	Determined:  true,
	Curious:     true,
	Neutral:     true,
	Worried:     true,
	Sad:         true,
	Frustrated:  true,
	Angry:       true,
	Sympathetic: true,
}

// IsValid reports whether e is a member of the closed emotion set.
func (e Emotion) IsValid() bool { return emotions[e] }

// Parse normalizes s (case, surrounding whitespace) and reports whether it
// names a known emotion.
func Parse(s string) (Emotion, bool) {
	e := Emotion(strings.ToLower(strings.TrimSpace(s)))
	return e, emotions[e]
}

// Method records which pass produced a [Result].
type Method string

const (
	// MethodRule marks a deterministic rule-table hit (or the abstention
	// fallback). Always zero cost.
	MethodRule Method = "rule"

	// MethodClassifier marks a paid classifier verdict.
	MethodClassifier Method = "classifier"

	// MethodCached marks a result served verbatim from the response cache.
	MethodCached Method = "cached"
)

// Result is the emotion engine's verdict for one event.
type Result struct {
	// Emotion is a member of the closed set.
	Emotion Emotion `json:"type"`

	// Intensity is how strongly the companion feels it, in [0, 1].
	Intensity float64 `json:"intensity"`

	// Confidence is the engine's certainty in the verdict, in [0, 1].
	Confidence float64 `json:"confidence"`

	// Action is the symbolic avatar cue derived from (emotion, intensity band).
	Action string `json:"action"`

	// Method is the pass that produced the verdict.
	Method Method `json:"method"`

	// Reasoning is a terse human-readable trace (rule name or classifier note).
	Reasoning string `json:"reasoning,omitempty"`

	// LatencyMS is the wall-clock analysis time in milliseconds.
	LatencyMS int64 `json:"latency_ms"`

	// CostUSD is the paid cost of the verdict. Zero for rule and cached results.
	CostUSD float64 `json:"cost_usd"`
}

// actionTable maps each emotion to its avatar cue per intensity band:
// low < 0.4 ≤ mid < 0.7 ≤ high.
var actionTable = map[Emotion][3]string{
	Happy:       {"nod", "smile", "cheer"},
	Excited:     {"smile", "cheer", "celebrate"},
	Proud:       {"nod", "smile", "celebrate"},
	Amazed:      {"smile", "gasp", "gasp"},
	Grateful:    {"nod", "smile", "bow"},
	Relieved:    {"nod", "sigh", "sigh"},
	Determined:  {"nod", "fistpump", "fistpump"},
	Curious:     {"tilt", "tilt", "lean_in"},
	Neutral:     {"idle", "idle", "idle"},
	Worried:     {"frown", "fidget", "gasp"},
	Sad:         {"frown", "sulk", "sulk"},
	Frustrated:  {"frown", "sulk", "stomp"},
	Angry:       {"frown", "stomp", "stomp"},
	Sympathetic: {"nod", "comfort", "comfort"},
}

// ActionFor returns the avatar action cue for an emotion at a given intensity.
// Unknown emotions fall back to "idle".
func ActionFor(e Emotion, intensity float64) string {
	bands, ok := actionTable[e]
	if !ok {
		return "idle"
	}
	switch {
	case intensity >= 0.7:
		return bands[2]
	case intensity >= 0.4:
		return bands[1]
	default:
		return bands[0]
	}
}
