package emotion

import (
	"github.com/aikyo-ai/aikyo/internal/event"
)

// rule is one row of the deterministic first pass. Rows are evaluated in
// order, first match wins, so the table must be kept sorted most-specific
// to least-specific within each kind.
type rule struct {
	// name labels the rule in Result.Reasoning and in logs.
	name string

	// match reports whether the rule fires for the event.
	match func(e *event.Event) bool

	emotion    Emotion
	intensity  float64
	confidence float64
}

// abstained is the fallback verdict when no rule fires and the classifier is
// unavailable, denied, or fails.
func abstained() *Result {
	return &Result{
		Emotion:    Neutral,
		Intensity:  0.3,
		Confidence: 0.3,
		Action:     "idle",
		Method:     MethodRule,
		Reasoning:  "rule abstention",
	}
}

func kindIs(k event.Kind) func(*event.Event) bool {
	return func(e *event.Event) bool { return e.Kind == k }
}

func legendaryOrEpic(e *event.Event) bool {
	r := e.Rarity()
	return r == "legendary" || r == "epic"
}

// ruleTable is the ordered first pass.
var ruleTable = []rule{
	// victory
	{
		name: "victory_mvp_streak",
		match: func(e *event.Event) bool {
			return e.Kind == event.KindVictory && e.MVP() && e.WinStreak() >= 5
		},
		emotion: Excited, intensity: 0.9, confidence: 0.95,
	},
	{
		name: "victory_streak",
		match: func(e *event.Event) bool {
			return e.Kind == event.KindVictory && e.WinStreak() >= 5
		},
		emotion: Excited, intensity: 0.85, confidence: 0.9,
	},
	{
		name: "victory_mvp",
		match: func(e *event.Event) bool {
			return e.Kind == event.KindVictory && e.MVP()
		},
		emotion: Proud, intensity: 0.8, confidence: 0.9,
	},
	{
		name:    "victory",
		match:   kindIs(event.KindVictory),
		emotion: Happy, intensity: 0.7, confidence: 0.85,
	},

	// boss defeats
	{
		name: "boss_legendary",
		match: func(e *event.Event) bool {
			return e.Kind == event.KindCombatBossDefeated && e.IsLegendary()
		},
		emotion: Amazed, intensity: 0.95, confidence: 0.95,
	},
	{
		name:    "boss_defeated",
		match:   kindIs(event.KindCombatBossDefeated),
		emotion: Excited, intensity: 0.85, confidence: 0.9,
	},

	// defeat
	{
		name: "defeat_streak",
		match: func(e *event.Event) bool {
			return e.Kind == event.KindDefeat && e.LossStreak() >= 5
		},
		emotion: Frustrated, intensity: 0.7, confidence: 0.85,
	},
	{
		name:    "defeat",
		match:   kindIs(event.KindDefeat),
		emotion: Sad, intensity: 0.5, confidence: 0.8,
	},

	// kills and deaths
	{
		name: "kill_spree",
		match: func(e *event.Event) bool {
			return e.Kind == event.KindKill && e.KillCount() >= 10
		},
		emotion: Excited, intensity: 0.8, confidence: 0.85,
	},
	{
		name:    "kill",
		match:   kindIs(event.KindKill),
		emotion: Happy, intensity: 0.5, confidence: 0.75,
	},
	{
		name:    "death",
		match:   kindIs(event.KindDeath),
		emotion: Sympathetic, intensity: 0.6, confidence: 0.8,
	},

	// achievements and loot
	{
		name: "achievement_rare",
		match: func(e *event.Event) bool {
			return e.Kind == event.KindAchievement && legendaryOrEpic(e)
		},
		emotion: Amazed, intensity: 0.9, confidence: 0.9,
	},
	{
		name: "achievement_first",
		match: func(e *event.Event) bool {
			return e.Kind == event.KindAchievement && e.FirstTime()
		},
		emotion: Proud, intensity: 0.8, confidence: 0.9,
	},
	{
		name:    "achievement",
		match:   kindIs(event.KindAchievement),
		emotion: Proud, intensity: 0.7, confidence: 0.85,
	},
	{
		name:    "level_up",
		match:   kindIs(event.KindLevelUp),
		emotion: Proud, intensity: 0.7, confidence: 0.85,
	},
	{
		name: "loot_rare",
		match: func(e *event.Event) bool {
			return e.Kind == event.KindLoot && legendaryOrEpic(e)
		},
		emotion: Amazed, intensity: 0.85, confidence: 0.9,
	},
	{
		name: "loot_common",
		match: func(e *event.Event) bool {
			return e.Kind == event.KindLoot && e.Rarity() == "common"
		},
		emotion: Curious, intensity: 0.4, confidence: 0.75,
	},
	// Plain loot with an unknown rarity abstains so the classifier can judge
	// how noteworthy the drop is.

	// session and combat framing
	{
		name:    "session_start",
		match:   kindIs(event.KindSessionStart),
		emotion: Happy, intensity: 0.6, confidence: 0.85,
	},
	{
		name:    "session_end",
		match:   kindIs(event.KindSessionEnd),
		emotion: Relieved, intensity: 0.4, confidence: 0.8,
	},
	{
		name: "combat_start_hurt",
		match: func(e *event.Event) bool {
			if e.Kind != event.KindCombatStart {
				return false
			}
			hp, ok := e.Int(event.KeyPlayerHealth)
			return ok && hp < 30
		},
		emotion: Worried, intensity: 0.7, confidence: 0.85,
	},
	{
		name:    "combat_start",
		match:   kindIs(event.KindCombatStart),
		emotion: Determined, intensity: 0.6, confidence: 0.8,
	},
}

// evalRules runs the ordered table and returns the first matching verdict,
// or (nil, false) on abstention.
func evalRules(e *event.Event) (*Result, bool) {
	for _, r := range ruleTable {
		if r.match(e) {
			return &Result{
				Emotion:    r.emotion,
				Intensity:  r.intensity,
				Confidence: r.confidence,
				Action:     ActionFor(r.emotion, r.intensity),
				Method:     MethodRule,
				Reasoning:  "rule:" + r.name,
			}, true
		}
	}
	return nil, false
}
