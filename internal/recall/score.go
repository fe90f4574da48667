package recall

import (
	"github.com/aikyo-ai/aikyo/internal/emotion"
	"github.com/aikyo-ai/aikyo/internal/event"
	"github.com/aikyo-ai/aikyo/pkg/memory"
)

// importance scoring bonuses, applied on top of the 0.5 base.
const (
	scoreBase         = 0.5
	bonusNotableKind  = 0.2
	bonusHighEmotion  = 0.15
	bonusRareItem     = 0.15
	bonusLegendaryMVP = 0.10
	bonusLongStreak   = 0.10
)

// highEmotions are the emotions that raise a memory's importance.
var highEmotions = map[emotion.Emotion]bool{
	emotion.Amazed:     true,
	emotion.Excited:    true,
	emotion.Angry:      true,
	emotion.Frustrated: true,
	emotion.Grateful:   true,
}

// ScoreImportance computes a memory's retention score at append time.
// The result is clamped to [0, 1].
func ScoreImportance(ev *event.Event, emo emotion.Emotion, kind memory.Kind) float64 {
	s := scoreBase
	if kind.Notable() {
		s += bonusNotableKind
	}
	if highEmotions[emo] {
		s += bonusHighEmotion
	}
	switch ev.Rarity() {
	case "legendary", "epic":
		s += bonusRareItem
	}
	if ev.MVP() || ev.IsLegendary() {
		s += bonusLegendaryMVP
	}
	if ev.WinStreak() >= 5 || ev.LossStreak() >= 5 {
		s += bonusLongStreak
	}
	if s > 1 {
		s = 1
	}
	if s < 0 {
		s = 0
	}
	return s
}
