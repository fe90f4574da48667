package dialogue

import "github.com/aikyo-ai/aikyo/internal/event"

// Detector signal names, surfaced in Result.SpecialCaseReasons.
const (
	ReasonRarity        = "rarity"
	ReasonFirstTime     = "first_time"
	ReasonWinStreak     = "win_streak"
	ReasonLossStreak    = "loss_streak"
	ReasonMVP           = "mvp"
	ReasonBossDefeat    = "boss_defeat"
	ReasonDifficulty    = "difficulty"
	ReasonMemoryContext = "memory_context"
)

// streakThreshold is the streak length at which a run of wins or losses
// becomes remarkable.
const streakThreshold = 5

// memoryContextThreshold is how many relevant prior memories justify a
// personalized generated line.
const memoryContextThreshold = 3

// defaultDifficulties are difficulty labels that do not count as a signal.
var defaultDifficulties = map[string]bool{
	"": true, "normal": true, "default": true, "medium": true,
}

// DetectSpecialCases inspects the event for signals that justify the paid
// generative path. Each firing signal contributes one reason; the order is
// stable for a given event.
func DetectSpecialCases(ev *event.Event, memoryCount int) []string {
	var reasons []string
	switch ev.Rarity() {
	case "legendary", "epic":
		reasons = append(reasons, ReasonRarity)
	}
	if ev.FirstTime() {
		reasons = append(reasons, ReasonFirstTime)
	}
	if ev.WinStreak() >= streakThreshold {
		reasons = append(reasons, ReasonWinStreak)
	}
	if ev.LossStreak() >= streakThreshold {
		reasons = append(reasons, ReasonLossStreak)
	}
	if ev.MVP() {
		reasons = append(reasons, ReasonMVP)
	}
	if ev.Kind == event.KindCombatBossDefeated {
		reasons = append(reasons, ReasonBossDefeat)
	}
	if !defaultDifficulties[ev.Difficulty()] {
		reasons = append(reasons, ReasonDifficulty)
	}
	if memoryCount >= memoryContextThreshold {
		reasons = append(reasons, ReasonMemoryContext)
	}
	return reasons
}
