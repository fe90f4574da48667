// Package event defines the inbound game event model: the closed kind
// enumeration, the free-form payload/context maps with typed accessors for
// their well-known keys, and the response fingerprint that identifies a
// request for caching purposes.
package event

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the closed enumeration of game event kinds the pipeline accepts.
// On the wire a kind may carry a "player." prefix (e.g. "player.victory");
// [ParseKind] strips it. The bare form is canonical everywhere else.
type Kind string

const (
	KindVictory           Kind = "victory"
	KindDefeat            Kind = "defeat"
	KindKill              Kind = "kill"
	KindDeath             Kind = "death"
	KindAchievement       Kind = "achievement"
	KindLevelUp           Kind = "level_up"
	KindLoot              Kind = "loot"
	KindSessionStart      Kind = "session_start"
	KindSessionEnd        Kind = "session_end"
	KindCombatStart       Kind = "combat_start"
	KindCombatBossDefeated Kind = "combat_boss_defeated"
)

// kinds is the authoritative set used for validation.
var kinds = map[Kind]bool{
	KindVictory:            true,
	KindDefeat:             true,
	KindKill:               true,
	KindDeath:              true,
	KindAchievement:        true,
	KindLevelUp:            true,
	KindLoot:               true,
	KindSessionStart:       true,
	KindSessionEnd:         true,
	KindCombatStart:        true,
	KindCombatBossDefeated: true,
}

// WirePrefix is the optional namespace prefix accepted on inbound kinds.
const WirePrefix = "player."

// ParseKind normalizes a wire kind string into a [Kind]. The "player."
// prefix is accepted and stripped. An unrecognized kind returns an error.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.TrimPrefix(strings.TrimSpace(s), WirePrefix))
	if !kinds[k] {
		return "", fmt.Errorf("event: unknown kind %q", s)
	}
	return k, nil
}

// IsValid reports whether k is a member of the closed kind set.
func (k Kind) IsValid() bool { return kinds[k] }

// Well-known payload/context keys. Rule predicates and importance scoring
// read only these keys; everything else in the maps is opaque extension data.
const (
	KeyKillCount    = "kill_count"
	KeyIsLegendary  = "is_legendary"
	KeyMVP          = "mvp"
	KeyWinStreak    = "win_streak"
	KeyLossStreak   = "loss_streak"
	KeyPlayerHealth = "player_health"
	KeyInCombat     = "in_combat"
	KeyDifficulty   = "difficulty"
	KeyRarity       = "rarity"
	KeyFirstTime    = "first_time"
	KeyNickname     = "nickname"
)

// Event is a single inbound game event after wire decoding. Tenant and Game
// are resolved from the authenticated request, not trusted from the body.
type Event struct {
	// Tenant is the authenticated tenant id.
	Tenant string

	// Game identifies the game title within the tenant. May be empty for
	// single-game tenants.
	Game string

	// Player is the stable player id, scoped to tenant+game.
	Player string

	// Kind is the canonical (bare) event kind.
	Kind Kind

	// Payload holds event-specific values (kill_count, mvp, win_streak, …).
	Payload map[string]any

	// Context holds ambient game state (player_health, in_combat, rarity, …).
	Context map[string]any

	// ClientSeq is the client-assigned sequence number, echoed back in push
	// messages as event_ref. Zero when the client did not set one.
	ClientSeq int64

	// ReceivedAt is when the platform accepted the event.
	ReceivedAt time.Time
}

// Validate checks the event shape. It returns a joined error listing every
// violation so callers can surface all problems at once.
func (e *Event) Validate() error {
	var errs []error
	if e.Tenant == "" {
		errs = append(errs, errors.New("tenant id is required"))
	}
	if e.Player == "" {
		errs = append(errs, errors.New("player id is required"))
	}
	if !e.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("unknown kind %q", e.Kind))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("event: invalid event: %w", err)
	}
	return nil
}

// lookup returns the value for key from Payload first, then Context.
func (e *Event) lookup(key string) (any, bool) {
	if v, ok := e.Payload[key]; ok {
		return v, true
	}
	v, ok := e.Context[key]
	return v, ok
}

// Int returns the numeric value for key as an int. JSON decoding produces
// float64 for numbers, so both int and float64 representations are accepted.
// Returns (0, false) when the key is absent or non-numeric.
func (e *Event) Int(key string) (int, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// Bool returns the boolean value for key.
// Returns (false, false) when the key is absent or not a bool.
func (e *Event) Bool(key string) (bool, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Str returns the string value for key.
// Returns ("", false) when the key is absent or not a string.
func (e *Event) Str(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// KillCount returns payload.kill_count, or 0 when absent.
func (e *Event) KillCount() int { n, _ := e.Int(KeyKillCount); return n }

// MVP reports whether the mvp flag is set.
func (e *Event) MVP() bool { b, _ := e.Bool(KeyMVP); return b }

// IsLegendary reports whether the is_legendary flag is set.
func (e *Event) IsLegendary() bool { b, _ := e.Bool(KeyIsLegendary); return b }

// WinStreak returns the length of the current win streak, or 0 when absent.
// Some clients encode streaks as signed running counters, so the magnitude
// is returned.
func (e *Event) WinStreak() int { n, _ := e.Int(KeyWinStreak); return abs(n) }

// LossStreak returns the length of the current loss streak, or 0 when
// absent. Magnitude, as with [Event.WinStreak].
func (e *Event) LossStreak() int { n, _ := e.Int(KeyLossStreak); return abs(n) }

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Rarity returns the item/achievement rarity (lowercased), or "".
func (e *Event) Rarity() string {
	s, _ := e.Str(KeyRarity)
	return strings.ToLower(s)
}

// FirstTime reports whether the first_time flag is set.
func (e *Event) FirstTime() bool { b, _ := e.Bool(KeyFirstTime); return b }

// Difficulty returns the difficulty label (lowercased), or "".
func (e *Event) Difficulty() string {
	s, _ := e.Str(KeyDifficulty)
	return strings.ToLower(s)
}

// Nickname returns the player's display name from the payload, or "".
func (e *Event) Nickname() string { s, _ := e.Str(KeyNickname); return s }

// Describe renders a short textual description of the event, used as the
// semantic query text for memory retrieval and as the content seed for
// appended memories.
func (e *Event) Describe() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if n := e.KillCount(); n > 0 {
		fmt.Fprintf(&b, ", %d kills", n)
	}
	if e.MVP() {
		b.WriteString(", mvp")
	}
	if n := e.WinStreak(); n > 0 {
		fmt.Fprintf(&b, ", win streak %d", n)
	}
	if n := e.LossStreak(); n > 0 {
		fmt.Fprintf(&b, ", loss streak %d", n)
	}
	if r := e.Rarity(); r != "" {
		b.WriteString(", ")
		b.WriteString(r)
	}
	if e.FirstTime() {
		b.WriteString(", first time")
	}
	if d := e.Difficulty(); d != "" {
		b.WriteString(", difficulty ")
		b.WriteString(d)
	}
	return b.String()
}
