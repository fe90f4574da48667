package dialogue

import (
	"hash/fnv"
	"math/rand"
	"strconv"
	"strings"

	"github.com/aikyo-ai/aikyo/internal/emotion"
	"github.com/aikyo-ai/aikyo/internal/event"
	"github.com/aikyo-ai/aikyo/internal/tenant"
)

// Template is one authored line. Weight biases selection when several
// templates share a key; zero means weight 1.
type Template struct {
	Text   string
	Weight int
}

type key struct {
	kind     event.Kind
	emotion  emotion.Emotion
	persona  tenant.Persona
	language tenant.Language
}

type staticKey struct {
	kind     event.Kind
	language tenant.Language
}

// Library is an authored template collection with the fallback chain baked
// in: exact tuple, then persona=cheerful, then language=en, then the static
// per-kind neutral line.
type Library struct {
	templates map[key][]Template
	static    map[staticKey]string
}

// NewLibrary returns an empty library.
func NewLibrary() *Library {
	return &Library{
		templates: make(map[key][]Template),
		static:    make(map[staticKey]string),
	}
}

// Add registers templates under (kind, emotion, persona, language).
func (l *Library) Add(k event.Kind, e emotion.Emotion, p tenant.Persona, lang tenant.Language, texts ...string) {
	kk := key{k, e, p, lang}
	for _, t := range texts {
		l.templates[kk] = append(l.templates[kk], Template{Text: t})
	}
}

// AddStatic registers the per-kind neutral line, the bottom of the fallback
// chain.
func (l *Library) AddStatic(k event.Kind, lang tenant.Language, text string) {
	l.static[staticKey{k, lang}] = text
}

// Seed derives the deterministic selection seed from a response fingerprint.
func Seed(fingerprint string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(fingerprint))
	return h.Sum64()
}

// Pick selects and instantiates a line for the event. Selection is weighted
// random under the fingerprint seed, so identical requests pick identical
// lines. The fallback chain never comes back empty.
func (l *Library) Pick(ev *event.Event, emo emotion.Emotion, profile tenant.Profile, seed uint64) string {
	candidates, ok := l.lookup(ev.Kind, emo, profile)
	if !ok {
		return substitute(l.staticLine(ev.Kind, profile.Language), ev)
	}
	return substitute(choose(candidates, seed), ev)
}

// lookup walks the fallback chain: exact, persona=cheerful, language=en,
// cheerful+en.
func (l *Library) lookup(k event.Kind, emo emotion.Emotion, profile tenant.Profile) ([]Template, bool) {
	chain := []key{
		{k, emo, profile.Persona, profile.Language},
		{k, emo, tenant.DefaultPersona, profile.Language},
		{k, emo, profile.Persona, tenant.DefaultLanguage},
		{k, emo, tenant.DefaultPersona, tenant.DefaultLanguage},
	}
	for _, kk := range chain {
		if ts := l.templates[kk]; len(ts) > 0 {
			return ts, true
		}
	}
	return nil, false
}

// staticLine returns the per-kind neutral line, falling back to English and
// finally to a hardcoded shrug so the engine never produces an empty line.
func (l *Library) staticLine(k event.Kind, lang tenant.Language) string {
	if s, ok := l.static[staticKey{k, lang}]; ok {
		return s
	}
	if s, ok := l.static[staticKey{k, tenant.DefaultLanguage}]; ok {
		return s
	}
	return "Okay!"
}

// choose performs the seeded weighted pick. The rand source is local so
// concurrent picks do not interact.
func choose(ts []Template, seed uint64) string {
	if len(ts) == 1 {
		return ts[0].Text
	}
	total := 0
	for _, t := range ts {
		total += max(t.Weight, 1)
	}
	rng := rand.New(rand.NewSource(int64(seed)))
	n := rng.Intn(total)
	for _, t := range ts {
		n -= max(t.Weight, 1)
		if n < 0 {
			return t.Text
		}
	}
	return ts[len(ts)-1].Text
}

// substitute replaces {param} placeholders from the event's well-known keys.
// Unresolved placeholders are removed, along with any doubled-up whitespace
// they leave behind.
func substitute(text string, ev *event.Event) string {
	r := strings.NewReplacer(
		"{nickname}", ev.Nickname(),
		"{kill_count}", strconv.Itoa(ev.KillCount()),
		"{win_streak}", strconv.Itoa(ev.WinStreak()),
		"{loss_streak}", strconv.Itoa(ev.LossStreak()),
		"{rarity}", ev.Rarity(),
		"{difficulty}", ev.Difficulty(),
	)
	out := r.Replace(text)
	if strings.Contains(out, "{") {
		out = stripUnresolved(out)
	}
	return strings.Join(strings.Fields(out), " ")
}

func stripUnresolved(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
				continue
			}
			b.WriteRune(r)
		default:
			if depth == 0 {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}
