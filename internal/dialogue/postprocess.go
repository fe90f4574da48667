package dialogue

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/aikyo-ai/aikyo/internal/tenant"
)

// maxGlyphs is the hard length ceiling for a spoken line, counted in runes.
const maxGlyphs = 140

var (
	mdLink     = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdEmphasis = regexp.MustCompile("[*_`~#]+")
)

// Postprocess normalizes a generated line: markdown and wrapping quotes are
// stripped, whitespace is collapsed, and the result is clamped to
// [maxGlyphs] runes.
func Postprocess(s string) string {
	s = mdLink.ReplaceAllString(s, "$1")
	s = mdEmphasis.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'「」『』“”`)
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxGlyphs {
		runes = runes[:maxGlyphs]
		s = strings.TrimSpace(string(runes))
	}
	return s
}

// MatchesLanguage is the cheap script check applied to generated lines. It
// counts letters per script and accepts when the requested language's script
// dominates. Latin characters are tolerated in CJK text (game terms, "MVP")
// as long as the target script is present.
func MatchesLanguage(s string, lang tenant.Language) bool {
	var han, kana, hangul, latin, letters int
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		switch {
		case unicode.Is(unicode.Han, r):
			han++
		case unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
			kana++
		case unicode.Is(unicode.Hangul, r):
			hangul++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	if letters == 0 {
		// Pure punctuation or emoji; nothing to judge.
		return true
	}
	switch lang {
	case tenant.LanguageZH:
		// Japanese also uses Han; the presence of kana marks it as Japanese.
		return han > 0 && kana == 0
	case tenant.LanguageJA:
		return kana > 0
	case tenant.LanguageKO:
		return hangul > 0
	case tenant.LanguageEN:
		return latin > letters/2 && han == 0 && kana == 0 && hangul == 0
	}
	return true
}
