package tenant

// Persona is the authoring style used to pick dialogue templates and shape
// generative prompts.
type Persona string

const (
	PersonaCheerful Persona = "cheerful"
	PersonaCool     Persona = "cool"
	PersonaCute     Persona = "cute"
)

// DefaultPersona is used when a request does not carry a persona.
const DefaultPersona = PersonaCheerful

// IsValid reports whether p is a supported persona.
func (p Persona) IsValid() bool {
	switch p {
	case PersonaCheerful, PersonaCool, PersonaCute:
		return true
	}
	return false
}

// Language is a supported response language.
type Language string

const (
	LanguageZH Language = "zh"
	LanguageEN Language = "en"
	LanguageJA Language = "ja"
	LanguageKO Language = "ko"
)

// DefaultLanguage is used when a request does not carry a language.
const DefaultLanguage = LanguageEN

// IsValid reports whether l is a supported language.
func (l Language) IsValid() bool {
	switch l {
	case LanguageZH, LanguageEN, LanguageJA, LanguageKO:
		return true
	}
	return false
}

// Profile is the per-request player profile after defaulting. Unknown or
// missing persona/language values fall back to the defaults rather than
// failing the request.
type Profile struct {
	Persona  Persona
	Language Language
}

// ResolveProfile normalizes raw persona/language strings from a request into
// a valid [Profile], applying the tenant's language whitelist. A
// whitelisted-out language falls back to the first whitelisted language.
func ResolveProfile(t *Tenant, persona, language string) Profile {
	p := Persona(persona)
	if !p.IsValid() {
		p = DefaultPersona
	}
	l := Language(language)
	if !l.IsValid() {
		l = DefaultLanguage
	}
	if t != nil && !t.AllowsLanguage(l) {
		l = DefaultLanguage
		if !t.AllowsLanguage(l) && len(t.Languages) > 0 {
			l = Language(t.Languages[0])
		}
	}
	return Profile{Persona: p, Language: l}
}
