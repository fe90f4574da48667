package dialogue

import (
	"fmt"
	"strings"

	"github.com/aikyo-ai/aikyo/internal/tenant"
	"github.com/aikyo-ai/aikyo/pkg/provider/llm"
)

// maxPromptMemories caps how many memory summaries condition the prompt.
const maxPromptMemories = 3

// personaVoices describe each persona for the system prompt.
var personaVoices = map[tenant.Persona]string{
	tenant.PersonaCheerful: "You are a warm, enthusiastic companion who celebrates every success and softens every setback.",
	tenant.PersonaCool:     "You are a calm, understated companion. Dry, confident, never gushing.",
	tenant.PersonaCute:     "You are an adorable, bubbly companion. Playful exclamations, lots of heart.",
}

// languageDirectives tell the model which language to answer in.
var languageDirectives = map[tenant.Language]string{
	tenant.LanguageZH: "Respond in Simplified Chinese.",
	tenant.LanguageEN: "Respond in English.",
	tenant.LanguageJA: "Respond in Japanese.",
	tenant.LanguageKO: "Respond in Korean.",
}

// buildPrompt assembles the generative request: persona voice, language
// directive, a few memory summaries, the emotion verdict, and the normalized
// event description.
func buildPrompt(req Request) llm.CompletionRequest {
	var sys strings.Builder
	sys.WriteString(personaVoices[req.Profile.Persona])
	sys.WriteString(" You react to in-game events with a single short line of spoken dialogue. ")
	sys.WriteString(languageDirectives[req.Profile.Language])
	sys.WriteString(" Maximum 140 characters. No markdown, no quotes, no stage directions.")

	var user strings.Builder
	fmt.Fprintf(&user, "Event: %s\n", req.Event.Describe())
	fmt.Fprintf(&user, "Your current emotion: %s (intensity %.1f)\n",
		req.Emotion.Emotion, req.Emotion.Intensity)
	if nick := req.Event.Nickname(); nick != "" {
		fmt.Fprintf(&user, "The player's name: %s\n", nick)
	}
	if n := len(req.Memories); n > 0 {
		user.WriteString("Things you remember about this player:\n")
		if n > maxPromptMemories {
			n = maxPromptMemories
		}
		for _, m := range req.Memories[:n] {
			fmt.Fprintf(&user, "- %s\n", m)
		}
	}
	user.WriteString("React now.")

	return llm.CompletionRequest{
		SystemPrompt: sys.String(),
		Messages: []llm.Message{
			{Role: "user", Content: user.String()},
		},
		Temperature: 0.8,
		MaxTokens:   120,
	}
}
