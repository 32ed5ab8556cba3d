package journal

import (
	"strings"

	apperrors "github.com/hrygo/saga/internal/errors"
)

// PromptType selects the voice of a generated writing prompt.
type PromptType string

const (
	PromptTypeDaily      PromptType = "daily"
	PromptTypeReflective PromptType = "reflective"
	PromptTypeCreative   PromptType = "creative"
	PromptTypeGeneric    PromptType = "generic"
)

// ParsePromptType maps a request value to a PromptType. "journal" is the legacy
// name of reflective; anything unrecognised, "freeform" included, is generic.
func ParsePromptType(s string) PromptType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily":
		return PromptTypeDaily
	case "reflective", "journal":
		return PromptTypeReflective
	case "creative":
		return PromptTypeCreative
	default:
		return PromptTypeGeneric
	}
}

const (
	contextualUserMessage = "Based on the following recent entries, generate a new writing prompt."
	bareUserMessage       = "Generate a writing prompt."
)

var systemMessages = map[PromptType]string{
	PromptTypeDaily: `You write journal prompts about the writer's feelings, moods and energy today.
Use the recent entries, when given, to find a theme worth asking about, but never quote or name them.
Keep the prompt simple, positive and easy to answer.
Answer with one clear question of at most two sentences, focused on the present or the near past or future.`,

	PromptTypeReflective: `You write reflective journal prompts that invite self-discovery.
Look for recurring themes in the recent entries and build the prompt on them. Without entries, write a general reflective prompt.
Ask about emotions, formative experiences or personal values. Avoid factual questions, routines and fiction.
Answer with one open-ended question or instruction of at most two sentences, in an empathetic tone.`,

	PromptTypeCreative: `You are a creative writing coach.
Tell the writer in one precise clause what their recent entries keep returning to, then suggest a fresh idea, constraint or twist for their next session with a short example.
Do not restate the entries and do not explain what the exercise is good for.
Avoid hidden rooms, secret doors, mysterious objects, letters, notes and photographs.
Answer in at most two sentences.`,

	PromptTypeGeneric: "You are a helpful assistant that provides writing prompts.",
}

var fallbackPrompts = map[PromptType][]string{
	PromptTypeDaily: {
		"What emotion is most present in you right now, and how is it shaping your day?",
		"What is one small thing you are looking forward to today?",
		"How does your body feel in this moment, and what is it telling you about your energy?",
	},
	PromptTypeReflective: {
		"What memory, however small, still carries emotional weight for you today?",
		"Write about a time you stood up for yourself in a way that surprised you.",
		"Describe a moment of deep gratitude and how it felt, not just what it was for.",
	},
	PromptTypeCreative: {
		"Write a scene that takes place entirely during a single elevator ride.",
		"Tell a story backwards, starting with its final sentence.",
		"Describe an ordinary morning through the eyes of someone seeing snow for the first time.",
	},
	PromptTypeGeneric: {
		"Write about something you noticed today that nobody else seemed to.",
		"Describe a place you return to often and why you keep going back.",
		"Write a letter to yourself one year from now.",
	},
}

func systemMessage(t PromptType) string {
	if msg, ok := systemMessages[t]; ok {
		return msg
	}
	return systemMessages[PromptTypeGeneric]
}

// fallbackPrompt picks one of the canned prompts of t, rotating by seed.
func fallbackPrompt(t PromptType, seed int) string {
	prompts, ok := fallbackPrompts[t]
	if !ok {
		prompts = fallbackPrompts[PromptTypeGeneric]
	}
	if seed < 0 {
		seed = -seed
	}
	return prompts[seed%len(prompts)]
}

var (
	errNoGenerator = apperrors.Generation("no text generation backend configured", nil)
	errEmptyPrompt = apperrors.Generation("empty prompt", nil)
)
