// Package intent classifies a chat message before any context or provider work happens.
package intent

import (
	"regexp"
	"strings"
)

// Kind is the classified purpose of one message.
type Kind string

const (
	KindIdentity        Kind = "identity"
	KindImageGeneration Kind = "image"
	KindGeneral         Kind = "general"
)

// Intent is the classifier output. ImagePrompt is set only for KindImageGeneration.
type Intent struct {
	Kind        Kind
	ImagePrompt string
}

var identityPhrases = []string{
	"who are you",
	"your name",
	"what is your name",
	"who made you",
	"who created you",
}

var imageVerbs = []string{"generate", "create", "draw"}

// leadingTrigger matches request phrasing in front of the subject,
// e.g. "please generate an image of".
var leadingTrigger = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:can you\s+|could you\s+)?(?:generate|create|draw)\s+(?:me\s+)?(?:an?\s+|the\s+)?(?:image|picture|photo)s?\s*(?:of|showing|with|for)?\s+`)

// Classify applies the fixed priority Identity > ImageGeneration > General.
// Matching is case-insensitive substring matching over the raw message.
func Classify(message string) Intent {
	lower := strings.ToLower(message)

	for _, phrase := range identityPhrases {
		if strings.Contains(lower, phrase) {
			return Intent{Kind: KindIdentity}
		}
	}

	if strings.Contains(lower, "image") {
		for _, verb := range imageVerbs {
			if strings.Contains(lower, verb) {
				return Intent{Kind: KindImageGeneration, ImagePrompt: ImagePrompt(message)}
			}
		}
	}

	return Intent{Kind: KindGeneral}
}

// ImagePrompt strips the leading trigger phrase from an image request.
// When nothing usable remains the trimmed message is returned.
func ImagePrompt(message string) string {
	trimmed := strings.TrimSpace(message)
	prompt := leadingTrigger.ReplaceAllString(trimmed, "")
	prompt = strings.TrimRight(strings.TrimSpace(prompt), ".!?")
	if prompt == "" {
		return trimmed
	}
	return prompt
}
