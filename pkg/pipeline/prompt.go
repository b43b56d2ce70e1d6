package pipeline

import (
	"fmt"
	"sort"
)

// Prompt styles bias a description's tone and content. Styles are a
// fixed instruction set; backends with the custom-prompt capability can
// replace the text wholesale via RunConfig.Prompt.
var promptStyles = map[string]string{
	"narrative": "Describe this image in flowing prose. Cover the subject, " +
		"setting, mood, and any notable details a person would mention when " +
		"telling someone about the photo.",
	"concise": "Describe this image in one or two short sentences. Name the " +
		"main subject and the most important context only.",
	"technical": "Describe this image factually and exhaustively: subjects, " +
		"objects, text, colors, composition, and apparent lighting. Avoid " +
		"interpretation or mood language.",
	"accessibility": "Write alt text for this image for a screen-reader " +
		"user. Lead with the most important content, keep it under 125 " +
		"characters if possible, and do not start with 'image of'.",
}

// DefaultPromptStyle is used when a run names no style.
const DefaultPromptStyle = "narrative"

// PromptStyles returns the known style names, sorted.
func PromptStyles() []string {
	names := make([]string, 0, len(promptStyles))
	for name := range promptStyles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// buildPrompt resolves the instruction text for a run: a custom prompt
// wins, otherwise the named style's text.
func buildPrompt(style, custom string) (string, error) {
	if custom != "" {
		return custom, nil
	}
	if style == "" {
		style = DefaultPromptStyle
	}
	text, ok := promptStyles[style]
	if !ok {
		return "", fmt.Errorf("unknown prompt style %q (known: %v)", style, PromptStyles())
	}
	return text, nil
}
