// Package safety gates image generation prompts with a keyword deny list.
package safety

import (
	"strings"
	"unicode"
)

// Refusal is recorded as the assistant turn when a prompt is rejected.
const Refusal = "⚠️ I can't create that image. The request looks like it breaks the content policy, please try a different prompt."

var denyList = []string{
	"porn",
	"nude",
	"naked",
	"nsfw",
	"sex",
	"gore",
	"beheading",
	"genitals",
	"hentai",
	"erotic",
}

// Normalize keeps letters and whitespace only and lower-cases the result.
func Normalize(prompt string) string {
	var b strings.Builder
	b.Grow(len(prompt))
	for _, r := range prompt {
		if unicode.IsLetter(r) || unicode.IsSpace(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// IsSafe reports whether the normalized prompt contains no deny-listed term.
func IsSafe(prompt string) bool {
	normalized := Normalize(prompt)
	if normalized == "" {
		return true
	}
	for _, term := range denyList {
		if strings.Contains(normalized, term) {
			return false
		}
	}
	return true
}
