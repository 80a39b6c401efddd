package llm

import (
	"strings"
	"unicode"

	"github.com/forPelevin/gomoji"
)

// htmlSigils are stripped outright rather than escaped. Prompts are not
// rendered anywhere, but downstream templates interpolate them into
// model instructions where markup fragments cause injection trouble.
const htmlSigils = `<>"'`

// SanitizePrompt normalizes untrusted prompt text: HTML sigils, emojis,
// and non-printable runes are removed, runs of whitespace collapse to a
// single space, and the result is truncated to maxLen runes.
func SanitizePrompt(s string, maxLen int) string {
	s = gomoji.RemoveEmojis(s)

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case strings.ContainsRune(htmlSigils, r):
			continue
		case unicode.IsSpace(r):
			space = true
		case !unicode.IsPrint(r):
			continue
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}

	out := b.String()
	if maxLen > 0 {
		if runes := []rune(out); len(runes) > maxLen {
			out = strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return out
}
