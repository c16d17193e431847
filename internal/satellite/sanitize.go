package satellite

import "strings"

// unreadableFallback is spoken when a dialogue message sanitizes to nothing.
const unreadableFallback = "I'm sorry, I can't read that aloud."

var speechReplacer = strings.NewReplacer(
	"→", " to ",
	"←", " from ",
	"↔", " to ",
	"—", "-",
	"–", "-",
	"…", "...",
	"’", "'",
	"“", `"`,
	"”", `"`,
	"•", "-",
	";", "",
	"×", "x",
	"÷", "/",
	"<", " ",
	">", " ",
	"&", "and",
)

// sanitizeSpeech rewrites text the synthesizer chokes on: common typographic
// punctuation becomes its spoken or ASCII equivalent, and anything non-ASCII
// that remains is dropped.
func sanitizeSpeech(text string) string {
	replaced := speechReplacer.Replace(text)
	var b strings.Builder
	b.Grow(len(replaced))
	for _, r := range replaced {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
