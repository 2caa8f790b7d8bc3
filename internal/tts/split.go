package tts

import (
	"regexp"
	"strings"
)

var (
	markup        = regexp.MustCompile(`[*/{}\[\]<>&#@_\\|+=%]`)
	sentenceBreak = regexp.MustCompile(`[.!?]\s+`)
)

// Sanitize strips characters the speech engine would read aloud literally.
func Sanitize(text string) string {
	return markup.ReplaceAllString(text, "")
}

// Sentences splits sanitized text after each run of whitespace that follows
// terminal punctuation. Empty pieces are dropped.
func Sentences(text string) []string {
	clean := Sanitize(text)
	var out []string
	start := 0
	for _, loc := range sentenceBreak.FindAllStringIndex(clean, -1) {
		// Keep the punctuation mark with its sentence.
		if s := strings.TrimSpace(clean[start : loc[0]+1]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(clean[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
