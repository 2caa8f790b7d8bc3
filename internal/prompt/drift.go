package prompt

import (
	"regexp"
	"strings"
)

// driftRule maps a profile field to the keywords that suggest the user is
// talking about it.
type driftRule struct {
	field    string
	keywords []string
}

// driftRules are evaluated in order.
var driftRules = []driftRule{
	{"career", []string{"job", "career", "work", "office"}},
	{"self_diagnosed_issues", []string{"anxiety", "depression", "ptsd", "panic", "stress"}},
	{"topics_on_mind", []string{"mindful", "mind", "think", "ponder", "topic", "interest", "anxious"}},
}

var aboutPhrase = regexp.MustCompile(`\b(?:about|think about)\s+([\w\s]+)`)

// matchedKeyword returns the first keyword of rule contained in text.
func (r driftRule) matchedKeyword(text string) (string, bool) {
	for _, kw := range r.keywords {
		if strings.Contains(text, kw) {
			return kw, true
		}
	}
	return "", false
}

// extractTopic returns the phrase after "about"/"think about", or fallback.
func extractTopic(text, fallback string) string {
	if m := aboutPhrase.FindStringSubmatch(text); m != nil {
		if t := strings.TrimSpace(m[1]); t != "" {
			return t
		}
	}
	return fallback
}

// reminderText renders the drift reminder for a field and its current value.
func reminderText(field, value string) string {
	return "Reminder: user's " + strings.ReplaceAll(field, "_", " ") + " is " + value + "."
}
