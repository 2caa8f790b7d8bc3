package dispatch

import "strings"

// Token budgets for the two model tiers.
const (
	FastMaxTokens = 150
	DeepMaxTokens = 600
)

// Models names the fast and deep completion models.
type Models struct {
	Fast string
	Deep string
}

// Selection is the model and token budget chosen for a user message.
type Selection struct {
	Model     string
	MaxTokens int
	// Rule names the rule that matched, for logs and metrics.
	Rule string
}

type prefixRule struct {
	name     string
	prefixes []string
	deep     bool
}

// selectionRules are evaluated in order; the first matching prefix wins.
var selectionRules = []prefixRule{
	{"definition", []string{"what is ", "define "}, false},
	{"self_disclosure", []string{"i feel", "i'm feeling", "i’m feeling", "i am feeling", "i am", "i'm", "i’m"}, true},
	{"analytical", []string{"why ", "how ", "explain ", "describe ", "compare ", "recommend ", "suggest "}, true},
}

// longMessageWords is the word count above which a message gets the deep model.
const longMessageWords = 6

// SelectModel picks a model and token budget from the user's text.
func SelectModel(text string, m Models) Selection {
	lc := strings.ToLower(strings.TrimSpace(text))
	for _, r := range selectionRules {
		for _, p := range r.prefixes {
			if strings.HasPrefix(lc, p) {
				return m.pick(r.deep, r.name)
			}
		}
	}
	if len(strings.Fields(lc)) > longMessageWords {
		return m.pick(true, "long_message")
	}
	return m.pick(false, "default")
}

func (m Models) pick(deep bool, rule string) Selection {
	if deep {
		return Selection{Model: m.Deep, MaxTokens: DeepMaxTokens, Rule: rule}
	}
	return Selection{Model: m.Fast, MaxTokens: FastMaxTokens, Rule: rule}
}
