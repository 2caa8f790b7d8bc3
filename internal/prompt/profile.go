package prompt

import (
	"strconv"
	"strings"

	"github.com/Skyhug-AI/skyhug-backend/internal/models"
)

// profileField is one renderable attribute of a user profile.
type profileField struct {
	key   string
	value func(p *models.UserProfile) string
}

// profileFields lists the profile attributes in render order.
var profileFields = []profileField{
	{"age", func(p *models.UserProfile) string {
		if p.Age == nil {
			return ""
		}
		return strconv.Itoa(*p.Age)
	}},
	{"gender", func(p *models.UserProfile) string { return p.Gender }},
	{"sexual_preferences", func(p *models.UserProfile) string { return p.SexualPreferences }},
	{"career", func(p *models.UserProfile) string { return p.Career }},
	{"self_diagnosed_issues", func(p *models.UserProfile) string { return p.SelfDiagnosedIssues }},
	{"topics_on_mind", func(p *models.UserProfile) string { return strings.Join(p.TopicsOnMind, ", ") }},
	{"additional_info", func(p *models.UserProfile) string { return p.AdditionalInfo }},
}

func fieldValue(p *models.UserProfile, key string) string {
	for _, f := range profileFields {
		if f.key == key {
			return strings.TrimSpace(f.value(p))
		}
	}
	return ""
}

// label turns "self_diagnosed_issues" into "Self diagnosed issues".
func label(key string) string {
	s := strings.ReplaceAll(key, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// MiniProfile renders the one-line synopsis appended to every prompt.
func MiniProfile(p *models.UserProfile) string {
	age := "?"
	if p.Age != nil {
		age = strconv.Itoa(*p.Age)
	}
	career := p.Career
	if career == "" {
		career = "Unknown"
	}
	issues := p.SelfDiagnosedIssues
	if issues == "" {
		issues = "none"
	}
	return "Profile: " + age + "-year-old " + p.Gender + ", " + career +
		" who struggles with " + issues + ". Often thinks about " +
		strings.Join(p.TopicsOnMind, ", ") + "."
}

// FullProfile renders every non-empty field as "Label: value" lines inside the
// profile template. It returns "" when no field has a value.
func FullProfile(p *models.UserProfile) string {
	var lines []string
	for _, f := range profileFields {
		v := strings.TrimSpace(f.value(p))
		if v == "" {
			continue
		}
		lines = append(lines, label(f.key)+": "+v)
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Replace(profileTemplate, "{details}", strings.Join(lines, "\n"), 1)
}
