package service

import (
	"github.com/reelforge/reelforge/internal/models"
)

// The format catalog is code-level configuration. Only the chosen format's
// name is persisted, so editing the catalog never rewrites job history.

var formatCatalog = map[string]models.Format{
	"classic_cards": {
		Name: "classic_cards",
		Frames: []models.FrameSpec{
			{Role: models.RoleHook, Theme: "bold_title", Seconds: 3},
			{Role: models.RoleBody, Theme: "card", Seconds: 6},
			{Role: models.RoleBody, Theme: "card", Seconds: 6},
			{Role: models.RoleRecap, Theme: "summary", Seconds: 4},
		},
		Topics: []string{"math", "science", "history", "language"},
	},
	"deep_dive": {
		Name: "deep_dive",
		Frames: []models.FrameSpec{
			{Role: models.RoleHook, Theme: "question", Seconds: 3},
			{Role: models.RoleBody, Theme: "card", Seconds: 7},
			{Role: models.RoleExample, Theme: "worked_example", Seconds: 8},
			{Role: models.RoleBody, Theme: "card", Seconds: 7},
			{Role: models.RoleRecap, Theme: "summary", Seconds: 4},
		},
		Topics: []string{"math", "science", "engineering"},
	},
	"quick_list": {
		Name: "quick_list",
		Frames: []models.FrameSpec{
			{Role: models.RoleHook, Theme: "countdown", Seconds: 3},
			{Role: models.RoleBody, Theme: "list_item", Seconds: 5},
			{Role: models.RoleBody, Theme: "list_item", Seconds: 5},
			{Role: models.RoleBody, Theme: "list_item", Seconds: 5},
			{Role: models.RoleCTA, Theme: "follow", Seconds: 3},
		},
		Topics: []string{"productivity", "language", "study_tips"},
	},
	"story_arc": {
		Name: "story_arc",
		Frames: []models.FrameSpec{
			{Role: models.RoleHook, Theme: "scene", Seconds: 4},
			{Role: models.RoleExample, Theme: "narrative", Seconds: 8},
			{Role: models.RoleBody, Theme: "card", Seconds: 6},
			{Role: models.RoleRecap, Theme: "summary", Seconds: 4},
			{Role: models.RoleCTA, Theme: "follow", Seconds: 3},
		},
		Topics: []string{"history", "culture", "science"},
	},
	"myth_buster": {
		Name: "myth_buster",
		Frames: []models.FrameSpec{
			{Role: models.RoleHook, Theme: "myth", Seconds: 3},
			{Role: models.RoleBody, Theme: "card", Seconds: 6},
			{Role: models.RoleExample, Theme: "evidence", Seconds: 7},
			{Role: models.RoleRecap, Theme: "verdict", Seconds: 4},
		},
		Topics: []string{"science", "health", "history"},
	},
}

// topicPreferences ranks formats per topic, best first. A listed format
// earns a score bonus shrinking with its rank.
var topicPreferences = map[string][]string{
	"math":         {"deep_dive", "classic_cards"},
	"science":      {"myth_buster", "deep_dive", "story_arc"},
	"history":      {"story_arc", "classic_cards"},
	"language":     {"quick_list", "classic_cards"},
	"productivity": {"quick_list"},
	"culture":      {"story_arc"},
}

// defaultSelectionRule applies when a tenant has no rule for the persona.
var defaultSelectionRule = models.SelectionRule{
	Formats: []string{"classic_cards", "deep_dive", "quick_list", "story_arc", "myth_buster"},
	Weights: map[string]float64{
		"classic_cards": 0.3,
		"deep_dive":     0.2,
		"quick_list":    0.2,
		"story_arc":     0.15,
		"myth_buster":   0.15,
	},
	Fallback: "classic_cards",
}

// FormatByName resolves a catalog entry.
func FormatByName(name string) (models.Format, bool) {
	f, ok := formatCatalog[name]
	return f, ok
}

// SelectionRuleFor picks the tenant persona's rule, falling back to the
// global default.
func SelectionRuleFor(tenant *models.Tenant, persona string) models.SelectionRule {
	if tenant != nil {
		if rule, ok := tenant.FormatRules[persona]; ok && len(rule.Formats) > 0 {
			return rule
		}
	}
	return defaultSelectionRule
}
