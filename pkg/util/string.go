package util

import (
	"regexp"
	"strings"
	"unicode"
)

// Truncate shortens s to at most max runes. Multi-byte input is cut on a
// rune boundary so the result stays valid UTF-8.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// GenerateSlug creates a URL-friendly slug from a title, used for object
// storage keys and playlist lookups.
func GenerateSlug(title string) string {
	slug := strings.ToLower(title)

	// Replace spaces and special characters with hyphens
	reg := regexp.MustCompile(`[^a-z0-9]+`)
	slug = reg.ReplaceAllString(slug, "-")

	// Remove leading/trailing hyphens
	slug = strings.Trim(slug, "-")

	// Limit length
	if len(slug) > 50 {
		slug = slug[:50]
		slug = strings.Trim(slug, "-")
	}

	return slug
}

// TitleCase turns persona keys like "coach_maya" into "Coach Maya".
func TitleCase(s string) string {
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// FillTemplate replaces {{key}} markers with the matching values. Unknown
// markers are replaced with an empty string.
func FillTemplate(tpl string, values map[string]string) string {
	reg := regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)
	return reg.ReplaceAllStringFunc(tpl, func(m string) string {
		key := strings.Trim(m, "{} \t")
		return values[key]
	})
}

// MergeTags combines tag lists, dropping duplicates case-insensitively and
// preserving first-seen order, capped at limit entries.
func MergeTags(limit int, lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, tag := range list {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			key := strings.ToLower(tag)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, tag)
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}
