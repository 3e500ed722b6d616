package persistence

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	slugPattern    = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
	slugStrip      = regexp.MustCompile(`[^a-z0-9-]`)
)

// NormalizeSlug trims whitespace, lowercases the value, and ensures it matches
// the canonical URL-safe slug pattern required for public tenant identifiers.
func NormalizeSlug(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.New("slug is required")
	}

	normalized := strings.ToLower(trimmed)
	if !slugPattern.MatchString(normalized) {
		return "", fmt.Errorf("invalid slug %q: must match ^[a-z0-9]+(?:-[a-z0-9]+)*$", input)
	}

	return normalized, nil
}

// Slugify derives a slug base from a display name: lowercase, whitespace runs
// collapsed to single hyphens, anything outside [a-z0-9-] stripped.
func Slugify(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	hyphenated := whitespaceRuns.ReplaceAllString(lowered, "-")
	return slugStrip.ReplaceAllString(hyphenated, "")
}
