package services

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer strips markup from free-text answers before they enter a draft.
type Sanitizer struct {
	policy *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize removes all tags, decodes entities and collapses whitespace.
func (s *Sanitizer) Sanitize(text string) string {
	clean := html.UnescapeString(s.policy.Sanitize(text))
	return strings.Join(strings.Fields(clean), " ")
}
