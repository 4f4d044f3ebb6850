package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer strips markup from user-supplied text
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer uses the strict policy: no elements, no attributes
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean removes all HTML elements and trims surrounding whitespace. The result
// is HTML-escaped text and is stored as is, so it is safe to render as HTML.
// Clean is idempotent.
func (s *TextSanitizer) Clean(in string) string {
	return strings.TrimSpace(s.policy.Sanitize(in))
}
