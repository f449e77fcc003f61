// Package sanitize scrubs personal data from raw payloads and writes the
// canonical content every later stage reads.
package sanitize

import (
	"html"
	"regexp"
	"strings"
)

const (
	LinkMarker  = "[link removed]"
	EmailMarker = "[email removed]"
	PhoneMarker = "[phone removed]"
)

var (
	urlPattern   = regexp.MustCompile(`https?://(?:[a-zA-Z]|[0-9]|[$-_@.&+]|[!*\\(\\),]|(?:%[0-9a-fA-F][0-9a-fA-F]))+`)
	emailPattern = regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w+`)
	phonePattern = regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
)

// Text removes URLs, email addresses and phone numbers from s, replacing
// each with a marker. Usernames are left alone. The result is trimmed.
func Text(s string) string {
	if s == "" {
		return ""
	}
	s = decodeEntities(s)
	s = urlPattern.ReplaceAllString(s, LinkMarker)
	s = emailPattern.ReplaceAllString(s, EmailMarker)
	s = phonePattern.ReplaceAllString(s, PhoneMarker)
	return strings.TrimSpace(s)
}

// decodeEntities turns escaped text such as "&amp;" back into characters.
// Markup is never interpreted, so a literal "<" survives as written.
func decodeEntities(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	return html.UnescapeString(s)
}
