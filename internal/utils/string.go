package utils

import (
	"strings"
)

// SanitizePathComponent makes a string safe to use as a single directory or
// file name component. Path separators, characters reserved on common
// filesystems, and control bytes are replaced with '_'.
func SanitizePathComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			b.WriteRune('_')
		case r < 0x20 || r == 0x7f:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SenderSlug reduces a sender address to a short filename-safe slug.
// "Jane Roe <jane.roe@example.com>" becomes "jane.roe".
func SenderSlug(sender string) string {
	s := strings.TrimSpace(sender)
	if s == "" {
		return "unknown"
	}

	// Prefer the address inside angle brackets when present
	if open := strings.LastIndex(s, "<"); open >= 0 {
		if end := strings.Index(s[open:], ">"); end > 0 {
			s = s[open+1 : open+end]
		}
	}
	if at := strings.Index(s, "@"); at > 0 {
		s = s[:at]
	}

	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	slug := strings.Trim(b.String(), "._")
	if slug == "" {
		return "unknown"
	}
	if len(slug) > 40 {
		slug = slug[:40]
	}
	return slug
}

// FirstNonEmpty returns the first string that is not empty.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
