package sanitize

import (
	"regexp"
	"strings"
)

// Plain email addresses (case-insensitive)
var reEmail = regexp.MustCompile(`(?i)[A-Z0-9._%+\-]+@[A-Z0-9.\-]+\.[A-Z]{2,}`)

// Common phone shapes: +63 912 345 6789, (02) 8123-4567, 09171234567.
var rePhone = regexp.MustCompile(`\+?\(?\d[\d\s\-.()]{7,}\d`)

// minPhoneDigits keeps dates like 2026-10-19 out of the phone match.
const minPhoneDigits = 9

func RedactPII(s string) string {
	if s == "" {
		return s
	}
	s = reEmail.ReplaceAllString(s, "[redacted email]")
	s = rePhone.ReplaceAllStringFunc(s, func(m string) string {
		digits := 0
		for _, r := range m {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if digits < minPhoneDigits {
			return m
		}
		return "[redacted phone]"
	})
	return s
}

// Summary cuts s at a word boundary for list views.
func Summary(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	i := max
	for i > 0 && s[i] != ' ' {
		i--
	}
	if i <= 0 {
		i = max
	}
	return strings.TrimRight(s[:i], " ") + "…"
}

// Preview is Summary over the redacted text.
func Preview(s string, max int) string {
	return Summary(RedactPII(s), max)
}
