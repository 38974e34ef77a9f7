package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

var enabled atomic.Bool

type rule struct {
	re    *regexp.Regexp
	label string
	// match, when set, must accept the hit before it is replaced.
	match func(string) bool
}

// Order matters: card numbers would otherwise be caught as phone numbers.
var rules = []rule{
	{re: regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`), label: "[REDACTED_EMAIL]"},
	{re: regexp.MustCompile(`\b(?:\d[ \-]?){12,18}\d\b`), label: "[REDACTED_CARD]", match: luhn},
	{re: regexp.MustCompile(`(?:\+|\b)\d[\d\s\-]{7,}\d\b`), label: "[REDACTED_PHONE]"},
}

// SetEnabled toggles PII redaction.
func SetEnabled(v bool) {
	enabled.Store(v)
}

func Enabled() bool {
	return enabled.Load()
}

// Text masks emails, card numbers and phone numbers when enabled.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := in
	for _, r := range rules {
		if r.match == nil {
			out = r.re.ReplaceAllString(out, r.label)
			continue
		}
		out = r.re.ReplaceAllStringFunc(out, func(hit string) string {
			if r.match(hit) {
				return r.label
			}
			return hit
		})
	}
	return out
}

// Phrase prepares phrase text for a log line: redacted, then cut to at most
// max runes with a trailing ellipsis. max <= 0 disables truncation.
func Phrase(in string, max int) string {
	out := Text(in)
	if max <= 0 || utf8.RuneCountInString(out) <= max {
		return out
	}
	runes := []rune(out)
	return string(runes[:max]) + "…"
}

func luhn(s string) bool {
	sum, n := 0, 0
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}
		d := int(c - '0')
		if n%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		n++
	}
	return n >= 13 && sum%10 == 0
}
