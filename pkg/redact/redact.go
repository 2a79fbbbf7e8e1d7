package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

var enabled atomic.Bool

// rule replaces matches of re with mask. A non-nil keep vetoes a match.
type rule struct {
	re   *regexp.Regexp
	mask string
	keep func(match string) bool
}

// Cards go before phones: a card number also looks like a long phone number.
var rules = []rule{
	{
		re:   regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`),
		mask: "[REDACTED_EMAIL]",
	},
	{
		re:   regexp.MustCompile(`\b(?:\d[ \-]?){12,18}\d\b`),
		mask: "[REDACTED_CARD]",
		keep: func(m string) bool { return !luhn(m) },
	},
	{
		re:   regexp.MustCompile(`\+?\b\d[\d\s\-]{7,}\d\b`),
		mask: "[REDACTED_PHONE]",
	},
}

func SetEnabled(v bool) {
	enabled.Store(v)
}

func Enabled() bool {
	return enabled.Load()
}

// Text masks emails, card numbers and phone numbers in transcripts and
// replies before they reach logs or the timeline. It is a no-op unless
// enabled.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := in
	for _, r := range rules {
		if r.keep == nil {
			out = r.re.ReplaceAllString(out, r.mask)
			continue
		}
		out = r.re.ReplaceAllStringFunc(out, func(m string) string {
			if r.keep(m) {
				return m
			}
			return r.mask
		})
	}
	return out
}

// Fields returns a copy of in with every string value passed through Text.
func Fields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if s, ok := v.(string); ok {
			v = Text(s)
		}
		out[k] = v
	}
	return out
}

// Preview is Text cut to max runes with a trailing ellipsis. max <= 0 keeps
// the whole string.
func Preview(in string, max int) string {
	out := Text(in)
	if max <= 0 || utf8.RuneCountInString(out) <= max {
		return out
	}
	return string([]rune(out)[:max]) + "..."
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
	return n > 0 && sum%10 == 0
}
