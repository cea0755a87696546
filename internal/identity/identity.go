// Package identity canonicalizes client contact details so that lookups and
// uniqueness checks always compare a single normalized form. Input may come
// from typed text or voice transcription ("john at example dot com",
// "five five five one two three ...").
package identity

import (
	"regexp"
	"strings"
)

// spokenDigits maps voice-transcribed number words to digits. Covers the
// common mis-transcriptions ("to", "for", "ate") seen in real call logs.
var spokenDigits = map[string]string{
	"zero": "0", "oh": "0",
	"one":   "1",
	"two":   "2", "to": "2", "too": "2",
	"three": "3", "tree": "3",
	"four":  "4", "for": "4",
	"five":  "5",
	"six":   "6",
	"seven": "7",
	"eight": "8", "ate": "8",
	"nine":  "9", "niner": "9",
}

var (
	atToken    = regexp.MustCompile(`\s*\bat\b\s*`)
	dotToken   = regexp.MustCompile(`\s*\bdot\b\s*`)
	whitespace = regexp.MustCompile(`\s+`)

	e164US     = regexp.MustCompile(`^\+1\d{10}$`)
	tenDigits  = regexp.MustCompile(`^\d{10}$`)
	oneTen     = regexp.MustCompile(`^1\d{10}$`)
	plusDigits = regexp.MustCompile(`^\+\d+$`)
	nonPhone   = regexp.MustCompile(`[^\d+]`)
)

// NormalizeEmail returns the canonical form of an email address, or "" for
// blank input. Idempotent: normalizing an already-canonical address is a
// no-op.
func NormalizeEmail(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	s = atToken.ReplaceAllString(s, "@")
	s = dotToken.ReplaceAllString(s, ".")
	return whitespace.ReplaceAllString(s, "")
}

// NormalizePhone returns the E.164 form of a phone number, or "" for blank
// input. Ten-digit and 1-prefixed eleven-digit numbers are assumed US;
// anything already starting with + is kept as-is.
func NormalizePhone(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	// Replace spoken number words token-by-token before stripping.
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		if d, ok := spokenDigits[w]; ok {
			words[i] = d
		}
	}
	s = strings.Join(words, "")

	cleaned := nonPhone.ReplaceAllString(s, "")
	// A stray + from "five + five" style garbage would survive the strip;
	// only a leading + is meaningful.
	if i := strings.LastIndex(cleaned, "+"); i > 0 {
		cleaned = strings.ReplaceAll(cleaned, "+", "")
	}
	if cleaned == "" {
		return ""
	}

	switch {
	case e164US.MatchString(cleaned):
		return cleaned
	case tenDigits.MatchString(cleaned):
		return "+1" + cleaned
	case oneTen.MatchString(cleaned):
		return "+" + cleaned
	case plusDigits.MatchString(cleaned):
		return cleaned
	default:
		// Last-resort US assumption for anything else with digits.
		return "+1" + strings.TrimPrefix(cleaned, "+")
	}
}

// NormalizeName collapses whitespace and title-cases each word.
func NormalizeName(raw string) string {
	fields := strings.Fields(raw)
	for i, f := range fields {
		r := []rune(strings.ToLower(f))
		if len(r) > 0 {
			r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		}
		fields[i] = string(r)
	}
	return strings.Join(fields, " ")
}
