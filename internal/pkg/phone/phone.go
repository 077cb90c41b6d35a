// Package phone canonicalizes phone numbers. Every stored phone value is the
// output of Normalize and every comparison goes through Equal.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const (
	// DefaultCountryCode is prefixed to national numbers that carry no country code.
	DefaultCountryCode = "90"

	// nationalLength is the length of a national subscriber number without trunk prefix.
	nationalLength = 10

	// E.164 bounds
	minLength = 7
	maxLength = 15
)

// Normalize converts arbitrary phone input into its canonical digit string.
//
//	"+90 536 592 30 35" -> "905365923035"
//	"0536 592 30 35"    -> "905365923035"
//	"(536) 592-3035"    -> "905365923035"
//	"0044 20 7946 0958" -> "442079460958"
//
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	// international dialing prefix
	for strings.HasPrefix(digits, "00") {
		digits = digits[2:]
	}

	switch {
	case len(digits) == nationalLength+1 && digits[0] == '0':
		digits = DefaultCountryCode + digits[1:]
	case len(digits) == nationalLength:
		digits = DefaultCountryCode + digits
	}

	return digits
}

// Equal reports whether a and b denote the same phone number. Empty values never match.
func Equal(a, b string) bool {
	na := Normalize(a)
	if na == "" {
		return false
	}
	return na == Normalize(b)
}

// Valid reports whether raw normalizes to a plausible E.164 number.
func Valid(raw string) bool {
	n := Normalize(raw)
	return len(n) >= minLength && len(n) <= maxLength
}

// ToDisplay renders a canonical number for presentation, e.g. "+90 536 592 30 35".
func ToDisplay(canonical string) string {
	n := Normalize(canonical)
	if n == "" {
		return ""
	}

	parsed, err := phonenumbers.Parse("+"+n, "")
	if err != nil {
		return "+" + n
	}
	return phonenumbers.Format(parsed, phonenumbers.INTERNATIONAL)
}
