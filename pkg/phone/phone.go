// Package phone normalizes WhatsApp addresses into the canonical "whatsapp:+<digits>" form.
package phone

import (
	"strings"
	"unicode"
)

// Prefix is the provider channel prefix carried by every canonical address.
const Prefix = "whatsapp:"

// Canonical returns the canonical form of a WhatsApp address.
// The provider sometimes sends "whatsapp: 336..." or "whatsapp:336...", both map to "whatsapp:+336...".
// Repeated prefixes in any letter case and repeated pluses collapse into one.
// Canonical is idempotent; an empty input stays empty, and so does a bare prefix.
func Canonical(raw string) string {
	s := strings.TrimSpace(raw)
	for {
		s = strings.TrimLeftFunc(s, plusOrSpace)
		if len(s) < len(Prefix) || !strings.EqualFold(s[:len(Prefix)], Prefix) {
			break
		}
		s = s[len(Prefix):]
	}
	if s == "" {
		return ""
	}
	return Prefix + "+" + s
}

func plusOrSpace(r rune) bool {
	return r == '+' || unicode.IsSpace(r)
}

// Digits strips the prefix and the plus sign, leaving the bare international number.
func Digits(raw string) string {
	s := strings.TrimPrefix(Canonical(raw), Prefix)
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
