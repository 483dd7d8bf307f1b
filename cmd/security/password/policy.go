package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validate enforces the length bounds in runes and, when enabled, the
// trivial-password check.
func (c Config) Validate(plain string) error {
	switch n := utf8.RuneCountInString(plain); {
	case n < c.Policy.MinLength:
		return ErrPasswordTooShort
	case n > c.Policy.MaxLength:
		return ErrPasswordTooLong
	}
	if c.Policy.RejectVeryWeak && trivial(plain) {
		return ErrWeakPassword
	}
	return nil
}

var commonPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"123456":      {},
	"12345678":    {},
	"123456789":   {},
	"qwerty":      {},
	"qwerty123":   {},
	"11111111":    {},
	"iloveyou":    {},
	"letmein":     {},
	"vidtube":     {},
	"vidtube123":  {},
}

// trivial catches only the obvious cases: a common password, a single
// repeated character, or a short all-digit PIN.
func trivial(plain string) bool {
	s := strings.TrimSpace(plain)
	if s == "" {
		return true
	}
	if _, ok := commonPasswords[strings.ToLower(s)]; ok {
		return true
	}

	first, _ := utf8.DecodeRuneInString(s)
	repeated, digits := true, true
	for _, r := range s {
		repeated = repeated && r == first
		digits = digits && unicode.IsDigit(r)
	}
	return repeated || (digits && utf8.RuneCountInString(s) < 12)
}
