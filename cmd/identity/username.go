package identity

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxUsernameLen matches the users.username check constraint.
const MaxUsernameLen = 64

// CleanUsername trims s and checks it is usable as a directory key.
// Usernames are case-sensitive and compared exactly.
func CleanUsername(s string) (string, error) {
	const op = "identity.CleanUsername"

	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", invalid(op, "username is required")
	case utf8.RuneCountInString(s) > MaxUsernameLen:
		return "", invalid(op, "username too long")
	case strings.IndexFunc(s, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0:
		return "", invalid(op, "username must not contain whitespace")
	}
	return s, nil
}
