package users

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
)

var (
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong  = errors.New("password must not exceed 72 bytes")
	ErrPasswordWeak     = errors.New("password is too weak")
)

const (
	minPasswordRunes = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
	// similarityLimit is the difflib ratio at which a password counts as
	// derived from the username or email.
	similarityLimit = 0.7
)

// CheckPassword applies the account password policy.
func CheckPassword(password, username, email string) error {
	if utf8.RuneCountInString(password) < minPasswordRunes {
		return ErrPasswordTooShort
	}
	if len(password) > maxPasswordBytes {
		return ErrPasswordTooLong
	}
	if strings.IndexFunc(password, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: must not contain whitespace", ErrPasswordWeak)
	}
	if strings.IndexFunc(password, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		return fmt.Errorf("%w: must not be only digits", ErrPasswordWeak)
	}

	local, _, _ := strings.Cut(email, "@")
	for _, ident := range []string{username, local} {
		if ident == "" {
			continue
		}
		if similarity(password, ident) >= similarityLimit {
			return fmt.Errorf("%w: too similar to username or email", ErrPasswordWeak)
		}
	}
	return nil
}

func similarity(a, b string) float64 {
	m := difflib.NewMatcher(runes(strings.ToLower(a)), runes(strings.ToLower(b)))
	return m.Ratio()
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
