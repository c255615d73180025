package auth

import (
	"errors"
	"regexp"
	"unicode"
)

const (
	MaxEmailLength    = 254
	MaxPasswordLength = 128
	MinPasswordLength = 8
)

var (
	ErrEmailRequired   = errors.New("email and password are required")
	ErrEmailTooLong    = errors.New("email too long")
	ErrPasswordTooLong = errors.New("password too long")
	ErrInvalidEmail    = errors.New("invalid email format")
	ErrWeakPassword    = errors.New("password must be at least 8 characters and contain an uppercase letter and a digit")
)

// One '@', no whitespace, a dot in the domain, bounded local and domain parts.
var emailPattern = regexp.MustCompile(`^[^\s@]{1,64}@[^\s@]{1,189}\.[^\s@]{1,63}$`)

// checkLengths runs before anything else so attacker-sized input never
// reaches the hasher.
func checkLengths(email, password string) error {
	if email == "" || password == "" {
		return ErrEmailRequired
	}
	if len(email) > MaxEmailLength {
		return ErrEmailTooLong
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

// ValidateLogin applies the length caps and the email format check.
func ValidateLogin(email, password string) error {
	if err := checkLengths(email, password); err != nil {
		return err
	}
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

// ValidateRegistration additionally enforces password strength.
func ValidateRegistration(email, password string) error {
	if err := ValidateLogin(email, password); err != nil {
		return err
	}
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	var upper, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !digit {
		return ErrWeakPassword
	}
	return nil
}
