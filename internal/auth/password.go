package auth

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 12

	// Symbols accepted by the strength policy.
	passwordSymbols = "!@#$%^&*()-_=+[]{};:'\",.<>/?\\|`~"
)

// PasswordPolicyError lists every rule the candidate password failed.
// Callers surface the full list, not just the first violation.
type PasswordPolicyError struct {
	Violations []string
}

func (e *PasswordPolicyError) Error() string {
	return "auth: password policy violated: " + strings.Join(e.Violations, "; ")
}

// ValidatePasswordStrength enforces the password policy before hashing:
// minimum length 12, at least one uppercase, one lowercase, one digit and
// one symbol from the accepted set.
func ValidatePasswordStrength(password string) error {
	var violations []string
	if len(password) < minPasswordLength {
		violations = append(violations, "minimum length 12")
	}
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		}
	}
	if !upper {
		violations = append(violations, "at least one uppercase letter")
	}
	if !lower {
		violations = append(violations, "at least one lowercase letter")
	}
	if !digit {
		violations = append(violations, "at least one digit")
	}
	if !symbol {
		violations = append(violations, "at least one symbol")
	}
	if len(violations) > 0 {
		return &PasswordPolicyError{Violations: violations}
	}
	return nil
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("auth: password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with a stored bcrypt hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("auth: password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
