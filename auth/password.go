package auth

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/campus/rewards-engine/loyalty"
)

const bcryptCost = 10

const passwordSpecials = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash. An empty hash never
// matches.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePassword enforces the password policy: 8 to 20 characters with at
// least one lowercase letter, one uppercase letter, one digit and one
// special character.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < 8 || n > 20 {
		return weakPassword()
	}
	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case r == '\n' || r == '\r':
			return weakPassword()
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	if !lower || !upper || !digit || !special {
		return weakPassword()
	}
	return nil
}

func weakPassword() error {
	return loyalty.Invalid("password",
		"must be 8-20 characters and include uppercase, lowercase, number and special character")
}
