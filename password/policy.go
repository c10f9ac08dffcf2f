package password

import (
	"fmt"
	"strings"
	"unicode"
)

const specialCharacters = "!@#$%^&*()_+-=[]{}|;:,.<>?"

var commonPasswords = map[string]struct{}{
	"password": {}, "admin": {}, "harbor": {}, "12345678": {}, "qwerty": {},
}

// Policy describes password strength requirements.
type Policy struct {
	MinLength      int
	RequireSpecial bool
	// Strict additionally requires upper, lower, and digit characters and
	// rejects a small list of common passwords. Production deployments
	// enable it.
	Strict bool
}

// DefaultPolicy requires 12 characters.
func DefaultPolicy() Policy {
	return Policy{MinLength: 12}
}

// Check returns one message per unmet requirement; nil means acceptable.
func (p Policy) Check(password string) []string {
	var problems []string

	if n := len([]rune(password)); n < p.MinLength {
		problems = append(problems, fmt.Sprintf("password must be at least %d characters long", p.MinLength))
	}
	if p.RequireSpecial && !strings.ContainsAny(password, specialCharacters) {
		problems = append(problems, "password must contain at least one special character")
	}
	if !p.Strict {
		return problems
	}

	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper {
		problems = append(problems, "password must contain at least one uppercase letter")
	}
	if !lower {
		problems = append(problems, "password must contain at least one lowercase letter")
	}
	if !digit {
		problems = append(problems, "password must contain at least one number")
	}
	if _, common := commonPasswords[strings.ToLower(password)]; common {
		problems = append(problems, "password is too common")
	}
	return problems
}
