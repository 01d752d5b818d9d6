package auth

import (
	"net/mail"
	"regexp"
	"strings"
)

// PasswordRule is a single independently evaluated policy rule. Each rule
// that fails contributes its own violation message so callers can report
// every problem at once.
type PasswordRule struct {
	Name    string
	Message string
	Check   func(password string) bool
}

var (
	lowerRe  = regexp.MustCompile(`[a-z]`)
	upperRe  = regexp.MustCompile(`[A-Z]`)
	digitRe  = regexp.MustCompile(`[0-9]`)
	symbolRe = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// DefaultPasswordRules is the minimum-complexity policy applied at
// registration.
var DefaultPasswordRules = []PasswordRule{
	{
		Name:    "min_length",
		Message: "password must be at least 8 characters long",
		Check:   func(p string) bool { return len(p) >= 8 },
	},
	{
		// bcrypt rejects input beyond 72 bytes, so longer passwords fail
		// structural validation up front instead of inside the hasher.
		Name:    "max_length",
		Message: "password must be at most 72 characters long",
		Check:   func(p string) bool { return len(p) <= 72 },
	},
	{
		Name:    "lowercase",
		Message: "password must contain a lowercase letter",
		Check:   lowerRe.MatchString,
	},
	{
		Name:    "uppercase",
		Message: "password must contain an uppercase letter",
		Check:   upperRe.MatchString,
	},
	{
		Name:    "digit",
		Message: "password must contain a digit",
		Check:   digitRe.MatchString,
	},
	{
		Name:    "symbol",
		Message: "password must contain a symbol",
		Check:   symbolRe.MatchString,
	},
}

// CheckPassword evaluates every rule and returns all violation messages.
func CheckPassword(password string, rules []PasswordRule) []string {
	if len(rules) == 0 {
		rules = DefaultPasswordRules
	}

	var violations []string
	for _, rule := range rules {
		if !rule.Check(password) {
			violations = append(violations, rule.Message)
		}
	}
	return violations
}

// NormalizeEmail trims and lowercases an address; the normalized form is
// what the unique index sees.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsEmail reports whether the string parses as an address.
func IsEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}
