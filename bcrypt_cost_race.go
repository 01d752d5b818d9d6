//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// DefaultHashCost mirrors the non-race build so configuration code that
// reads it keeps compiling; race builds ignore it in favor of a cheap cost.
var DefaultHashCost = 12

func passwordHashCost() int {
	// Reduce cost for race-enabled builds so test suites can run with strict timeouts.
	return bcrypt.DefaultCost
}
