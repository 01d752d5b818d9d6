//go:build !race

package auth

// DefaultHashCost keeps a single hash around the 100ms mark on current
// server hardware. Tune through this variable, not call sites.
var DefaultHashCost = 12

func passwordHashCost() int {
	return DefaultHashCost
}
