//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// race builds run the hashing paths much slower, drop to the library default
func passwordHashCost() int {
	return bcrypt.DefaultCost
}
