package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultPasswordHashCost is the bcrypt cost for stored passwords
	DefaultPasswordHashCost = 12
	// OTPHashCost is the bcrypt cost used for short lived login codes
	OTPHashCost = bcrypt.DefaultCost
)

// HashPassword will generate a password hash using the package cost
func HashPassword(password string) (string, error) {
	return hashWithCost(password, passwordHashCost())
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

func hashWithCost(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(h), err
}
