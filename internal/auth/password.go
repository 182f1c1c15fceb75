package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"authkeep.org/internal/obs"
)

// HashPassword hashes a plaintext password with bcrypt. The salt is generated
// per call, so hashing the same input twice yields different outputs.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password with a stored hash. Any
// internal failure resolves to false: ambiguity means not authenticated.
func CheckPassword(hash, password string) bool {
	if hash == "" || password == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true
	}
	if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		obs.Error("password verification fault", map[string]any{"err": err.Error()})
	}
	return false
}
