package auth

import (
	passwordvalidator "github.com/wagslane/go-password-validator"
	"golang.org/x/crypto/bcrypt"

	"github.com/communityz/backend/pkg/apperrors"
)

const (
	// PasswordMinLength matches the minimum the clients enforce.
	PasswordMinLength = 6
	// PasswordMinEntropyBits rejects trivially guessable passwords that still
	// pass the length check.
	PasswordMinEntropyBits = 40
)

// ValidatePassword checks length and entropy before hashing.
func ValidatePassword(password string) error {
	if len(password) < PasswordMinLength {
		return apperrors.New(apperrors.CodeWeakPassword, "password must be at least 6 characters")
	}
	if err := passwordvalidator.Validate(password, PasswordMinEntropyBits); err != nil {
		return apperrors.Wrap(apperrors.CodeWeakPassword, "password is too weak", err)
	}
	return nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a candidate password with the stored hash.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return apperrors.New(apperrors.CodeWrongPassword, "wrong password")
	}
	return nil
}
