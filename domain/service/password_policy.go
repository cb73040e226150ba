package service

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/evnchn/3D-Print-Me/domain/model"
)

const (
	MinPasswordLength   = 12
	minCharacterClasses = 3
	specialCharacters   = "!@#$%^&*()-_=+[]{};:'\",.<>/?\\|`~"
)

// ValidatePassword applies the account creation policy. Rules run in order, first failure wins.
func ValidatePassword(username, password string) error {
	if username == "" || password == "" {
		return model.ErrNullUserField
	}

	if utf8.RuneCountInString(password) < MinPasswordLength {
		return model.ErrInsecurePassword
	}

	if characterClasses(password) < minCharacterClasses {
		return model.ErrInsecurePassword
	}

	if strings.Contains(strings.ToLower(password), strings.ToLower(username)) {
		return model.ErrInsecurePassword
	}

	return nil
}

// characterClasses counts alphabetic, lowercase, uppercase and special presence
func characterClasses(password string) int {
	var alpha, lower, upper, special bool
	for _, r := range password {
		if unicode.IsLetter(r) {
			alpha = true
		}
		if unicode.IsLower(r) {
			lower = true
		}
		if unicode.IsUpper(r) {
			upper = true
		}
		if strings.ContainsRune(specialCharacters, r) {
			special = true
		}
	}

	count := 0
	for _, ok := range []bool{alpha, lower, upper, special} {
		if ok {
			count++
		}
	}
	return count
}
