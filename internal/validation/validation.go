package validation

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// DefaultBioMaxLength bounds the bio field unless the caller overrides it.
const DefaultBioMaxLength = 300

var emailRegex = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// Strength is the coarse password-strength tier shown to the user.
type Strength string

const (
	StrengthWeak   Strength = "weak"
	StrengthMedium Strength = "medium"
	StrengthStrong Strength = "strong"
)

// ValidateEmail reports whether s is shaped like local@domain.tld.
func ValidateEmail(s string) bool {
	return emailRegex.MatchString(s)
}

// ValidatePassword requires at least 8 characters with at least one digit,
// one lowercase letter and one uppercase letter.
func ValidatePassword(s string) bool {
	if len(s) < 8 {
		return false
	}
	var hasDigit, hasLower, hasUpper bool
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		}
	}
	return hasDigit && hasLower && hasUpper
}

// ValidateName requires a trimmed length of at least 2 characters.
func ValidateName(s string) bool {
	return len(strings.TrimSpace(s)) >= 2
}

// ValidateBio requires a trimmed length of at most maxLength characters.
func ValidateBio(s string, maxLength int) bool {
	return len(strings.TrimSpace(s)) <= maxLength
}

// PasswordStrength scores a password into weak/medium/strong. Anything
// shorter than 8 characters is weak regardless of composition.
func PasswordStrength(s string) Strength {
	if len(s) < 8 {
		return StrengthWeak
	}

	score := 0
	if len(s) >= 12 {
		score++
	}
	if strings.IndexFunc(s, unicode.IsUpper) >= 0 {
		score++
	}
	if strings.IndexFunc(s, unicode.IsLower) >= 0 {
		score++
	}
	if strings.IndexFunc(s, unicode.IsDigit) >= 0 {
		score++
	}
	if strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) >= 0 {
		score++
	}

	switch {
	case score >= 4:
		return StrengthStrong
	case score >= 2:
		return StrengthMedium
	default:
		return StrengthWeak
	}
}

// RegisterValidators registers the profile field predicates on the provided
// validator instance so request DTOs can use them as binding tags.
func RegisterValidators(v *validator.Validate) {
	_ = v.RegisterValidation("profile_email", func(fl validator.FieldLevel) bool {
		return ValidateEmail(fl.Field().String())
	})
	_ = v.RegisterValidation("profile_name", func(fl validator.FieldLevel) bool {
		return ValidateName(fl.Field().String())
	})
	_ = v.RegisterValidation("profile_bio", func(fl validator.FieldLevel) bool {
		return ValidateBio(fl.Field().String(), DefaultBioMaxLength)
	})
}
