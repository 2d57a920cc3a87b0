package password

import (
	"errors"
	"regexp"
	"strings"
)

const (
	MessageEmailBlank       = "Email cannot be blank."
	MessageEmailInvalid     = "Invalid email format."
	MessageOTPBlank         = "OTP cannot be blank."
	MessagePasswordPolicy   = "Password must contain at least 8 characters, one uppercase letter, one lowercase letter, one number, and one special character."
	MessagePasswordMismatch = "Passwords do not match."

	// SpecialCharacters is the set of accepted special characters.
	SpecialCharacters = "@$!%*?&#"
	minimumLength     = 8
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidationError is a local check that failed before any request was sent.
type ValidationError struct {
	Field   string
	Message string
}

func (validationError *ValidationError) Error() string {
	return validationError.Message
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var validationError *ValidationError
	return errors.As(err, &validationError)
}

// ValidateEmail checks that email is present and shaped like an address.
func ValidateEmail(email string) error {
	if email == "" {
		return &ValidationError{Field: "email", Message: MessageEmailBlank}
	}
	if !emailPattern.MatchString(email) {
		return &ValidationError{Field: "email", Message: MessageEmailInvalid}
	}
	return nil
}

// ValidateOTP checks that a one-time password was entered.
func ValidateOTP(otp string) error {
	if otp == "" {
		return &ValidationError{Field: "otp", Message: MessageOTPBlank}
	}
	return nil
}

// ValidatePassword enforces the password policy: 8 or more characters drawn from letters, digits and
// SpecialCharacters, with at least one lower-case letter, upper-case letter, digit and special character.
func ValidatePassword(candidate string) error {
	if len(candidate) < minimumLength {
		return &ValidationError{Field: "newPassword", Message: MessagePasswordPolicy}
	}
	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, character := range candidate {
		switch {
		case character >= 'a' && character <= 'z':
			hasLower = true
		case character >= 'A' && character <= 'Z':
			hasUpper = true
		case character >= '0' && character <= '9':
			hasDigit = true
		case strings.ContainsRune(SpecialCharacters, character):
			hasSpecial = true
		default:
			return &ValidationError{Field: "newPassword", Message: MessagePasswordPolicy}
		}
	}
	if !hasLower || !hasUpper || !hasDigit || !hasSpecial {
		return &ValidationError{Field: "newPassword", Message: MessagePasswordPolicy}
	}
	return nil
}

// ValidateReset checks the new password and its confirmation.
func ValidateReset(newPassword string, confirmation string) error {
	if policyErr := ValidatePassword(newPassword); policyErr != nil {
		return policyErr
	}
	if newPassword != confirmation {
		return &ValidationError{Field: "confirmPassword", Message: MessagePasswordMismatch}
	}
	return nil
}
