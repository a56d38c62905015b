package auth

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Validation message keys
const (
	KeyEmailRequired       = "auth.email.required"
	KeyEmailInvalid        = "auth.email.invalid"
	KeyPasswordRequired    = "auth.password.required"
	KeyNameRequired        = "auth.name.required"
	KeyCodeRequired        = "auth.code.required"
	KeyCodeInvalid         = "auth.code.invalid"
	KeyTokenRequired       = "auth.token.required"
	KeyNewPasswordRequired = "auth.newPassword.required"
	KeyPasswordTooLong     = "auth.password.tooLong"
	KeyNewPasswordTooLong  = "auth.newPassword.tooLong"
)

// MaxPasswordBytes is the longest input bcrypt accepts
const MaxPasswordBytes = 72

// maxBytes counts bytes, not runes, since that is what bcrypt limits
func maxBytes(limit int, key string) validation.Rule {
	return validation.By(func(value interface{}) error {
		if s, _ := value.(string); len(s) > limit {
			return errors.New(key)
		}
		return nil
	})
}

// fieldRules validates one field, keyed by its json name
type fieldRules struct {
	name  string
	value any
	rules []validation.Rule
}

// validateInOrder fails on the first broken field so the reported key is
// stable regardless of how many fields are wrong.
func validateInOrder(fields ...fieldRules) error {
	for _, f := range fields {
		if err := validation.Validate(f.value, f.rules...); err != nil {
			return NewValidationError(f.name, err.Error())
		}
	}
	return nil
}

func emailRules(email string) fieldRules {
	return fieldRules{"email", email, []validation.Rule{
		validation.Required.Error(KeyEmailRequired),
		is.Email.Error(KeyEmailInvalid),
	}}
}

// Validate implements repository.Validator style payload checks
func (r SignInRequest) Validate() error {
	return validateInOrder(
		fieldRules{"email", r.Email, []validation.Rule{validation.Required.Error(KeyEmailRequired)}},
		fieldRules{"password", r.Password, []validation.Rule{validation.Required.Error(KeyPasswordRequired)}},
	)
}

func (r SignUpRequest) Validate() error {
	return validateInOrder(
		fieldRules{"name", r.Name, []validation.Rule{validation.Required.Error(KeyNameRequired)}},
		emailRules(r.Email),
		fieldRules{"password", r.Password, []validation.Rule{
			validation.Required.Error(KeyPasswordRequired),
			maxBytes(MaxPasswordBytes, KeyPasswordTooLong),
		}},
	)
}

func (r ForgotPasswordRequest) Validate() error {
	return validateInOrder(emailRules(r.Email))
}

func (r ResetPasswordRequest) Validate() error {
	return validateInOrder(
		fieldRules{"token", r.Token, []validation.Rule{validation.Required.Error(KeyTokenRequired)}},
		fieldRules{"new_password", r.NewPassword, []validation.Rule{
			validation.Required.Error(KeyNewPasswordRequired),
			maxBytes(MaxPasswordBytes, KeyNewPasswordTooLong),
		}},
	)
}

func (r OTPLoginRequest) Validate() error {
	return validateInOrder(emailRules(r.Email))
}

func (r OTPVerifyRequest) Validate() error {
	return validateInOrder(
		emailRules(r.Email),
		fieldRules{"code", r.Code, []validation.Rule{
			validation.Required.Error(KeyCodeRequired),
			validation.Length(OTPCodeLength, OTPCodeLength).Error(KeyCodeInvalid),
		}},
	)
}
