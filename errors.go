package auth

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// Text codes double as localization keys for clients
const (
	TextCodeInvalidCredentials = "errors.invalidCredentials"
	TextCodeInvalidToken       = "errors.invalidToken"
	TextCodeEmailAlreadyInUse  = "errors.emailAlreadyInUse"
	TextCodeUserNotFound       = "errors.userNotFound"
	TextCodeUnauthorized       = "errors.unauthorized"
	TextCodeInternal           = "errors.internalServerError"
	TextCodeInvalidBody        = "errors.invalidRequestBody"
	TextCodeHTTP               = "errors.http"
	TextCodeTenantRequired     = "tenant.missingTenantId"
	TextCodeTenantNotFound     = "tenant.notFound"
)

var (
	// ErrInvalidCredentials covers unknown users, wrong passwords and failed codes alike
	ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
				WithCode(goerrors.CodeUnauthorized).
				WithTextCode(TextCodeInvalidCredentials)

	// ErrInvalidToken covers bad signatures, expiry and unknown or consumed reset tokens
	ErrInvalidToken = goerrors.New("invalid or expired token", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(TextCodeInvalidToken)

	// ErrEmailAlreadyInUse is returned when sign up collides with an active account
	ErrEmailAlreadyInUse = goerrors.New("email already in use", goerrors.CategoryConflict).
				WithCode(goerrors.CodeBadRequest).
				WithTextCode(TextCodeEmailAlreadyInUse)

	// ErrUserNotFound is only returned by admin lookups
	ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
			WithCode(goerrors.CodeNotFound).
			WithTextCode(TextCodeUserNotFound)

	// ErrUnauthorized is returned when a request carries no bearer token
	ErrUnauthorized = goerrors.New("missing bearer token", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithTextCode(TextCodeUnauthorized)

	ErrTenantRequired = goerrors.New("tenant id is required", goerrors.CategoryBadInput).
				WithCode(goerrors.CodeBadRequest).
				WithTextCode(TextCodeTenantRequired)

	ErrTenantNotFound = goerrors.New("tenant not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound).
				WithTextCode(TextCodeTenantNotFound)
)

// ErrMismatchedHashAndPassword is returned by the hasher on a wrong secret
var ErrMismatchedHashAndPassword = errors.New("hashed secret does not match")

// ErrNoEmptyString is returned when hashing an empty secret
var ErrNoEmptyString = errors.New("secret must not be empty")

// NewValidationError builds a localizable 400 for the first invalid field
func NewValidationError(field, key string) *goerrors.Error {
	return goerrors.New(key, goerrors.CategoryValidation).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(key).
		WithMetadata(map[string]any{
			"field": field,
		})
}

// IsValidationError reports whether err was produced by payload validation
func IsValidationError(err error) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category == goerrors.CategoryValidation
	}
	return false
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	return repository.IsRecordNotFound(err) || goerrors.IsNotFound(err)
}

// isUniqueViolation matches postgres 23505 and sqlite constraint failures
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// internalError keeps rich errors as they are and wraps anything else
func internalError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithCode(goerrors.CodeInternal).
		WithTextCode(TextCodeInternal)
}
