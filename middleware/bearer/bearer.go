// Package bearer extracts bearer tokens from go-router requests.
package bearer

import (
	"errors"
	"strings"

	"github.com/goliatone/go-router"
)

const (
	DefaultContextKey   = "bearer_token"
	DefaultAuthScheme   = "Bearer"
	HeaderAuthorization = "Authorization"
)

var ErrMissingOrMalformed = errors.New("missing or malformed bearer token")

type Config struct {
	// Filter skips the middleware when it returns true
	Filter func(router.Context) bool
	// ErrorHandler renders extraction failures, defaults to 401
	ErrorHandler func(router.Context, error) error
	// ContextKey is the Locals key the raw token is stored under
	ContextKey string
	AuthScheme string
	// Optional lets requests without a token through
	Optional bool
}

func configDefault(config ...Config) Config {
	cfg := Config{}
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}
	if cfg.AuthScheme == "" {
		cfg.AuthScheme = DefaultAuthScheme
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(ctx router.Context, err error) error {
			return ctx.JSON(router.StatusUnauthorized, map[string]string{
				"error": err.Error(),
			})
		}
	}
	return cfg
}

// New returns a middleware that stores the raw bearer token in Locals
func New(config ...Config) router.MiddlewareFunc {
	cfg := configDefault(config...)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return next(ctx)
			}

			token, err := FromHeader(ctx.Header(HeaderAuthorization), cfg.AuthScheme)
			if err != nil {
				if cfg.Optional {
					return next(ctx)
				}
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(cfg.ContextKey, token)
			return next(ctx)
		}
	}
}

// FromHeader parses "<scheme> <token>", scheme matched case insensitively
func FromHeader(header, scheme string) (string, error) {
	header = strings.TrimSpace(header)
	l := len(scheme)
	if len(header) <= l+1 || !strings.EqualFold(header[:l], scheme) || header[l] != ' ' {
		return "", ErrMissingOrMalformed
	}

	token := strings.TrimSpace(header[l+1:])
	if token == "" {
		return "", ErrMissingOrMalformed
	}
	return token, nil
}

// Token returns the token stored by the middleware under key
func Token(ctx router.Context, key ...string) (string, bool) {
	k := DefaultContextKey
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}
	token, ok := ctx.Locals(k).(string)
	return token, ok && token != ""
}
