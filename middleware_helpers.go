package auth

import (
	"strings"

	"github.com/goliatone/go-router"
	"github.com/goliatone/go-tenant-auth/middleware/bearer"
)

// DefaultSessionLocalsKey is where SessionMiddleware stores SessionClaims
const DefaultSessionLocalsKey = "auth_session"

type SessionMiddlewareConfig struct {
	// TenantHeader, when present on the request, must match the token tenant
	TenantHeader string
	LocalsKey    string
	Logger       Logger
	ErrorHandler router.ErrorHandler
}

// SessionMiddleware verifies the bearer token with svc and exposes the
// session through Locals and the request context.
func SessionMiddleware(svc *Service, config ...SessionMiddlewareConfig) router.MiddlewareFunc {
	cfg := SessionMiddlewareConfig{}
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.TenantHeader == "" {
		cfg.TenantHeader = DefaultTenantHeader
	}
	if cfg.LocalsKey == "" {
		cfg.LocalsKey = DefaultSessionLocalsKey
	}
	if cfg.Logger == nil {
		cfg.Logger = defLogger{}
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = RouteErrorHandler(cfg.Logger)
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			token, err := bearer.FromHeader(ctx.Header(bearer.HeaderAuthorization), bearer.DefaultAuthScheme)
			if err != nil {
				return cfg.ErrorHandler(ctx, ErrUnauthorized)
			}

			res, err := svc.ValidateToken(ctx.Context(), token)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			if tenantID := strings.TrimSpace(ctx.Header(cfg.TenantHeader)); tenantID != "" && tenantID != res.Claims.TenantID {
				cfg.Logger.Debug("tenant header %s does not match token tenant %s", tenantID, res.Claims.TenantID)
				return cfg.ErrorHandler(ctx, ErrInvalidToken)
			}

			ctx.Locals(cfg.LocalsKey, res.Claims)
			ctx.SetContext(WithSessionContext(ctx.Context(), res.Claims))

			return next(ctx)
		}
	}
}

// SessionFromLocals returns the claims stored by SessionMiddleware
func SessionFromLocals(ctx router.Context, key ...string) (SessionClaims, bool) {
	k := DefaultSessionLocalsKey
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}
	session, ok := ctx.Locals(k).(SessionClaims)
	return session, ok
}
