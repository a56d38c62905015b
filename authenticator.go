package auth

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
)

// SignInHandler authenticates email and password against a tenant
type SignInHandler struct {
	*flowDeps
}

func (h *SignInHandler) Execute(ctx context.Context, msg SignInRequest) (*SessionResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during sign in")
	default:
		return h.execute(ctx, msg)
	}
}

func (h *SignInHandler) execute(ctx context.Context, msg SignInRequest) (*SessionResult, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	if _, err := h.resolveTenant(ctx, msg.TenantID); err != nil {
		return nil, err
	}

	email := NormalizeEmail(msg.Email)

	user, err := h.repo.Users().FindActiveByEmail(ctx, msg.TenantID, email)
	if err != nil && !isNotFound(err) {
		return nil, internalError(err, "failed to look up user")
	}

	if user == nil || user.Deleted {
		// same hashing cost as a wrong password
		_ = h.hasher.Compare(ctx, msg.Password, h.dummyHash(ctx))
		h.activityRecs.record(ctx, ActivityEventSignInFailure, msg.TenantID, "", map[string]any{
			"reason": "unknown_user",
		})
		return nil, ErrInvalidCredentials
	}

	if err := h.hasher.Compare(ctx, msg.Password, user.PasswordHash); err != nil {
		if !errors.Is(err, ErrMismatchedHashAndPassword) {
			h.logger.Error("sign in compare error: %v", err)
		}
		h.activityRecs.record(ctx, ActivityEventSignInFailure, msg.TenantID, user.ID.String(), map[string]any{
			"reason": "password_mismatch",
		})
		return nil, ErrInvalidCredentials
	}

	res, err := h.issueSession(user)
	if err != nil {
		return nil, err
	}

	h.activityRecs.record(ctx, ActivityEventSignInSuccess, msg.TenantID, user.ID.String(), map[string]any{
		"method": "password",
	})

	return res, nil
}

func (d *flowDeps) issueSession(user *User) (*SessionResult, error) {
	token, expires, err := d.tokens.Issue(d.sessionFor(user), d.tokens.TTL())
	if err != nil {
		return nil, internalError(err, "failed to issue token")
	}
	return &SessionResult{
		Token:     token,
		ExpiresAt: expires,
		User:      user.View(),
	}, nil
}

// SessionHandler validates and refreshes issued tokens and serves
// admin lookups that need the live user record
type SessionHandler struct {
	*flowDeps
}

func (h *SessionHandler) Validate(ctx context.Context, token string) (*TokenValidation, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during token validation")
	default:
	}

	claims, err := h.tokens.Verify(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &TokenValidation{Valid: true, Claims: claims.Session()}, nil
}

func (h *SessionHandler) Refresh(ctx context.Context, token string) (*RefreshResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during token refresh")
	default:
	}

	claims, err := h.tokens.Verify(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if h.recheckUser {
		if err := h.ensureLiveUser(ctx, claims); err != nil {
			return nil, err
		}
	}

	refreshed, expires, err := h.tokens.Refresh(token)
	if err != nil {
		return nil, err
	}

	h.activityRecs.record(ctx, ActivityEventTokenRefreshed, claims.TenantID, claims.RegisteredClaims.Subject, map[string]any{
		"jti": claims.ID,
	})

	return &RefreshResult{Token: refreshed, ExpiresAt: expires}, nil
}

// ensureLiveUser rejects tokens whose user has since been deleted or moved
func (h *SessionHandler) ensureLiveUser(ctx context.Context, claims *JWTClaims) error {
	id, err := claims.UserID()
	if err != nil {
		return ErrInvalidToken
	}

	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	user, err := h.repo.Users().GetActiveByID(ctx, claims.TenantID, id)
	if err != nil {
		if isNotFound(err) {
			return ErrInvalidToken
		}
		return internalError(err, "failed to load user for refresh")
	}

	if user == nil || user.Deleted || user.TenantID != claims.TenantID {
		return ErrInvalidToken
	}

	return nil
}

func (h *SessionHandler) getUser(ctx context.Context, tenantID string, id uuid.UUID) (*UserView, error) {
	if _, err := h.resolveTenant(ctx, tenantID); err != nil {
		return nil, err
	}

	user, err := h.repo.Users().GetActiveByID(ctx, tenantID, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, internalError(err, "failed to load user")
	}

	h.logger.Debug("loaded user: %s", print.MaybePrettyJSON(user.View()))

	return user.View(), nil
}

func (h *SessionHandler) deleteUser(ctx context.Context, tenantID string, id uuid.UUID, actor string) error {
	if _, err := h.resolveTenant(ctx, tenantID); err != nil {
		return err
	}

	if actor == "" {
		actor = ActorFromContext(ctx).ID
	}

	if err := h.repo.Users().SoftDelete(ctx, tenantID, id, actor); err != nil {
		if isNotFound(err) {
			return ErrUserNotFound
		}
		return internalError(err, "failed to delete user")
	}

	h.activityRecs.record(ctx, ActivityEventUserDeleted, tenantID, id.String(), map[string]any{
		"actor": actor,
	})

	return nil
}
