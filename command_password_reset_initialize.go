package auth

import (
	"context"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// InitializePasswordResetHandler issues reset tokens. It answers with the
// same acknowledgement whether or not the account exists.
type InitializePasswordResetHandler struct {
	*flowDeps
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, msg ForgotPasswordRequest) (Acknowledgement, error) {
	select {
	case <-ctx.Done():
		return Acknowledgement{}, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during password reset initialization")
	default:
		return h.execute(ctx, msg)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, msg ForgotPasswordRequest) (Acknowledgement, error) {
	ack := Acknowledgement{MessageKey: MessageForgotPasswordEmailSent}

	if err := msg.Validate(); err != nil {
		return Acknowledgement{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	if _, err := h.resolveTenant(ctx, msg.TenantID); err != nil {
		return Acknowledgement{}, err
	}

	user, err := h.repo.Users().FindActiveByEmail(ctx, msg.TenantID, NormalizeEmail(msg.Email))
	if err != nil && !isNotFound(err) {
		return Acknowledgement{}, internalError(err, "failed to look up user")
	}

	if user == nil || user.Deleted {
		h.logger.Debug("password reset requested for unknown account in tenant %s", msg.TenantID)
		return ack, nil
	}

	raw, hash, err := GenerateResetToken()
	if err != nil {
		return Acknowledgement{}, internalError(err, "failed to generate reset token")
	}

	now := h.now()
	record := &PasswordResetToken{
		ID:        uuid.New(),
		TenantID:  user.TenantID,
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: now.Add(h.cfg.GetResetTokenTTL()),
		CreatedAt: now,
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.repo.PasswordResets().InsertTx(ctx, tx, record); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not store password reset token")
		}
		return nil
	})
	if err != nil {
		return Acknowledgement{}, internalError(err, "failed to initialize password reset")
	}

	link := ResetLink(h.cfg.GetResetLinkBase(), raw)
	to := user.Email
	h.delivery.send(ctx, "password reset", func(ctx context.Context) error {
		return h.notifier.SendPasswordResetEmail(ctx, to, link)
	})

	h.activityRecs.record(ctx, ActivityEventPasswordResetRequested, user.TenantID, user.ID.String(), map[string]any{
		"password_reset_id": record.ID.String(),
		"expires_at":        record.ExpiresAt,
	})

	return ack, nil
}

// ResetLink appends the raw token to base as the token query parameter
func ResetLink(base, token string) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		sep := "?"
		if strings.Contains(base, "?") {
			sep = "&"
		}
		return base + sep + "token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
