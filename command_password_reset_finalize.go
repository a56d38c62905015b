package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// FinalizePasswordResetHandler consumes a reset token and stores the new
// password in a single transaction
type FinalizePasswordResetHandler struct {
	*flowDeps
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, msg ResetPasswordRequest) (Acknowledgement, error) {
	select {
	case <-ctx.Done():
		return Acknowledgement{}, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during password reset finalization")
	default:
		return h.execute(ctx, msg)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, msg ResetPasswordRequest) (Acknowledgement, error) {
	if err := msg.Validate(); err != nil {
		return Acknowledgement{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	if _, err := h.resolveTenant(ctx, msg.TenantID); err != nil {
		return Acknowledgement{}, err
	}

	now := h.now()

	reset, err := h.repo.PasswordResets().FindUnusedUnexpired(ctx, msg.TenantID, HashResetToken(msg.Token), now)
	if err != nil {
		if isNotFound(err) {
			return Acknowledgement{}, ErrInvalidToken
		}
		return Acknowledgement{}, internalError(err, "could not retrieve password reset token")
	}

	if reset == nil || reset.Used || reset.Expired(now) {
		return Acknowledgement{}, ErrInvalidToken
	}

	passwordHash, err := h.hasher.Hash(ctx, msg.NewPassword)
	if err != nil {
		return Acknowledgement{}, internalError(err, "failed to hash new password")
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// marking first serializes concurrent consumers of the same token
		if err := h.repo.PasswordResets().MarkUsedTx(ctx, tx, reset.ID, now); err != nil {
			if isNotFound(err) {
				return ErrInvalidToken
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark password reset token used")
		}

		if err := h.repo.Users().UpdatePasswordTx(ctx, tx, reset.TenantID, reset.UserID, passwordHash, reset.UserID.String()); err != nil {
			if isNotFound(err) {
				return ErrInvalidToken
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user password")
		}

		return nil
	})

	if err != nil {
		return Acknowledgement{}, internalError(err, "failed to finalize password reset")
	}

	h.activityRecs.record(ctx, ActivityEventPasswordResetSuccess, reset.TenantID, reset.UserID.String(), map[string]any{
		"password_reset_id": reset.ID.String(),
	})

	return Acknowledgement{MessageKey: MessagePasswordResetSuccess}, nil
}
