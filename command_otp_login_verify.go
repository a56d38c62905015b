package auth

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

// VerifyOTPLoginHandler exchanges a valid login code for a session
type VerifyOTPLoginHandler struct {
	*flowDeps
}

func (h *VerifyOTPLoginHandler) Execute(ctx context.Context, msg OTPVerifyRequest) (*SessionResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during otp verification")
	default:
		return h.execute(ctx, msg)
	}
}

func (h *VerifyOTPLoginHandler) execute(ctx context.Context, msg OTPVerifyRequest) (*SessionResult, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	if _, err := h.resolveTenant(ctx, msg.TenantID); err != nil {
		return nil, err
	}

	user, err := h.repo.Users().FindActiveByEmail(ctx, msg.TenantID, NormalizeEmail(msg.Email))
	if err != nil && !isNotFound(err) {
		return nil, internalError(err, "failed to look up user")
	}
	if user == nil || user.Deleted {
		return nil, h.fail(ctx, msg.TenantID, "", "unknown_user")
	}

	now := h.now()
	maxAttempts := h.cfg.GetOTPMaxAttempts()

	challenge, err := h.repo.OTPChallenges().FindLatestUnusedUnexpired(ctx, msg.TenantID, user.ID, now)
	if err != nil && !isNotFound(err) {
		return nil, internalError(err, "failed to load otp challenge")
	}
	if challenge == nil {
		return nil, h.fail(ctx, msg.TenantID, user.ID.String(), "no_challenge")
	}
	if challenge.Exhausted(maxAttempts) {
		return nil, h.fail(ctx, msg.TenantID, user.ID.String(), "attempts_exhausted")
	}

	// the attempt is claimed before comparing and persists even if the
	// caller goes away
	if err := h.repo.OTPChallenges().IncrementAttempts(context.WithoutCancel(ctx), challenge.ID, maxAttempts); err != nil {
		if isNotFound(err) {
			return nil, h.fail(ctx, msg.TenantID, user.ID.String(), "attempts_exhausted")
		}
		return nil, internalError(err, "failed to record otp attempt")
	}

	if err := h.otpHasher.Compare(ctx, msg.Code, challenge.CodeHash); err != nil {
		if !errors.Is(err, ErrMismatchedHashAndPassword) {
			h.logger.Error("otp compare error: %v", err)
		}
		return nil, h.fail(ctx, msg.TenantID, user.ID.String(), "code_mismatch")
	}

	if err := h.repo.OTPChallenges().MarkUsed(ctx, challenge.ID, maxAttempts, now); err != nil {
		if isNotFound(err) {
			return nil, h.fail(ctx, msg.TenantID, user.ID.String(), "challenge_consumed")
		}
		return nil, internalError(err, "failed to consume otp challenge")
	}

	res, err := h.issueSession(user)
	if err != nil {
		return nil, err
	}

	h.activityRecs.record(ctx, ActivityEventOTPVerified, msg.TenantID, user.ID.String(), map[string]any{
		"challenge_id": challenge.ID.String(),
	})

	return res, nil
}

func (h *VerifyOTPLoginHandler) fail(ctx context.Context, tenantID, userID, reason string) error {
	h.activityRecs.record(ctx, ActivityEventOTPFailure, tenantID, userID, map[string]any{
		"reason": reason,
	})
	return ErrInvalidCredentials
}
