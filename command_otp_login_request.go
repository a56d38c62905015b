package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// OTPCodeLength is the number of digits in a login code
const OTPCodeLength = 6

// RequestOTPLoginHandler issues login codes. It answers with the same
// acknowledgement whether or not the account exists.
type RequestOTPLoginHandler struct {
	*flowDeps
}

func (h *RequestOTPLoginHandler) Execute(ctx context.Context, msg OTPLoginRequest) (Acknowledgement, error) {
	select {
	case <-ctx.Done():
		return Acknowledgement{}, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during otp request")
	default:
		return h.execute(ctx, msg)
	}
}

func (h *RequestOTPLoginHandler) execute(ctx context.Context, msg OTPLoginRequest) (Acknowledgement, error) {
	ack := Acknowledgement{MessageKey: MessageOTPLoginEmailSent}

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
		h.logger.Debug("otp login requested for unknown account in tenant %s", msg.TenantID)
		return ack, nil
	}

	code, err := GenerateOTP(OTPCodeLength)
	if err != nil {
		return Acknowledgement{}, internalError(err, "failed to generate otp code")
	}

	codeHash, err := h.otpHasher.Hash(ctx, code)
	if err != nil {
		return Acknowledgement{}, internalError(err, "failed to hash otp code")
	}

	now := h.now()
	challenge := &OTPChallenge{
		ID:        uuid.New(),
		TenantID:  msg.TenantID,
		UserID:    user.ID,
		CodeHash:  codeHash,
		ExpiresAt: now.Add(h.cfg.GetOTPTTL()),
		CreatedAt: now,
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.repo.OTPChallenges().InsertTx(ctx, tx, challenge); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not store otp challenge")
		}
		return nil
	})
	if err != nil {
		return Acknowledgement{}, internalError(err, "failed to request otp login")
	}

	to := user.Email
	h.delivery.send(ctx, "otp", func(ctx context.Context) error {
		return h.notifier.SendOTPEmail(ctx, to, code)
	})

	h.activityRecs.record(ctx, ActivityEventOTPRequested, msg.TenantID, user.ID.String(), map[string]any{
		"challenge_id": challenge.ID.String(),
		"expires_at":   challenge.ExpiresAt,
	})

	return ack, nil
}
