package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// RegisterUserHandler creates accounts, resurrecting soft deleted ones
type RegisterUserHandler struct {
	*flowDeps
}

func (h *RegisterUserHandler) Execute(ctx context.Context, msg SignUpRequest) (*UserView, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during sign up")
	default:
		return h.execute(ctx, msg)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, msg SignUpRequest) (*UserView, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	if _, err := h.resolveTenant(ctx, msg.TenantID); err != nil {
		return nil, err
	}

	email := NormalizeEmail(msg.Email)
	actor := msg.CreatedBy
	if actor == "" {
		actor = ActorFromContext(ctx).ID
	}
	profileID := msg.ProfileID
	if profileID == "" {
		profileID = DefaultProfileID
	}

	passwordHash, err := h.hasher.Hash(ctx, msg.Password)
	if err != nil {
		return nil, internalError(err, "failed to hash password")
	}

	var (
		user        *User
		resurrected bool
	)

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := h.repo.Users().FindAnyByEmailTx(ctx, tx, msg.TenantID, email)
		if err != nil && !isNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not look up user")
		}

		if existing != nil && !existing.Deleted {
			return ErrEmailAlreadyInUse
		}

		if existing != nil {
			user, err = h.repo.Users().UndeleteTx(ctx, tx, msg.TenantID, existing.ID, passwordHash, actor)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not restore user")
			}
			resurrected = true
			return nil
		}

		id, err := h.newUserID(msg.TenantID, email)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not generate user id")
		}

		now := h.now()
		user, err = h.repo.Users().InsertTx(ctx, tx, &User{
			ID:           id,
			TenantID:     msg.TenantID,
			ProfileID:    profileID,
			Name:         msg.Name,
			Email:        email,
			PasswordHash: passwordHash,
			CreatedAt:    now,
			CreatedBy:    actor,
			UpdatedAt:    now,
			UpdatedBy:    actor,
		})
		if err != nil {
			if isUniqueViolation(err) {
				return ErrEmailAlreadyInUse
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create user")
		}
		return nil
	})

	if err != nil {
		return nil, internalError(err, "failed to register user")
	}

	event := ActivityEventSignUp
	if resurrected {
		event = ActivityEventAccountResurrected
	}
	h.activityRecs.record(ctx, event, msg.TenantID, user.ID.String(), map[string]any{
		"actor": actor,
	})

	return user.View(), nil
}
