package auth

import (
	"context"
	"runtime"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/sync/semaphore"
)

// BcryptHasher runs bcrypt work behind a weighted semaphore so a burst of
// logins can only occupy a fixed number of CPUs at a time.
type BcryptHasher struct {
	cost int
	sem  *semaphore.Weighted
}

// HasherOption configures a BcryptHasher
type HasherOption func(*BcryptHasher)

// WithHashCost sets the bcrypt cost
func WithHashCost(cost int) HasherOption {
	return func(h *BcryptHasher) {
		if cost > 0 {
			h.cost = cost
		}
	}
}

// WithHashConcurrency caps concurrent hash and compare calls
func WithHashConcurrency(n int) HasherOption {
	return func(h *BcryptHasher) {
		if n > 0 {
			h.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// NewBcryptHasher returns a hasher bounded to GOMAXPROCS slots by default
func NewBcryptHasher(opts ...HasherOption) *BcryptHasher {
	h := &BcryptHasher{
		cost: passwordHashCost(),
		sem:  semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Cost returns the configured bcrypt cost
func (h *BcryptHasher) Cost() int {
	return h.cost
}

func (h *BcryptHasher) Hash(ctx context.Context, secret string) (string, error) {
	if err := h.acquire(ctx); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	return hashWithCost(secret, h.cost)
}

func (h *BcryptHasher) Compare(ctx context.Context, secret, hash string) error {
	if err := h.acquire(ctx); err != nil {
		return err
	}
	defer h.sem.Release(1)

	return ComparePasswordAndHash(secret, hash)
}

func (h *BcryptHasher) acquire(ctx context.Context) error {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "hashing slot not acquired")
	}
	return nil
}
