package auth_test

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-repository-bun"
	auth "github.com/goliatone/go-tenant-auth"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var errInjected = errors.New("injected failure")

// memStore is an in-memory RepositoryManager. RunInTx snapshots state and
// restores it when the callback fails.
type memStore struct {
	mu         sync.Mutex
	tenants    map[string]auth.Tenant
	users      map[uuid.UUID]auth.User
	resets     map[uuid.UUID]auth.PasswordResetToken
	challenges map[uuid.UUID]auth.OTPChallenge
	failOn     map[string]error
	calls      map[string]int
}

func newMemStore(tenantIDs ...string) *memStore {
	m := &memStore{
		tenants:    map[string]auth.Tenant{},
		users:      map[uuid.UUID]auth.User{},
		resets:     map[uuid.UUID]auth.PasswordResetToken{},
		challenges: map[uuid.UUID]auth.OTPChallenge{},
		failOn:     map[string]error{},
		calls:      map[string]int{},
	}
	for _, id := range tenantIDs {
		m.tenants[id] = auth.Tenant{ID: id, Name: id}
	}
	return m
}

func (m *memStore) fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[op] = err
}

func (m *memStore) called(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// enter records the call and returns an injected error, caller holds mu
func (m *memStore) enter(op string) error {
	m.calls[op]++
	return m.failOn[op]
}

func (m *memStore) Validate() error { return nil }
func (m *memStore) MustValidate()   {}

func (m *memStore) RunInTx(ctx context.Context, _ *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.calls["RunInTx"]++
	users := cloneMap(m.users)
	resets := cloneMap(m.resets)
	challenges := cloneMap(m.challenges)
	m.mu.Unlock()

	var tx bun.Tx
	if err := f(ctx, tx); err != nil {
		m.mu.Lock()
		m.users, m.resets, m.challenges = users, resets, challenges
		m.mu.Unlock()
		return err
	}
	return nil
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *memStore) Tenants() auth.TenantResolver        { return memTenants{m} }
func (m *memStore) Users() auth.Users                   { return memUsers{m} }
func (m *memStore) PasswordResets() auth.PasswordResets { return memResets{m} }
func (m *memStore) OTPChallenges() auth.OTPChallenges   { return memChallenges{m} }

func (m *memStore) user(id uuid.UUID) (auth.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	return u, ok
}

func (m *memStore) userCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func (m *memStore) challengesFor(userID uuid.UUID) []auth.OTPChallenge {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []auth.OTPChallenge
	for _, c := range m.challenges {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *memStore) resetsFor(userID uuid.UUID) []auth.PasswordResetToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []auth.PasswordResetToken
	for _, r := range m.resets {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

type memTenants struct{ m *memStore }

func (t memTenants) Resolve(_ context.Context, tenantID string) (*auth.Tenant, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if err := t.m.enter("Resolve"); err != nil {
		return nil, err
	}
	tenant, ok := t.m.tenants[tenantID]
	if !ok || tenant.Deleted {
		return nil, repository.NewRecordNotFound()
	}
	return &tenant, nil
}

type memUsers struct{ m *memStore }

func (u memUsers) find(tenantID, email string, activeOnly bool) (*auth.User, error) {
	for _, user := range u.m.users {
		if user.TenantID != tenantID || user.Email != email {
			continue
		}
		if activeOnly && user.Deleted {
			continue
		}
		found := user
		return &found, nil
	}
	return nil, repository.NewRecordNotFound()
}

func (u memUsers) FindActiveByEmail(_ context.Context, tenantID, email string) (*auth.User, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	if err := u.m.enter("FindActiveByEmail"); err != nil {
		return nil, err
	}
	return u.find(tenantID, email, true)
}

func (u memUsers) FindAnyByEmailTx(_ context.Context, _ bun.IDB, tenantID, email string) (*auth.User, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	if err := u.m.enter("FindAnyByEmailTx"); err != nil {
		return nil, err
	}
	return u.find(tenantID, email, false)
}

func (u memUsers) GetActiveByID(_ context.Context, tenantID string, id uuid.UUID) (*auth.User, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	if err := u.m.enter("GetActiveByID"); err != nil {
		return nil, err
	}
	user, ok := u.m.users[id]
	if !ok || user.Deleted || user.TenantID != tenantID {
		return nil, repository.NewRecordNotFound()
	}
	return &user, nil
}

func (u memUsers) InsertTx(_ context.Context, _ bun.IDB, user *auth.User) (*auth.User, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	if err := u.m.enter("InsertTx"); err != nil {
		return nil, err
	}
	if _, err := u.find(user.TenantID, user.Email, false); err == nil {
		return nil, errors.New("UNIQUE constraint failed: users.tenant_id, users.email")
	}
	u.m.users[user.ID] = *user
	out := *user
	return &out, nil
}

func (u memUsers) UpdatePasswordTx(_ context.Context, _ bun.IDB, tenantID string, id uuid.UUID, hash, actor string) error {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	if err := u.m.enter("UpdatePasswordTx"); err != nil {
		return err
	}
	user, ok := u.m.users[id]
	if !ok || user.Deleted || user.TenantID != tenantID {
		return repository.NewRecordNotFound()
	}
	user.PasswordHash = hash
	user.UpdatedBy = actor
	u.m.users[id] = user
	return nil
}

func (u memUsers) UndeleteTx(_ context.Context, _ bun.IDB, tenantID string, id uuid.UUID, hash, actor string) (*auth.User, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	if err := u.m.enter("UndeleteTx"); err != nil {
		return nil, err
	}
	user, ok := u.m.users[id]
	if !ok || !user.Deleted || user.TenantID != tenantID {
		return nil, repository.NewRecordNotFound()
	}
	user.Deleted = false
	user.PasswordHash = hash
	user.UpdatedBy = actor
	u.m.users[id] = user
	out := user
	return &out, nil
}

func (u memUsers) SoftDelete(_ context.Context, tenantID string, id uuid.UUID, actor string) error {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	if err := u.m.enter("SoftDelete"); err != nil {
		return err
	}
	user, ok := u.m.users[id]
	if !ok || user.Deleted || user.TenantID != tenantID {
		return repository.NewRecordNotFound()
	}
	user.Deleted = true
	user.UpdatedBy = actor
	u.m.users[id] = user
	return nil
}

type memResets struct{ m *memStore }

func (r memResets) InsertTx(_ context.Context, _ bun.IDB, record *auth.PasswordResetToken) (*auth.PasswordResetToken, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.enter("ResetInsertTx"); err != nil {
		return nil, err
	}
	r.m.resets[record.ID] = *record
	out := *record
	return &out, nil
}

func (r memResets) FindUnusedUnexpired(_ context.Context, tenantID, tokenHash string, now time.Time) (*auth.PasswordResetToken, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.enter("FindUnusedUnexpired"); err != nil {
		return nil, err
	}
	for _, rec := range r.m.resets {
		if rec.TenantID == tenantID && rec.TokenHash == tokenHash && !rec.Used && now.Before(rec.ExpiresAt) {
			out := rec
			return &out, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (r memResets) MarkUsedTx(_ context.Context, _ bun.IDB, id uuid.UUID, now time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.enter("MarkUsedTx"); err != nil {
		return err
	}
	rec, ok := r.m.resets[id]
	if !ok || rec.Used {
		return repository.NewRecordNotFound()
	}
	rec.Used = true
	rec.UsedAt = &now
	r.m.resets[id] = rec
	return nil
}

type memChallenges struct{ m *memStore }

func (c memChallenges) InsertTx(_ context.Context, _ bun.IDB, ch *auth.OTPChallenge) (*auth.OTPChallenge, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if err := c.m.enter("ChallengeInsertTx"); err != nil {
		return nil, err
	}
	c.m.challenges[ch.ID] = *ch
	out := *ch
	return &out, nil
}

func (c memChallenges) FindLatestUnusedUnexpired(_ context.Context, tenantID string, userID uuid.UUID, now time.Time) (*auth.OTPChallenge, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if err := c.m.enter("FindLatestUnusedUnexpired"); err != nil {
		return nil, err
	}
	var latest *auth.OTPChallenge
	for _, ch := range c.m.challenges {
		if ch.TenantID != tenantID || ch.UserID != userID || ch.Used || !now.Before(ch.ExpiresAt) {
			continue
		}
		if latest == nil || ch.CreatedAt.After(latest.CreatedAt) {
			found := ch
			latest = &found
		}
	}
	if latest == nil {
		return nil, repository.NewRecordNotFound()
	}
	return latest, nil
}

func (c memChallenges) IncrementAttempts(_ context.Context, id uuid.UUID, maxAttempts int) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if err := c.m.enter("IncrementAttempts"); err != nil {
		return err
	}
	ch, ok := c.m.challenges[id]
	if !ok || ch.Used || ch.Attempts >= maxAttempts {
		return repository.NewRecordNotFound()
	}
	ch.Attempts++
	c.m.challenges[id] = ch
	return nil
}

func (c memChallenges) MarkUsed(_ context.Context, id uuid.UUID, maxAttempts int, now time.Time) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if err := c.m.enter("ChallengeMarkUsed"); err != nil {
		return err
	}
	ch, ok := c.m.challenges[id]
	if !ok || ch.Used || ch.Attempts > maxAttempts {
		return repository.NewRecordNotFound()
	}
	ch.Used = true
	ch.UsedAt = &now
	c.m.challenges[id] = ch
	return nil
}

// recordingNotifier captures what would have been emailed
type recordingNotifier struct {
	mu     sync.Mutex
	resets []sentMessage
	codes  []sentMessage
	err    error
}

type sentMessage struct {
	To      string
	Payload string
}

func (n *recordingNotifier) SendPasswordResetEmail(_ context.Context, to, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, sentMessage{To: to, Payload: link})
	return n.err
}

func (n *recordingNotifier) SendOTPEmail(_ context.Context, to, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes = append(n.codes, sentMessage{To: to, Payload: code})
	return n.err
}

func (n *recordingNotifier) lastCode() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.codes) == 0 {
		return ""
	}
	return n.codes[len(n.codes)-1].Payload
}

func (n *recordingNotifier) lastResetLink() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.resets) == 0 {
		return ""
	}
	return n.resets[len(n.resets)-1].Payload
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.resets), len(n.codes)
}
