package auth_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-repository-bun"
	auth "github.com/goliatone/go-tenant-auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"
)

func newSQLiteDB(t *testing.T) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	_, err = auth.Migrate(context.Background(), db)
	require.NoError(t, err)

	tenants := auth.NewTenantsRepository(db)
	for _, id := range []string{"t1", "t2"} {
		require.NoError(t, tenants.Create(context.Background(), &auth.Tenant{ID: id, Name: id}))
	}

	return db
}

func newSQLiteService(t *testing.T, db *bun.DB, notifier auth.Notifier, opts ...auth.ServiceOption) *auth.Service {
	t.Helper()

	repo := auth.NewRepositoryManager(db)
	require.NoError(t, repo.Validate())

	base := []auth.ServiceOption{
		auth.WithHasher(auth.NewBcryptHasher(auth.WithHashCost(bcrypt.MinCost))),
		auth.WithOTPHasher(auth.NewBcryptHasher(auth.WithHashCost(bcrypt.MinCost))),
		auth.WithNotifier(notifier),
		auth.WithSyncDelivery(),
		auth.WithLogger(quietLogger{}),
	}

	return auth.NewService(repo, newTestConfig(), append(base, opts...)...)
}

// countingHasher counts how many codes were actually compared
type countingHasher struct {
	auth.PasswordHasher
	compares atomic.Int32
}

func (h *countingHasher) Compare(ctx context.Context, secret, hash string) error {
	h.compares.Add(1)
	return h.PasswordHasher.Compare(ctx, secret, hash)
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newSQLiteDB(t)

	group, err := auth.Migrate(context.Background(), db)
	require.NoError(t, err)
	assert.True(t, group.IsZero())
}

func TestSQLite_TenantResolve(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	tenants := auth.NewTenantsRepository(db)

	tenant, err := tenants.Resolve(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", tenant.ID)

	_, err = tenants.Resolve(ctx, "nope")
	assert.True(t, repository.IsRecordNotFound(err))

	_, err = db.NewUpdate().Model((*auth.Tenant)(nil)).Set("deleted = ?", true).Where("id = ?", "t2").Exec(ctx)
	require.NoError(t, err)

	_, err = tenants.Resolve(ctx, "t2")
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestSQLite_UsersUniquePerTenant(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	users := auth.NewUsersRepository(db)

	insert := func(tenantID string) error {
		_, err := users.InsertTx(ctx, db, &auth.User{
			TenantID:     tenantID,
			ProfileID:    auth.DefaultProfileID,
			Name:         "Ada",
			Email:        "ada@example.com",
			PasswordHash: "hash",
		})
		return err
	}

	require.NoError(t, insert("t1"))
	require.NoError(t, insert("t2"))
	assert.Error(t, insert("t1"))
}

func TestSQLite_UserLifecycle(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	users := auth.NewUsersRepository(db)

	created, err := users.InsertTx(ctx, db, &auth.User{
		TenantID:     "t1",
		ProfileID:    auth.DefaultProfileID,
		Name:         "Ada",
		Email:        "ada@example.com",
		PasswordHash: "old",
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)

	found, err := users.FindActiveByEmail(ctx, "t1", "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = users.FindActiveByEmail(ctx, "t2", "ada@example.com")
	assert.True(t, repository.IsRecordNotFound(err))

	require.NoError(t, users.UpdatePasswordTx(ctx, db, "t1", created.ID, "new", "tester"))
	found, err = users.GetActiveByID(ctx, "t1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", found.PasswordHash)
	assert.Equal(t, "tester", found.UpdatedBy)

	err = users.UpdatePasswordTx(ctx, db, "t2", created.ID, "x", "tester")
	assert.True(t, repository.IsRecordNotFound(err))

	require.NoError(t, users.SoftDelete(ctx, "t1", created.ID, "admin"))
	assert.True(t, repository.IsRecordNotFound(users.SoftDelete(ctx, "t1", created.ID, "admin")))

	_, err = users.FindActiveByEmail(ctx, "t1", "ada@example.com")
	assert.True(t, repository.IsRecordNotFound(err))

	anyUser, err := users.FindAnyByEmailTx(ctx, db, "t1", "ada@example.com")
	require.NoError(t, err)
	assert.True(t, anyUser.Deleted)

	restored, err := users.UndeleteTx(ctx, db, "t1", created.ID, "fresh", "tester")
	require.NoError(t, err)
	assert.Equal(t, created.ID, restored.ID)
	assert.False(t, restored.Deleted)
	assert.Equal(t, "fresh", restored.PasswordHash)

	_, err = users.UndeleteTx(ctx, db, "t1", created.ID, "again", "tester")
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestSQLite_PasswordResetSingleUse(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	user, err := auth.NewUsersRepository(db).InsertTx(ctx, db, &auth.User{
		TenantID: "t1", ProfileID: "default", Name: "Ada", Email: "ada@example.com", PasswordHash: "h",
	})
	require.NoError(t, err)

	resets := auth.NewPasswordResetsRepository(db)
	record, err := resets.InsertTx(ctx, db, &auth.PasswordResetToken{
		TenantID:  "t1",
		UserID:    user.ID,
		TokenHash: auth.HashResetToken("raw"),
		ExpiresAt: now.Add(15 * time.Minute),
		CreatedAt: now,
	})
	require.NoError(t, err)

	found, err := resets.FindUnusedUnexpired(ctx, "t1", auth.HashResetToken("raw"), now)
	require.NoError(t, err)
	assert.Equal(t, record.ID, found.ID)

	_, err = resets.FindUnusedUnexpired(ctx, "t2", auth.HashResetToken("raw"), now)
	assert.True(t, repository.IsRecordNotFound(err))

	_, err = resets.FindUnusedUnexpired(ctx, "t1", auth.HashResetToken("raw"), now.Add(15*time.Minute))
	assert.True(t, repository.IsRecordNotFound(err))

	require.NoError(t, resets.MarkUsedTx(ctx, db, record.ID, now))
	assert.True(t, repository.IsRecordNotFound(resets.MarkUsedTx(ctx, db, record.ID, now)))

	_, err = resets.FindUnusedUnexpired(ctx, "t1", auth.HashResetToken("raw"), now)
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestSQLite_OTPChallengeAttempts(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	user, err := auth.NewUsersRepository(db).InsertTx(ctx, db, &auth.User{
		TenantID: "t1", ProfileID: "default", Name: "Ada", Email: "ada@example.com", PasswordHash: "h",
	})
	require.NoError(t, err)

	challenges := auth.NewOTPChallengesRepository(db)
	older, err := challenges.InsertTx(ctx, db, &auth.OTPChallenge{
		TenantID: "t1", UserID: user.ID, CodeHash: "a", ExpiresAt: now.Add(5 * time.Minute), CreatedAt: now,
	})
	require.NoError(t, err)
	newer, err := challenges.InsertTx(ctx, db, &auth.OTPChallenge{
		TenantID: "t1", UserID: user.ID, CodeHash: "b", ExpiresAt: now.Add(5 * time.Minute), CreatedAt: now.Add(time.Second),
	})
	require.NoError(t, err)

	latest, err := challenges.FindLatestUnusedUnexpired(ctx, "t1", user.ID, now)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)
	assert.NotEqual(t, older.ID, latest.ID)

	for i := 0; i < 3; i++ {
		require.NoError(t, challenges.IncrementAttempts(ctx, newer.ID, 3))
	}
	assert.True(t, repository.IsRecordNotFound(challenges.IncrementAttempts(ctx, newer.ID, 3)), "ceiling reached")

	latest, err = challenges.FindLatestUnusedUnexpired(ctx, "t1", user.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Attempts)

	assert.True(t, repository.IsRecordNotFound(challenges.MarkUsed(ctx, newer.ID, 2, now)))
	require.NoError(t, challenges.MarkUsed(ctx, newer.ID, 3, now))
	assert.True(t, repository.IsRecordNotFound(challenges.MarkUsed(ctx, newer.ID, 3, now)))
	assert.True(t, repository.IsRecordNotFound(challenges.IncrementAttempts(ctx, newer.ID, 5)), "used challenges take no attempts")

	latest, err = challenges.FindLatestUnusedUnexpired(ctx, "t1", user.ID, now)
	require.NoError(t, err)
	assert.Equal(t, older.ID, latest.ID)

	_, err = challenges.FindLatestUnusedUnexpired(ctx, "t1", user.ID, now.Add(5*time.Minute))
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestSQLite_ServiceFlows(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	notifier := &recordingNotifier{}
	svc := newSQLiteService(t, db, notifier)

	user, err := svc.SignUp(ctx, auth.SignUpRequest{TenantID: "t1", Name: "Ada", Email: "Ada@Example.com", Password: "first"})
	require.NoError(t, err)

	_, err = svc.SignUp(ctx, auth.SignUpRequest{TenantID: "t1", Name: "Ada", Email: "ada@example.com", Password: "again"})
	assert.ErrorIs(t, err, auth.ErrEmailAlreadyInUse)

	session, err := svc.SignIn(ctx, auth.SignInRequest{TenantID: "t1", Email: "ada@example.com", Password: "first"})
	require.NoError(t, err)

	v, err := svc.ValidateToken(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, v.Claims.Subject)

	_, err = svc.ForgotPassword(ctx, auth.ForgotPasswordRequest{TenantID: "t1", Email: "ada@example.com"})
	require.NoError(t, err)
	raw := tokenFromLink(t, notifier.lastResetLink())

	_, err = svc.ResetPassword(ctx, auth.ResetPasswordRequest{TenantID: "t1", Token: raw, NewPassword: "second"})
	require.NoError(t, err)
	_, err = svc.ResetPassword(ctx, auth.ResetPasswordRequest{TenantID: "t1", Token: raw, NewPassword: "third"})
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = svc.RequestOTPLogin(ctx, auth.OTPLoginRequest{TenantID: "t1", Email: "ada@example.com"})
	require.NoError(t, err)
	otpSession, err := svc.VerifyOTPLogin(ctx, auth.OTPVerifyRequest{TenantID: "t1", Email: "ada@example.com", Code: notifier.lastCode()})
	require.NoError(t, err)
	assert.Equal(t, user.ID, otpSession.User.ID)

	id := uuid.MustParse(user.ID)
	require.NoError(t, svc.DeleteUser(ctx, "t1", id, "admin"))

	_, err = svc.RefreshToken(ctx, session.Token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	restored, err := svc.SignUp(ctx, auth.SignUpRequest{TenantID: "t1", Name: "Ada", Email: "ada@example.com", Password: "fourth"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, restored.ID)

	var count int
	count, err = db.NewSelect().Model((*auth.User)(nil)).Where("tenant_id = ?", "t1").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = svc.SignIn(ctx, auth.SignInRequest{TenantID: "t1", Email: "ada@example.com", Password: "fourth"})
	assert.NoError(t, err)
}

func TestSQLite_ConcurrentOTPGuessesStayWithinCeiling(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	notifier := &recordingNotifier{}
	otpHasher := &countingHasher{PasswordHasher: auth.NewBcryptHasher(auth.WithHashCost(bcrypt.MinCost))}
	svc := newSQLiteService(t, db, notifier, auth.WithOTPHasher(otpHasher))

	user, err := svc.SignUp(ctx, auth.SignUpRequest{TenantID: "t1", Name: "Ada", Email: "ada@example.com", Password: "s3cret"})
	require.NoError(t, err)

	_, err = svc.RequestOTPLogin(ctx, auth.OTPLoginRequest{TenantID: "t1", Email: "ada@example.com"})
	require.NoError(t, err)
	code := notifier.lastCode()

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	const guesses = 20
	maxAttempts := newTestConfig().otpMaxAttempts

	var wg sync.WaitGroup
	var successes, rejected atomic.Int32
	start := make(chan struct{})
	failures := make(chan error, guesses)

	for i := 0; i < guesses; i++ {
		guess := wrong
		if i == guesses-1 {
			guess = code
		}
		wg.Add(1)
		go func(guess string) {
			defer wg.Done()
			<-start
			_, err := svc.VerifyOTPLogin(ctx, auth.OTPVerifyRequest{TenantID: "t1", Email: "ada@example.com", Code: guess})
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, auth.ErrInvalidCredentials):
				rejected.Add(1)
			default:
				failures <- err
			}
		}(guess)
	}

	close(start)
	wg.Wait()
	close(failures)

	for err := range failures {
		t.Errorf("unexpected verification error: %v", err)
	}

	assert.Equal(t, int32(guesses), successes.Load()+rejected.Load())
	assert.LessOrEqual(t, successes.Load(), int32(1))
	assert.LessOrEqual(t, int(otpHasher.compares.Load()), maxAttempts, "only claimed attempts reach the compare")

	var challenge auth.OTPChallenge
	err = db.NewSelect().Model(&challenge).Where("user_id = ?", uuid.MustParse(user.ID)).Scan(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, challenge.Attempts, maxAttempts)
	if successes.Load() == 0 {
		assert.Equal(t, maxAttempts, challenge.Attempts)
	}
}
