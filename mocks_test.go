package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-tenant-auth"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"
)

// MockLogger implements auth.Logger for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Info(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Warn(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Error(format string, args ...any) {
	m.Called(format, args)
}

// MockActivitySink implements auth.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event auth.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// recordingSink keeps every event in order
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

type testConfig struct {
	signingKey     string
	issuer         string
	audience       []string
	tokenTTL       time.Duration
	resetTTL       time.Duration
	otpTTL         time.Duration
	otpMaxAttempts int
	resetLinkBase  string
}

func newTestConfig() *testConfig {
	return &testConfig{
		signingKey:     "test-signing-key",
		issuer:         "tenant-auth-test",
		audience:       []string{"tests"},
		tokenTTL:       time.Hour,
		resetTTL:       15 * time.Minute,
		otpTTL:         5 * time.Minute,
		otpMaxAttempts: 5,
		resetLinkBase:  "https://app.example.com/reset",
	}
}

func (c *testConfig) GetSigningKey() string           { return c.signingKey }
func (c *testConfig) GetIssuer() string               { return c.issuer }
func (c *testConfig) GetAudience() []string           { return c.audience }
func (c *testConfig) GetTokenTTL() time.Duration      { return c.tokenTTL }
func (c *testConfig) GetResetTokenTTL() time.Duration { return c.resetTTL }
func (c *testConfig) GetOTPTTL() time.Duration        { return c.otpTTL }
func (c *testConfig) GetOTPMaxAttempts() int          { return c.otpMaxAttempts }
func (c *testConfig) GetResetLinkBase() string        { return c.resetLinkBase }

// testClock is a settable time source shared by the service and its tokens
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc      *auth.Service
	store    *memStore
	notifier *recordingNotifier
	sink     *recordingSink
	clock    *testClock
	cfg      *testConfig
}

func newFixture(t *testing.T, opts ...auth.ServiceOption) *fixture {
	t.Helper()

	f := &fixture{
		store:    newMemStore("t1", "t2"),
		notifier: &recordingNotifier{},
		sink:     &recordingSink{},
		clock:    newTestClock(),
		cfg:      newTestConfig(),
	}

	base := []auth.ServiceOption{
		auth.WithHasher(auth.NewBcryptHasher(auth.WithHashCost(bcrypt.MinCost))),
		auth.WithOTPHasher(auth.NewBcryptHasher(auth.WithHashCost(bcrypt.MinCost))),
		auth.WithNotifier(f.notifier),
		auth.WithActivitySink(f.sink),
		auth.WithClock(f.clock.Now),
		auth.WithSyncDelivery(),
		auth.WithLogger(quietLogger{}),
	}

	f.svc = auth.NewService(f.store, f.cfg, append(base, opts...)...)
	return f
}

func (f *fixture) signUp(t *testing.T, tenantID, name, email, password string) *auth.UserView {
	t.Helper()
	user, err := f.svc.SignUp(context.Background(), auth.SignUpRequest{
		TenantID: tenantID,
		Name:     name,
		Email:    email,
		Password: password,
	})
	if err != nil {
		t.Fatalf("sign up %s: %v", email, err)
	}
	return user
}

type quietLogger struct{}

func (quietLogger) Debug(string, ...any) {}
func (quietLogger) Info(string, ...any)  {}
func (quietLogger) Warn(string, ...any)  {}
func (quietLogger) Error(string, ...any) {}
