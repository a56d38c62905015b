package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/goliatone/go-tenant-auth"

// Acknowledgement keys returned by enumeration safe flows
const (
	MessageForgotPasswordEmailSent = "auth.forgotPasswordEmailSent"
	MessagePasswordResetSuccess    = "auth.passwordResetSuccess"
	MessageOTPLoginEmailSent       = "auth.otpLoginEmailSent"
)

const handlerTimeout = time.Second * 10

// Acknowledgement is the fixed response of flows that must not reveal
// whether the account exists
type Acknowledgement struct {
	MessageKey string `json:"messageKey"`
}

type SignInRequest struct {
	TenantID string `json:"-"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignUpRequest struct {
	TenantID  string `json:"-"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	ProfileID string `json:"profile_id,omitempty"`
	CreatedBy string `json:"-"`
}

type ForgotPasswordRequest struct {
	TenantID string `json:"-"`
	Email    string `json:"email"`
}

type ResetPasswordRequest struct {
	TenantID    string `json:"-"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type OTPLoginRequest struct {
	TenantID string `json:"-"`
	Email    string `json:"email"`
}

type OTPVerifyRequest struct {
	TenantID string `json:"-"`
	Email    string `json:"email"`
	Code     string `json:"code"`
}

// SessionResult is returned by flows that authenticate a user
type SessionResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *UserView `json:"user"`
}

// TokenValidation is the result of a successful token check
type TokenValidation struct {
	Valid  bool          `json:"valid"`
	Claims SessionClaims `json:"-"`
}

// RefreshResult carries a reissued token
type RefreshResult struct {
	Token     string    `json:"refreshedToken"`
	ExpiresAt time.Time `json:"expires_at"`
}

// flowDeps is shared by every flow handler
type flowDeps struct {
	repo         RepositoryManager
	cfg          Config
	tokens       TokenService
	hasher       PasswordHasher
	otpHasher    PasswordHasher
	notifier     Notifier
	logger       Logger
	clock        func() time.Time
	newUserID    func(tenantID, email string) (uuid.UUID, error)
	delivery     *delivery
	recheckUser  bool
	dummyHash    func(ctx context.Context) string
	activityRecs activityRecorder
}

func (d *flowDeps) now() time.Time {
	return d.clock().UTC()
}

func (d *flowDeps) resolveTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	tenant, err := d.repo.Tenants().Resolve(ctx, tenantID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrTenantNotFound
		}
		return nil, internalError(err, "failed to resolve tenant")
	}
	if tenant == nil || tenant.Deleted {
		return nil, ErrTenantNotFound
	}
	return tenant, nil
}

func (d *flowDeps) sessionFor(user *User) SessionClaims {
	return SessionClaims{
		Subject:   user.ID.String(),
		Email:     user.Email,
		ProfileID: user.ProfileID,
		TenantID:  user.TenantID,
	}
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.deps.logger = logger
		}
	}
}

func WithActivitySink(sink ActivitySink) ServiceOption {
	return func(s *Service) {
		s.deps.activityRecs.activity = normalizeActivitySink(sink)
	}
}

func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		if n != nil {
			s.deps.notifier = n
		}
	}
}

// WithHasher sets the password hasher
func WithHasher(h PasswordHasher) ServiceOption {
	return func(s *Service) {
		if h != nil {
			s.deps.hasher = h
		}
	}
}

// WithOTPHasher sets the hasher used for login codes
func WithOTPHasher(h PasswordHasher) ServiceOption {
	return func(s *Service) {
		if h != nil {
			s.deps.otpHasher = h
		}
	}
}

func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.deps.clock = clock
		}
	}
}

func WithTokenService(ts TokenService) ServiceOption {
	return func(s *Service) {
		if ts != nil {
			s.deps.tokens = ts
		}
	}
}

// WithRefreshUserCheck toggles the live user lookup before a refresh
func WithRefreshUserCheck(enabled bool) ServiceOption {
	return func(s *Service) {
		s.deps.recheckUser = enabled
	}
}

// WithDeterministicUserIDs derives new user ids from tenant and email
func WithDeterministicUserIDs() ServiceOption {
	return func(s *Service) {
		s.deps.newUserID = hashedUserID
	}
}

// WithSyncDelivery sends notifications inline instead of in the background
func WithSyncDelivery() ServiceOption {
	return func(s *Service) {
		s.deps.delivery.async = false
	}
}

func WithTracer(tracer trace.Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// Service exposes every authentication flow for a set of tenants
type Service struct {
	deps   *flowDeps
	tracer trace.Tracer

	signIn     *SignInHandler
	signUp     *RegisterUserHandler
	forgot     *InitializePasswordResetHandler
	reset      *FinalizePasswordResetHandler
	otpRequest *RequestOTPLoginHandler
	otpVerify  *VerifyOTPLoginHandler
	sessions   *SessionHandler
}

// NewService wires the flow handlers around repo and cfg
func NewService(repo RepositoryManager, cfg Config, opts ...ServiceOption) *Service {
	deps := &flowDeps{
		repo:        repo,
		cfg:         cfg,
		hasher:      NewBcryptHasher(),
		otpHasher:   NewBcryptHasher(WithHashCost(OTPHashCost)),
		notifier:    noopNotifier{},
		logger:      defLogger{},
		clock:       time.Now,
		newUserID:   randomUserID,
		delivery:    &delivery{async: true},
		recheckUser: true,
	}

	s := &Service{
		deps:   deps,
		tracer: otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(s)
	}

	if deps.tokens == nil {
		deps.tokens = NewTokenService(
			[]byte(cfg.GetSigningKey()),
			cfg.GetTokenTTL(),
			cfg.GetIssuer(),
			cfg.GetAudience(),
			deps.logger,
		).WithClock(deps.clock)
	}

	deps.delivery.logger = deps.logger
	deps.activityRecs.logger = deps.logger
	deps.activityRecs.clock = deps.clock
	deps.dummyHash = newDummyHash(deps.hasher)

	s.signIn = &SignInHandler{deps}
	s.signUp = &RegisterUserHandler{deps}
	s.forgot = &InitializePasswordResetHandler{deps}
	s.reset = &FinalizePasswordResetHandler{deps}
	s.otpRequest = &RequestOTPLoginHandler{deps}
	s.otpVerify = &VerifyOTPLoginHandler{deps}
	s.sessions = &SessionHandler{deps}

	return s
}

func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*SessionResult, error) {
	ctx, span := s.start(ctx, "auth.SignIn", req.TenantID)
	defer span.End()
	res, err := s.signIn.Execute(ctx, req)
	return res, s.finish(span, err)
}

func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*UserView, error) {
	ctx, span := s.start(ctx, "auth.SignUp", req.TenantID)
	defer span.End()
	res, err := s.signUp.Execute(ctx, req)
	return res, s.finish(span, err)
}

func (s *Service) ValidateToken(ctx context.Context, token string) (*TokenValidation, error) {
	ctx, span := s.start(ctx, "auth.ValidateToken", "")
	defer span.End()
	res, err := s.sessions.Validate(ctx, token)
	return res, s.finish(span, err)
}

func (s *Service) RefreshToken(ctx context.Context, token string) (*RefreshResult, error) {
	ctx, span := s.start(ctx, "auth.RefreshToken", "")
	defer span.End()
	res, err := s.sessions.Refresh(ctx, token)
	return res, s.finish(span, err)
}

func (s *Service) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) (Acknowledgement, error) {
	ctx, span := s.start(ctx, "auth.ForgotPassword", req.TenantID)
	defer span.End()
	res, err := s.forgot.Execute(ctx, req)
	return res, s.finish(span, err)
}

func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) (Acknowledgement, error) {
	ctx, span := s.start(ctx, "auth.ResetPassword", req.TenantID)
	defer span.End()
	res, err := s.reset.Execute(ctx, req)
	return res, s.finish(span, err)
}

func (s *Service) RequestOTPLogin(ctx context.Context, req OTPLoginRequest) (Acknowledgement, error) {
	ctx, span := s.start(ctx, "auth.RequestOTPLogin", req.TenantID)
	defer span.End()
	res, err := s.otpRequest.Execute(ctx, req)
	return res, s.finish(span, err)
}

func (s *Service) VerifyOTPLogin(ctx context.Context, req OTPVerifyRequest) (*SessionResult, error) {
	ctx, span := s.start(ctx, "auth.VerifyOTPLogin", req.TenantID)
	defer span.End()
	res, err := s.otpVerify.Execute(ctx, req)
	return res, s.finish(span, err)
}

// GetUser is a tenant scoped admin lookup
func (s *Service) GetUser(ctx context.Context, tenantID string, id uuid.UUID) (*UserView, error) {
	ctx, span := s.start(ctx, "auth.GetUser", tenantID)
	defer span.End()
	res, err := s.sessions.getUser(ctx, tenantID, id)
	return res, s.finish(span, err)
}

// DeleteUser soft deletes a user; signing up again resurrects it
func (s *Service) DeleteUser(ctx context.Context, tenantID string, id uuid.UUID, actor string) error {
	ctx, span := s.start(ctx, "auth.DeleteUser", tenantID)
	defer span.End()
	return s.finish(span, s.sessions.deleteUser(ctx, tenantID, id, actor))
}

// Tokens returns the token service used to issue sessions
func (s *Service) Tokens() TokenService {
	return s.deps.tokens
}

// Wait blocks until background notification deliveries are done
func (s *Service) Wait() {
	s.deps.delivery.wait()
}

func (s *Service) start(ctx context.Context, name, tenantID string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, name)
	if tenantID != "" {
		span.SetAttributes(attribute.String("auth.tenant_id", tenantID))
	}
	return ctx, span
}

func (s *Service) finish(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// delivery runs notifications after the state they announce is committed
type delivery struct {
	async  bool
	wg     sync.WaitGroup
	logger Logger
}

func (d *delivery) send(ctx context.Context, kind string, fn func(ctx context.Context) error) {
	run := func(ctx context.Context) {
		if err := fn(ctx); err != nil && d.logger != nil {
			d.logger.Error("failed to deliver %s notification: %v", kind, err)
		}
	}

	if !d.async {
		run(ctx)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second*30)
		defer cancel()
		run(ctx)
	}()
}

func (d *delivery) wait() {
	d.wg.Wait()
}

type noopNotifier struct{}

func (noopNotifier) SendPasswordResetEmail(context.Context, string, string) error { return nil }
func (noopNotifier) SendOTPEmail(context.Context, string, string) error           { return nil }

// newDummyHash lazily builds a hash at the configured cost so unknown
// users pay the same compare cost as known ones
func newDummyHash(h PasswordHasher) func(ctx context.Context) string {
	var (
		mu   sync.Mutex
		hash string
	)
	return func(ctx context.Context) string {
		mu.Lock()
		defer mu.Unlock()
		if hash == "" {
			if v, err := h.Hash(ctx, uuid.NewString()); err == nil {
				hash = v
			}
		}
		return hash
	}
}
