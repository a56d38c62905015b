package auth

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-tenant-auth/middleware/bearer"
	"github.com/google/uuid"
)

// DefaultTenantHeader carries the tenant id on every request
const DefaultTenantHeader = "X-Tenant-ID"

type AuthControllerRoutes struct {
	Login          string
	SignUp         string
	ValidateToken  string
	RefreshToken   string
	ForgotPassword string
	ResetPassword  string
	OTPRequest     string
	OTPVerify      string
	Me             string
}

// AuthController exposes Service over HTTP
type AuthController struct {
	Service      *Service
	Logger       Logger
	TenantHeader string
	Routes       *AuthControllerRoutes
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		if logger != nil {
			ac.Logger = logger
		}
		return ac
	}
}

func WithTenantHeader(header string) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		if header != "" {
			ac.TenantHeader = header
		}
		return ac
	}
}

func WithControllerErrorHandler(handler router.ErrorHandler) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		if handler != nil {
			ac.ErrorHandler = handler
		}
		return ac
	}
}

func WithAuthControllerRoutes(r *AuthControllerRoutes) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		if r != nil {
			ac.Routes = r
		}
		return ac
	}
}

func NewAuthController(service *Service, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Service:      service,
		Logger:       defLogger{},
		TenantHeader: DefaultTenantHeader,
		Routes: &AuthControllerRoutes{
			Login:          "/login",
			SignUp:         "/signup",
			ValidateToken:  "/validate-token",
			RefreshToken:   "/refresh-token",
			ForgotPassword: "/forgot-password",
			ResetPassword:  "/reset-password",
			OTPRequest:     "/otp/request",
			OTPVerify:      "/otp/verify",
			Me:             "/me",
		},
	}

	for _, opt := range opts {
		if opt != nil {
			c = opt(c)
		}
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = RouteErrorHandler(c.Logger)
	}

	return c
}

// RegisterAuthRoutes mounts the auth endpoints on app
func RegisterAuthRoutes[T any](app router.Router[T], service *Service, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(service, opts...)

	requireBearer := bearer.New(bearer.Config{
		ErrorHandler: func(ctx router.Context, _ error) error {
			return controller.ErrorHandler(ctx, ErrUnauthorized)
		},
	})
	optionalBearer := bearer.New(bearer.Config{Optional: true})

	app.Post(controller.Routes.Login, controller.SignIn).SetName("auth.sign-in")
	app.Post(controller.Routes.SignUp, controller.SignUp).SetName("auth.sign-up")
	app.Get(controller.Routes.ValidateToken, controller.ValidateToken, requireBearer).SetName("auth.validate-token.get")
	app.Post(controller.Routes.ValidateToken, controller.ValidateToken, optionalBearer).SetName("auth.validate-token.post")
	app.Get(controller.Routes.RefreshToken, controller.RefreshToken, requireBearer).SetName("auth.refresh-token")
	app.Post(controller.Routes.ForgotPassword, controller.ForgotPassword).SetName("auth.forgot-password")
	app.Patch(controller.Routes.ResetPassword, controller.ResetPassword).SetName("auth.reset-password")
	app.Post(controller.Routes.OTPRequest, controller.RequestOTP).SetName("auth.otp.request")
	app.Post(controller.Routes.OTPVerify, controller.VerifyOTP).SetName("auth.otp.verify")

	if controller.Routes.Me != "" {
		app.Get(controller.Routes.Me, controller.Me, SessionMiddleware(service, SessionMiddlewareConfig{
			TenantHeader: controller.TenantHeader,
			Logger:       controller.Logger,
			ErrorHandler: controller.ErrorHandler,
		})).SetName("auth.me")
	}

	return controller
}

func (a *AuthController) SignIn(ctx router.Context) error {
	var req SignInRequest
	if err := a.parse(ctx, &req); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if req.TenantID = a.tenant(ctx); req.TenantID == "" {
		return a.ErrorHandler(ctx, ErrTenantRequired)
	}

	res, err := a.Service.SignIn(ctx.Context(), req)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, res)
}

func (a *AuthController) SignUp(ctx router.Context) error {
	var req SignUpRequest
	if err := a.parse(ctx, &req); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if req.TenantID = a.tenant(ctx); req.TenantID == "" {
		return a.ErrorHandler(ctx, ErrTenantRequired)
	}

	user, err := a.Service.SignUp(ctx.Context(), req)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, user)
}

// ValidateToken accepts the token as a bearer header or, on POST, in the
// JSON body
func (a *AuthController) ValidateToken(ctx router.Context) error {
	token, ok := bearer.Token(ctx)
	if !ok {
		var body struct {
			Token string `json:"token"`
		}
		if ctx.Header(fiber.HeaderContentType) != "" {
			if err := a.parse(ctx, &body); err != nil {
				return a.ErrorHandler(ctx, err)
			}
		}
		token = strings.TrimSpace(body.Token)
	}

	if token == "" {
		return a.ErrorHandler(ctx, ErrUnauthorized)
	}

	res, err := a.Service.ValidateToken(ctx.Context(), token)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, res)
}

func (a *AuthController) RefreshToken(ctx router.Context) error {
	token, ok := bearer.Token(ctx)
	if !ok {
		return a.ErrorHandler(ctx, ErrUnauthorized)
	}

	res, err := a.Service.RefreshToken(ctx.Context(), token)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, res)
}

func (a *AuthController) ForgotPassword(ctx router.Context) error {
	var req ForgotPasswordRequest
	if err := a.parse(ctx, &req); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if req.TenantID = a.tenant(ctx); req.TenantID == "" {
		return a.ErrorHandler(ctx, ErrTenantRequired)
	}

	ack, err := a.Service.ForgotPassword(ctx.Context(), req)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, ack)
}

func (a *AuthController) ResetPassword(ctx router.Context) error {
	var req ResetPasswordRequest
	if err := a.parse(ctx, &req); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if req.TenantID = a.tenant(ctx); req.TenantID == "" {
		return a.ErrorHandler(ctx, ErrTenantRequired)
	}

	ack, err := a.Service.ResetPassword(ctx.Context(), req)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, ack)
}

func (a *AuthController) RequestOTP(ctx router.Context) error {
	var req OTPLoginRequest
	if err := a.parse(ctx, &req); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if req.TenantID = a.tenant(ctx); req.TenantID == "" {
		return a.ErrorHandler(ctx, ErrTenantRequired)
	}

	ack, err := a.Service.RequestOTPLogin(ctx.Context(), req)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, ack)
}

func (a *AuthController) VerifyOTP(ctx router.Context) error {
	var req OTPVerifyRequest
	if err := a.parse(ctx, &req); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if req.TenantID = a.tenant(ctx); req.TenantID == "" {
		return a.ErrorHandler(ctx, ErrTenantRequired)
	}

	res, err := a.Service.VerifyOTPLogin(ctx.Context(), req)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, res)
}

// Me returns the account behind the bearer token
func (a *AuthController) Me(ctx router.Context) error {
	session, ok := SessionFromLocals(ctx)
	if !ok {
		return a.ErrorHandler(ctx, ErrUnauthorized)
	}

	id, err := uuid.Parse(session.Subject)
	if err != nil {
		return a.ErrorHandler(ctx, ErrInvalidToken)
	}

	user, err := a.Service.GetUser(ctx.Context(), session.TenantID, id)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, user)
}

func (a *AuthController) tenant(ctx router.Context) string {
	return strings.TrimSpace(ctx.Header(a.TenantHeader))
}

func (a *AuthController) parse(ctx router.Context, out any) error {
	if err := ctx.Bind(out); err != nil {
		a.Logger.Debug("body parse error on %s: %v", ctx.OriginalURL(), err)
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}
