// Package devserver is a development stand-in for the library backend. It
// serves the login and password reset endpoints the client talks to, keeps
// users in memory and never sends email: verification codes go to a
// CodeNotifier, which logs them by default.
package devserver

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-auth-client"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"golang.org/x/crypto/bcrypt"
)

const (
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	TextCodeInvalidCode        = "INVALID_CODE"
	TextCodeCodeExpired        = "CODE_EXPIRED"
	TextCodeTooManyAttempts    = "TOO_MANY_ATTEMPTS"
	TextCodeInvalidPayload     = "INVALID_PAYLOAD"
)

const (
	defaultTokenTTL     = time.Hour
	defaultCodeTTL      = 15 * time.Minute
	defaultMaxAttempts  = 5
	verificationDigits  = 6
	verificationModulus = 1_000_000
)

// Routes used by the backend
const (
	RouteLogin          = "/auth/login"
	RouteForgotPassword = "/auth/forgot-password"
	RouteResetPassword  = "/auth/reset-password"
)

// CodeNotifier delivers a verification code to the account holder.
type CodeNotifier interface {
	NotifyCode(ctx context.Context, email, code string) error
}

// CodeNotifierFunc adapts a function to CodeNotifier.
type CodeNotifierFunc func(ctx context.Context, email, code string) error

// NotifyCode implements CodeNotifier.
func (f CodeNotifierFunc) NotifyCode(ctx context.Context, email, code string) error {
	if f == nil {
		return nil
	}
	return f(ctx, email, code)
}

// UserSpec describes a seeded account
type UserSpec struct {
	ID       string
	Name     string
	Email    string
	Password string
	Role     auth.Role
	// RoleClaim is the raw role value placed in tokens, e.g. "LibraryStaff".
	RoleClaim string
}

type user struct {
	identity     auth.Identity
	roleClaim    string
	passwordHash string
}

type resetTicket struct {
	code      int
	expiresAt time.Time
	attempts  int
}

// Server is the development backend.
type Server struct {
	app *fiber.App

	mu      sync.Mutex
	users   map[string]*user
	tickets map[string]*resetTicket

	signingKey  []byte
	issuer      string
	tokenTTL    time.Duration
	codeTTL     time.Duration
	maxAttempts int
	bcryptCost  int
	notifier    CodeNotifier
	generate    func() (int, error)
	logger      auth.Logger
	now         func() time.Time
}

// Option customizes the server
type Option func(*Server)

// WithSigningKey sets the HS256 key used for issued tokens. Required.
func WithSigningKey(key []byte) Option {
	return func(s *Server) {
		s.signingKey = key
	}
}

// WithIssuer sets the iss claim of issued tokens.
func WithIssuer(issuer string) Option {
	return func(s *Server) {
		s.issuer = issuer
	}
}

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Server) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// WithCodeTTL sets how long a verification code stays valid.
func WithCodeTTL(ttl time.Duration) Option {
	return func(s *Server) {
		if ttl > 0 {
			s.codeTTL = ttl
		}
	}
}

// WithMaxAttempts bounds wrong codes per ticket before it is revoked.
func WithMaxAttempts(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithBcryptCost sets the cost used to hash passwords.
func WithBcryptCost(cost int) Option {
	return func(s *Server) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
	}
}

// WithCodeNotifier replaces the logging notifier.
func WithCodeNotifier(notifier CodeNotifier) Option {
	return func(s *Server) {
		if notifier != nil {
			s.notifier = notifier
		}
	}
}

// WithCodeGenerator replaces the random code source (useful for tests).
func WithCodeGenerator(generate func() (int, error)) Option {
	return func(s *Server) {
		if generate != nil {
			s.generate = generate
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger auth.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLoggerProvider resolves the "auth.devserver" logger.
func WithLoggerProvider(provider auth.LoggerProvider) Option {
	return func(s *Server) {
		_, s.logger = auth.ResolveLogger("auth.devserver", provider, s.logger)
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.now = clock
		}
	}
}

// New builds the server and registers its routes.
func New(opts ...Option) (*Server, error) {
	s := &Server{
		users:       make(map[string]*user),
		tickets:     make(map[string]*resetTicket),
		tokenTTL:    defaultTokenTTL,
		codeTTL:     defaultCodeTTL,
		maxAttempts: defaultMaxAttempts,
		bcryptCost:  bcrypt.DefaultCost,
		generate:    randomCode,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if len(s.signingKey) == 0 {
		return nil, goerrors.New("dev server signing key is required", goerrors.CategoryBadInput)
	}
	if s.logger == nil {
		_, s.logger = auth.ResolveLogger("auth.devserver", nil, nil)
	}
	if s.notifier == nil {
		s.notifier = CodeNotifierFunc(func(_ context.Context, email, code string) error {
			s.logger.Info("verification code issued", "email", email, "code", code)
			return nil
		})
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "authctl dev backend",
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})
	s.app.Post(RouteLogin, s.login)
	s.app.Post(RouteForgotPassword, s.forgotPassword)
	s.app.Post(RouteResetPassword, s.resetPassword)

	return s, nil
}

// App exposes the fiber app, e.g. for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("dev backend listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// AddUser seeds an account.
func (s *Server) AddUser(spec UserSpec) error {
	email := normalizeEmail(spec.Email)
	err := validation.Errors{
		"id":       validation.Validate(spec.ID, validation.Required),
		"email":    validation.Validate(email, validation.Required, is.Email),
		"password": validation.Validate(spec.Password, validation.Required),
	}.Filter()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid user")
	}

	hash, err := hashPassword(spec.Password, s.bcryptCost)
	if err != nil {
		return err
	}

	role := spec.Role
	if !role.IsValid() {
		role = auth.RoleStudent
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[email] = &user{
		identity: auth.Identity{
			ID:    spec.ID,
			Name:  spec.Name,
			Email: email,
			Role:  role,
		},
		roleClaim:    spec.RoleClaim,
		passwordHash: hash,
	}
	return nil
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// LoginResponse is returned on successful login
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ForgotPasswordRequest payload
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// Validate will run validation rules
func (r ForgotPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// ResetPasswordRequest payload
type ResetPasswordRequest struct {
	Email       string `json:"email"`
	Code        int    `json:"code"`
	NewPassword string `json:"newPassword"`
}

// Validate will run validation rules
func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Code, validation.Min(0), validation.Max(99_999_999)),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(auth.MinPasswordLength, auth.MaxPasswordLength)),
	)
}

func (s *Server) login(c *fiber.Ctx) error {
	payload := new(LoginRequest)
	if err := bindAndValidate(c, payload); err != nil {
		return err
	}

	s.mu.Lock()
	u, ok := s.users[normalizeEmail(payload.Identifier)]
	var hash string
	if ok {
		hash = u.passwordHash
	}
	s.mu.Unlock()

	if !ok || comparePassword(payload.Password, hash) != nil {
		s.logger.Debug("login rejected", "identifier", payload.Identifier)
		return invalidCredentials()
	}

	token, expiresAt, err := auth.MintDevToken(u.identity, auth.DevTokenOptions{
		SigningKey: s.signingKey,
		TTL:        s.tokenTTL,
		Issuer:     s.issuer,
		IssuedAt:   s.now(),
		RoleClaim:  u.roleClaim,
	})
	if err != nil {
		return err
	}

	s.logger.Info("login", "user_id", u.identity.ID, "role", u.identity.Role.String())
	return c.JSON(LoginResponse{Token: token, ExpiresAt: expiresAt})
}

func (s *Server) forgotPassword(c *fiber.Ctx) error {
	payload := new(ForgotPasswordRequest)
	if err := bindAndValidate(c, payload); err != nil {
		return err
	}
	email := normalizeEmail(payload.Email)

	s.mu.Lock()
	_, ok := s.users[email]
	s.mu.Unlock()
	if !ok {
		return goerrors.New("account not found", goerrors.CategoryNotFound).
			WithTextCode(TextCodeAccountNotFound).
			WithCode(goerrors.CodeNotFound)
	}

	code, err := s.generate()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification code")
	}

	s.mu.Lock()
	s.tickets[email] = &resetTicket{code: code, expiresAt: s.now().Add(s.codeTTL)}
	s.mu.Unlock()

	formatted := fmt.Sprintf("%0*d", verificationDigits, code)
	if err := s.notifier.NotifyCode(c.UserContext(), email, formatted); err != nil {
		s.logger.Warn("verification code delivery failed", "email", email, "error", err)
	}

	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) resetPassword(c *fiber.Ctx) error {
	payload := new(ResetPasswordRequest)
	if err := bindAndValidate(c, payload); err != nil {
		return err
	}
	email := normalizeEmail(payload.Email)

	s.mu.Lock()
	u, userOK := s.users[email]
	ticket, ticketOK := s.tickets[email]
	if !userOK || !ticketOK {
		s.mu.Unlock()
		return invalidCode()
	}
	if s.now().After(ticket.expiresAt) {
		delete(s.tickets, email)
		s.mu.Unlock()
		return goerrors.New("verification code expired", goerrors.CategoryValidation).
			WithTextCode(TextCodeCodeExpired).
			WithCode(goerrors.CodeBadRequest)
	}
	if ticket.code != payload.Code {
		ticket.attempts++
		if ticket.attempts >= s.maxAttempts {
			delete(s.tickets, email)
			s.mu.Unlock()
			return goerrors.New("too many attempts", goerrors.CategoryRateLimit).
				WithTextCode(TextCodeTooManyAttempts).
				WithCode(fiber.StatusTooManyRequests)
		}
		s.mu.Unlock()
		return invalidCode()
	}
	delete(s.tickets, email)
	s.mu.Unlock()

	hash, err := hashPassword(payload.NewPassword, s.bcryptCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	u.passwordHash = hash
	s.mu.Unlock()

	s.logger.Info("password reset", "user_id", u.identity.ID)
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		var fiberErr *fiber.Error
		if goerrors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
		}
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = fiber.StatusInternalServerError
	}

	s.logger.Debug("request failed",
		"path", c.Path(),
		"status", status,
		"error", richErr.Message,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	return c.Status(status).JSON(fiber.Map{
		"error": richErr.Message,
		"code":  richErr.TextCode,
	})
}

type validatable interface {
	Validate() error
}

func bindAndValidate(c *fiber.Ctx, payload validatable) error {
	if err := c.BodyParser(payload); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse body").
			WithTextCode(TextCodeInvalidPayload).
			WithCode(goerrors.CodeBadRequest)
	}
	if err := payload.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()).
			WithTextCode(TextCodeInvalidPayload).
			WithCode(goerrors.CodeBadRequest)
	}
	return nil
}

func invalidCredentials() error {
	return goerrors.New("invalid credentials", goerrors.CategoryAuth).
		WithTextCode(TextCodeInvalidCredentials).
		WithCode(goerrors.CodeUnauthorized)
}

func invalidCode() error {
	return goerrors.New("invalid verification code", goerrors.CategoryValidation).
		WithTextCode(TextCodeInvalidCode).
		WithCode(goerrors.CodeBadRequest)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func randomCode() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(verificationModulus))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
