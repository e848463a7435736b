package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// ResetStage is a step of the forgot-password flow
type ResetStage string

const (
	// ResetStageIdle is the pre-initiation state, all inputs empty
	ResetStageIdle ResetStage = "idle"
	// ResetStageEmail collects the account email
	ResetStageEmail ResetStage = "email"
	// ResetStageCode collects the emailed verification code
	ResetStageCode ResetStage = "code"
	// ResetStageNewPassword collects the new password
	ResetStageNewPassword ResetStage = "newPassword"
)

const defaultResetGatewayTimeout = 10 * time.Second

// ResetSnapshot is a copy of the flow state, safe to inspect while a
// gateway call is pending and usable to resume a flow with Restore.
type ResetSnapshot struct {
	FlowID      string     `json:"flow_id,omitempty"`
	Stage       ResetStage `json:"stage"`
	Email       string     `json:"email,omitempty"`
	Code        string     `json:"code,omitempty"`
	NewPassword string     `json:"-"`
	Pending     bool       `json:"pending"`
	Generation  uint64     `json:"generation"`
}

// ResetCompletedHook runs after a successful reset, once the flow was torn
// down. It hands control back to the login surface.
type ResetCompletedHook func(ctx context.Context, email string)

// ResetFlowOption customizes the flow
type ResetFlowOption func(*ResetFlow)

// WithResetCompletedHook sets the hook called on completion.
func WithResetCompletedHook(hook ResetCompletedHook) ResetFlowOption {
	return func(f *ResetFlow) {
		f.onCompleted = hook
	}
}

// WithResetActivitySink sets the ActivitySink used to publish reset events.
func WithResetActivitySink(sink ActivitySink) ResetFlowOption {
	return func(f *ResetFlow) {
		f.activity = normalizeActivitySink(sink)
	}
}

// WithResetLogger overrides the logger.
func WithResetLogger(logger Logger) ResetFlowOption {
	return func(f *ResetFlow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithResetLoggerProvider resolves the "auth.reset_flow" logger.
func WithResetLoggerProvider(provider LoggerProvider) ResetFlowOption {
	return func(f *ResetFlow) {
		_, f.logger = ResolveLogger("auth.reset_flow", provider, f.logger)
	}
}

// WithResetClock injects a custom clock (useful for tests).
func WithResetClock(clock func() time.Time) ResetFlowOption {
	return func(f *ResetFlow) {
		if clock != nil {
			f.now = clock
		}
	}
}

// WithResetGatewayTimeout bounds each gateway call.
func WithResetGatewayTimeout(timeout time.Duration) ResetFlowOption {
	return func(f *ResetFlow) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

// ResetFlow sequences the forgot-password interaction:
// idle -> email -> code -> newPassword -> completed (back to idle).
//
// A failed step leaves stage and inputs untouched so it can be retried.
// Cancel tears the flow down from any state; every cancel starts a new
// generation and results of calls issued by an older generation are
// discarded.
type ResetFlow struct {
	mu          sync.Mutex
	gateway     ResetGateway
	transitions map[ResetStage]map[ResetStage]struct{}

	flowID      string
	stage       ResetStage
	email       string
	code        string
	numericCode int
	newPassword string
	pending     bool
	generation  uint64

	onCompleted ResetCompletedHook
	activity    ActivitySink
	logger      Logger
	now         func() time.Time
	timeout     time.Duration
}

// NewResetFlow returns an idle flow using gateway for the backend calls.
func NewResetFlow(gateway ResetGateway, opts ...ResetFlowOption) *ResetFlow {
	f := &ResetFlow{
		gateway: gateway,
		transitions: map[ResetStage]map[ResetStage]struct{}{
			ResetStageIdle: {
				ResetStageEmail: {},
			},
			ResetStageEmail: {
				ResetStageCode: {},
			},
			ResetStageCode: {
				ResetStageNewPassword: {},
			},
			ResetStageNewPassword: {
				ResetStageCode: {},
			},
		},
		stage:    ResetStageIdle,
		activity: noopActivitySink{},
		logger:   defaultLogger(),
		now:      time.Now,
		timeout:  defaultResetGatewayTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Stage returns the current stage
func (f *ResetFlow) Stage() ResetStage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stage
}

// Snapshot copies the current state
func (f *ResetFlow) Snapshot() ResetSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// Start initiates recovery, moving idle to email.
func (f *ResetFlow) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.transitionLocked(ResetStageEmail); err != nil {
		return err
	}
	f.flowID = uuid.NewString()
	f.generation++
	return nil
}

// SubmitEmail requests a verification code for email. On success the flow
// moves to the code stage; on failure it stays with the email retained.
func (f *ResetFlow) SubmitEmail(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)

	f.mu.Lock()
	if err := f.guardLocked(ResetStageEmail); err != nil {
		f.mu.Unlock()
		return err
	}
	f.email = email
	if err := validateResetEmail(email); err != nil {
		f.mu.Unlock()
		return err
	}
	generation := f.beginLocked()
	f.mu.Unlock()

	err := f.call(ctx, func(ctx context.Context) error {
		return f.gateway.RequestResetCode(ctx, email)
	})

	f.mu.Lock()
	if stale := f.finishLocked(generation); stale != nil {
		f.mu.Unlock()
		f.logger.Debug("discarding stale reset code request", "email", email)
		return stale
	}
	if err != nil {
		f.mu.Unlock()
		f.logger.Warn("password reset code request failed", "error", err)
		return gatewayError(err, "failed to request verification code")
	}
	if err := f.transitionLocked(ResetStageCode); err != nil {
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()

	f.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventPasswordResetRequested,
		Metadata:  map[string]any{"email": email},
	})
	return nil
}

// SubmitCode checks the code format locally and advances to newPassword.
// The backend verifies the code itself when the new password is submitted.
func (f *ResetFlow) SubmitCode(code string) error {
	code = strings.TrimSpace(code)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guardLocked(ResetStageCode); err != nil {
		return err
	}
	f.code = code

	n, err := parseResetCode(code)
	if err != nil {
		return err
	}
	f.numericCode = n
	return f.transitionLocked(ResetStageNewPassword)
}

// SubmitNewPassword confirms the reset with email, code and password. An
// empty confirmation skips the match check. Success tears the flow down and
// runs the completion hook.
func (f *ResetFlow) SubmitNewPassword(ctx context.Context, password, confirmation string) error {
	f.mu.Lock()
	if err := f.guardLocked(ResetStageNewPassword); err != nil {
		f.mu.Unlock()
		return err
	}
	f.newPassword = password
	if err := validateNewPassword(password, confirmation); err != nil {
		f.mu.Unlock()
		return err
	}
	email, code := f.email, f.numericCode
	generation := f.beginLocked()
	f.mu.Unlock()

	err := f.call(ctx, func(ctx context.Context) error {
		return f.gateway.ConfirmReset(ctx, email, code, password)
	})

	f.mu.Lock()
	if stale := f.finishLocked(generation); stale != nil {
		f.mu.Unlock()
		f.logger.Debug("discarding stale reset confirmation", "email", email)
		return stale
	}
	if err != nil {
		f.mu.Unlock()
		f.logger.Warn("password reset confirmation failed", "error", err)
		return gatewayError(err, "failed to reset password")
	}
	f.teardownLocked()
	hook := f.onCompleted
	f.mu.Unlock()

	f.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Metadata:  map[string]any{"email": email},
	})

	if hook != nil {
		hook(ctx, email)
	}
	return nil
}

// Back steps from newPassword to code, keeping the entered code. It is a
// UI convenience; Cancel is the canonical way out.
func (f *ResetFlow) Back() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pending {
		return ErrResetInFlight
	}
	if f.stage != ResetStageNewPassword {
		return ErrInvalidResetTransition
	}
	f.newPassword = ""
	return f.transitionLocked(ResetStageCode)
}

// Cancel returns to idle from any state, clearing every input. A pending
// gateway call keeps running but its result is ignored.
func (f *ResetFlow) Cancel() {
	f.mu.Lock()
	wasActive := f.stage != ResetStageIdle
	email := f.email
	f.teardownLocked()
	f.mu.Unlock()

	if wasActive {
		f.recordActivity(context.Background(), ActivityEvent{
			EventType: ActivityEventPasswordResetCancelled,
			Metadata:  map[string]any{"email": email},
		})
	}
}

// Restore resumes a flow from a snapshot. The flow must be idle; the
// snapshot inputs are validated against its stage and the restored flow
// starts a new generation.
func (f *ResetFlow) Restore(snapshot ResetSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stage != ResetStageIdle || f.pending {
		return ErrInvalidResetTransition
	}

	var numericCode int
	switch snapshot.Stage {
	case ResetStageIdle:
		return nil
	case ResetStageEmail:
	case ResetStageCode:
		if err := validateResetEmail(snapshot.Email); err != nil {
			return err
		}
	case ResetStageNewPassword:
		if err := validateResetEmail(snapshot.Email); err != nil {
			return err
		}
		n, err := parseResetCode(snapshot.Code)
		if err != nil {
			return err
		}
		numericCode = n
	default:
		return ErrInvalidResetTransition
	}

	f.flowID = snapshot.FlowID
	if f.flowID == "" {
		f.flowID = uuid.NewString()
	}
	f.stage = snapshot.Stage
	f.email = snapshot.Email
	f.code = snapshot.Code
	f.numericCode = numericCode
	f.newPassword = ""
	f.generation++
	return nil
}

func (f *ResetFlow) call(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("password reset gateway panicked", "panic", r)
			err = goerrors.New("password reset gateway failed", goerrors.CategoryInternal).
				WithTextCode(TextCodeResetGatewayFailure).
				WithCode(goerrors.CodeInternal).
				WithMetadata(map[string]any{"panic": fmt.Sprint(r)})
		}
	}()

	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset",
		)
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if f.gateway == nil {
		return goerrors.New("password reset gateway is not configured", goerrors.CategoryInternal)
	}
	return fn(ctx)
}

func (f *ResetFlow) guardLocked(stage ResetStage) error {
	if f.pending {
		return ErrResetInFlight
	}
	if f.stage != stage {
		return ErrInvalidResetTransition
	}
	return nil
}

func (f *ResetFlow) beginLocked() uint64 {
	f.pending = true
	return f.generation
}

// finishLocked clears the pending flag, unless the flow moved on to a newer
// generation while the call was running.
func (f *ResetFlow) finishLocked(generation uint64) error {
	if generation != f.generation {
		return ErrStaleResetResult
	}
	f.pending = false
	return nil
}

func (f *ResetFlow) transitionLocked(to ResetStage) error {
	if allowed, ok := f.transitions[f.stage]; ok {
		if _, exists := allowed[to]; exists {
			f.stage = to
			return nil
		}
	}
	return ErrInvalidResetTransition
}

func (f *ResetFlow) teardownLocked() {
	f.flowID = ""
	f.stage = ResetStageIdle
	f.email = ""
	f.code = ""
	f.numericCode = 0
	f.newPassword = ""
	f.pending = false
	f.generation++
}

func (f *ResetFlow) snapshotLocked() ResetSnapshot {
	return ResetSnapshot{
		FlowID:      f.flowID,
		Stage:       f.stage,
		Email:       f.email,
		Code:        f.code,
		NewPassword: f.newPassword,
		Pending:     f.pending,
		Generation:  f.generation,
	}
}

func (f *ResetFlow) recordActivity(ctx context.Context, event ActivityEvent) {
	recordActivity(ctx, f.activity, f.logger, f.now, event)
}

func gatewayError(err error, message string) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryOperation, message).
		WithTextCode(TextCodeResetGatewayFailure)
}
