package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// SessionManager runs the token pipeline (decode, map, expiry) against the
// stored credential and keeps a SessionStore in sync with it. It re-derives
// the identity only on explicit request or on a SignalCredentialChanged.
type SessionManager struct {
	credentials CredentialStore
	store       SessionStore
	mapper      *ClaimsMapper
	expiry      *ExpiryOracle
	activity    ActivitySink
	logger      Logger
	now         func() time.Time
}

// SessionManagerOption customizes the manager
type SessionManagerOption func(*SessionManager)

// WithSessionStore shares an existing store between managers and surfaces.
func WithSessionStore(store SessionStore) SessionManagerOption {
	return func(m *SessionManager) {
		if store != nil {
			m.store = store
		}
	}
}

// WithClaimsMapper overrides the claim key lists.
func WithClaimsMapper(mapper *ClaimsMapper) SessionManagerOption {
	return func(m *SessionManager) {
		if mapper != nil {
			m.mapper = mapper
		}
	}
}

// WithExpiryOracle overrides the expiry oracle, e.g. to inject a clock.
func WithExpiryOracle(oracle *ExpiryOracle) SessionManagerOption {
	return func(m *SessionManager) {
		if oracle != nil {
			m.expiry = oracle
		}
	}
}

// WithSessionActivitySink sets the sink used to publish session events.
func WithSessionActivitySink(sink ActivitySink) SessionManagerOption {
	return func(m *SessionManager) {
		m.activity = normalizeActivitySink(sink)
	}
}

// WithSessionLogger overrides the logger.
func WithSessionLogger(logger Logger) SessionManagerOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSessionLoggerProvider resolves the "auth.session" logger.
func WithSessionLoggerProvider(provider LoggerProvider) SessionManagerOption {
	return func(m *SessionManager) {
		_, m.logger = ResolveLogger("auth.session", provider, m.logger)
	}
}

// WithSessionClock injects a custom clock (useful for tests).
func WithSessionClock(clock func() time.Time) SessionManagerOption {
	return func(m *SessionManager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// NewSessionManager wires a manager around credentials.
func NewSessionManager(credentials CredentialStore, opts ...SessionManagerOption) *SessionManager {
	m := &SessionManager{
		credentials: credentials,
		mapper:      DefaultClaimsMapper,
		activity:    noopActivitySink{},
		logger:      defaultLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.store == nil {
		m.store = NewSessionStore(WithSessionStoreClock(m.now))
	}
	if m.expiry == nil {
		m.expiry = NewExpiryOracle(WithExpiryClock(m.now))
	}
	return m
}

// Store returns the SessionStore the manager publishes to.
func (m *SessionManager) Store() SessionStore {
	return m.store
}

// Login validates token, persists it and establishes the identity.
// Unparsable tokens fail with ErrTokenUnparsable, expired ones with ErrTokenExpired.
func (m *SessionManager) Login(ctx context.Context, token string) (Identity, error) {
	claims, err := DecodeToken(token)
	if err != nil {
		m.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Metadata:  map[string]any{"reason": "unparsable"},
		})
		return Identity{}, err
	}

	if m.expiry.IsExpired(claims) {
		m.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Metadata:  map[string]any{"reason": "expired"},
		})
		return Identity{}, ErrTokenExpired
	}

	identity := m.mapper.Map(claims)

	if err := m.credentials.Save(ctx, token); err != nil {
		m.logger.Error("Login save credential", "error", err)
		return Identity{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store credential")
	}

	m.store.Establish(identity)

	m.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		UserID:    identity.ID,
		Role:      identity.Role,
	})

	return identity, nil
}

// Logout clears the stored credential and the session. Storage failures are
// logged; the in-memory session is cleared regardless.
func (m *SessionManager) Logout(ctx context.Context) {
	identity, _ := m.store.Current()

	if err := m.credentials.Delete(ctx); err != nil {
		m.logger.Warn("Logout delete credential", "error", err)
	}

	m.store.Clear()

	m.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLogout,
		UserID:    identity.ID,
		Role:      identity.Role,
	})
}

// Refresh re-derives the identity from the stored credential. A missing,
// unparsable or expired credential is the same as no session.
func (m *SessionManager) Refresh(ctx context.Context) (Identity, bool) {
	current, authenticated := m.store.Current()

	claims, ok := m.liveClaims(ctx)
	if !ok {
		if authenticated {
			m.expire(ctx, current)
		}
		return Identity{}, false
	}

	identity := m.mapper.Map(claims)
	if !authenticated || identity != current {
		m.store.Establish(identity)
	}
	return identity, true
}

// Current returns the identity only while its credential is still live;
// an expired session is cleared and reported as anonymous.
func (m *SessionManager) Current(ctx context.Context) (Identity, bool) {
	current, authenticated := m.store.Current()
	if !authenticated {
		return Identity{}, false
	}

	if _, ok := m.liveClaims(ctx); !ok {
		m.expire(ctx, current)
		return Identity{}, false
	}
	return current, true
}

// ExpiresAt reports when the stored credential expires, for display.
func (m *SessionManager) ExpiresAt(ctx context.Context) (time.Time, bool) {
	claims, ok := m.storedClaims(ctx)
	if !ok {
		return time.Time{}, false
	}
	return m.expiry.ExpiresAt(claims)
}

// Watch refreshes the session every time the credential changes outside
// this process. It blocks until ctx is done.
func (m *SessionManager) Watch(ctx context.Context) error {
	pending := make(chan struct{}, 1)
	unsubscribe := m.store.Subscribe(func(Signal) {
		select {
		case pending <- struct{}{}:
		default:
		}
	}, SignalCredentialChanged)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pending:
			m.recordActivity(ctx, ActivityEvent{EventType: ActivityEventCredentialChanged})
			if identity, ok := m.Refresh(ctx); ok {
				m.logger.Debug("session refreshed", "user_id", identity.ID, "role", identity.Role.String())
			} else {
				m.logger.Debug("session refreshed", "authenticated", false)
			}
		}
	}
}

func (m *SessionManager) liveClaims(ctx context.Context) (ClaimSet, bool) {
	claims, ok := m.storedClaims(ctx)
	if !ok || m.expiry.IsExpired(claims) {
		return nil, false
	}
	return claims, true
}

func (m *SessionManager) storedClaims(ctx context.Context) (ClaimSet, bool) {
	token, err := m.credentials.Load(ctx)
	if err != nil {
		if !IsNoCredential(err) {
			m.logger.Warn("load credential", "error", err)
		}
		return nil, false
	}

	claims, err := DecodeToken(token)
	if err != nil {
		m.logger.Debug("stored credential is unparsable", "error", err)
		return nil, false
	}
	return claims, true
}

func (m *SessionManager) expire(ctx context.Context, identity Identity) {
	m.store.Clear()
	m.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventSessionExpired,
		UserID:    identity.ID,
		Role:      identity.Role,
	})
}

func (m *SessionManager) recordActivity(ctx context.Context, event ActivityEvent) {
	recordActivity(ctx, m.activity, m.logger, m.now, event)
}
