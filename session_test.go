package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-auth-client"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var sessionNow = time.Unix(1_700_000_000, 0)

func tokenFor(t *testing.T, claims auth.ClaimSet) string {
	t.Helper()
	token, err := auth.EncodeClaims(claims)
	require.NoError(t, err)
	return token
}

func liveToken(t *testing.T, id, role string) string {
	return tokenFor(t, auth.ClaimSet{
		"UserId":   id,
		"FullName": "User " + id,
		"Role":     role,
		"exp":      sessionNow.Add(time.Hour).Unix(),
	})
}

func newTestManager(credentials auth.CredentialStore, opts ...auth.SessionManagerOption) *auth.SessionManager {
	base := []auth.SessionManagerOption{
		auth.WithSessionClock(fixedClock(sessionNow)),
		auth.WithSessionLogger(testLogger{}),
	}
	return auth.NewSessionManager(credentials, append(base, opts...)...)
}

type activityRecorder struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (r *activityRecorder) Record(_ context.Context, event auth.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *activityRecorder) types() []auth.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, event.EventType)
	}
	return out
}

func TestSessionManagerLogin(t *testing.T) {
	ctx := context.Background()
	credentials := auth.NewMemoryCredentialStore()
	activity := &activityRecorder{}
	manager := newTestManager(credentials, auth.WithSessionActivitySink(activity))

	recorder := &signalRecorder{}
	manager.Store().Subscribe(recorder.handle)

	token := liveToken(t, "42", "Admin")
	identity, err := manager.Login(ctx, token)
	require.NoError(t, err)

	assert.Equal(t, "42", identity.ID)
	assert.Equal(t, "User 42", identity.Name)
	assert.Equal(t, auth.RoleAdmin, identity.Role)

	stored, err := credentials.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, token, stored)

	current, ok := manager.Current(ctx)
	require.True(t, ok)
	assert.Equal(t, identity, current)

	assert.Equal(t, []auth.SignalKind{auth.SignalLogin}, recorder.received())
	assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventLoginSuccess}, activity.types())
	assert.Equal(t, sessionNow, activity.events[0].OccurredAt)
}

func TestSessionManagerLoginRejectsUnparsableToken(t *testing.T) {
	ctx := context.Background()
	credentials := auth.NewMemoryCredentialStore()
	activity := &activityRecorder{}
	manager := newTestManager(credentials, auth.WithSessionActivitySink(activity))

	_, err := manager.Login(ctx, "not-a-token")
	require.Error(t, err)
	assert.True(t, auth.IsUnparsable(err))

	_, ok := manager.Current(ctx)
	assert.False(t, ok)
	_, err = credentials.Load(ctx)
	assert.True(t, auth.IsNoCredential(err))
	assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventLoginFailure}, activity.types())
}

func TestSessionManagerLoginRejectsExpiredToken(t *testing.T) {
	ctx := context.Background()
	credentials := auth.NewMemoryCredentialStore()
	manager := newTestManager(credentials)

	token := tokenFor(t, auth.ClaimSet{"UserId": "1", "exp": sessionNow.Add(-time.Second).Unix()})
	_, err := manager.Login(ctx, token)
	require.Error(t, err)
	assert.True(t, auth.IsTokenExpiredError(err))

	noExp := tokenFor(t, auth.ClaimSet{"UserId": "1"})
	_, err = manager.Login(ctx, noExp)
	assert.True(t, auth.IsTokenExpiredError(err))

	_, ok := manager.Current(ctx)
	assert.False(t, ok)
}

func TestSessionManagerLoginStorageFailure(t *testing.T) {
	ctx := context.Background()
	credentials := new(MockCredentialStore)
	credentials.On("Save", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	manager := newTestManager(credentials)

	_, err := manager.Login(ctx, liveToken(t, "1", "Student"))
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryInternal, richErr.Category)

	_, ok := manager.Store().Current()
	assert.False(t, ok)
	credentials.AssertExpectations(t)
}

func TestSessionManagerLogout(t *testing.T) {
	ctx := context.Background()
	credentials := auth.NewMemoryCredentialStore()
	activity := &activityRecorder{}
	manager := newTestManager(credentials, auth.WithSessionActivitySink(activity))

	_, err := manager.Login(ctx, liveToken(t, "1", "Staff"))
	require.NoError(t, err)

	manager.Logout(ctx)

	_, ok := manager.Current(ctx)
	assert.False(t, ok)
	_, err = credentials.Load(ctx)
	assert.True(t, auth.IsNoCredential(err))

	assert.Equal(t, []auth.ActivityEventType{
		auth.ActivityEventLoginSuccess,
		auth.ActivityEventLogout,
	}, activity.types())
	assert.Equal(t, "1", activity.events[1].UserID)
}

func TestSessionManagerLogoutClearsDespiteStorageFailure(t *testing.T) {
	ctx := context.Background()
	credentials := new(MockCredentialStore)
	credentials.On("Delete", mock.Anything).Return(errors.New("locked"))

	manager := newTestManager(credentials)
	manager.Store().Establish(auth.Identity{ID: "1"})

	manager.Logout(ctx)

	_, ok := manager.Store().Current()
	assert.False(t, ok)
	credentials.AssertExpectations(t)
}

func TestSessionManagerRefresh(t *testing.T) {
	ctx := context.Background()
	credentials := auth.NewMemoryCredentialStore()
	manager := newTestManager(credentials)

	_, ok := manager.Refresh(ctx)
	assert.False(t, ok)

	require.NoError(t, credentials.Save(ctx, liveToken(t, "7", "Staff")))

	identity, ok := manager.Refresh(ctx)
	require.True(t, ok)
	assert.Equal(t, "7", identity.ID)
	assert.Equal(t, auth.RoleStaff, identity.Role)

	current, ok := manager.Store().Current()
	require.True(t, ok)
	assert.Equal(t, identity, current)
}

func TestSessionManagerRefreshIsIdempotent(t *testing.T) {
	ctx := context.Background()
	credentials := auth.NewMemoryCredentialStore()
	manager := newTestManager(credentials)

	require.NoError(t, credentials.Save(ctx, liveToken(t, "7", "Staff")))
	_, ok := manager.Refresh(ctx)
	require.True(t, ok)

	recorder := &signalRecorder{}
	manager.Store().Subscribe(recorder.handle)

	_, ok = manager.Refresh(ctx)
	require.True(t, ok)
	assert.Empty(t, recorder.received())

	require.NoError(t, credentials.Save(ctx, liveToken(t, "8", "Student")))
	identity, ok := manager.Refresh(ctx)
	require.True(t, ok)
	assert.Equal(t, "8", identity.ID)
	assert.Equal(t, []auth.SignalKind{auth.SignalLogin}, recorder.received())
}

func TestSessionManagerTreatsBadCredentialAsAnonymous(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		token string
	}{
		{name: "unparsable", token: "garbage"},
		{name: "expired", token: tokenFor(t, auth.ClaimSet{"UserId": "1", "exp": sessionNow.Add(-time.Minute).Unix()})},
		{name: "missing exp", token: tokenFor(t, auth.ClaimSet{"UserId": "1"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			credentials := auth.NewMemoryCredentialStore()
			activity := &activityRecorder{}
			manager := newTestManager(credentials, auth.WithSessionActivitySink(activity))
			manager.Store().Establish(auth.Identity{ID: "1"})

			require.NoError(t, credentials.Save(ctx, tt.token))

			_, ok := manager.Refresh(ctx)
			assert.False(t, ok)

			_, ok = manager.Store().Current()
			assert.False(t, ok)
			assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventSessionExpired}, activity.types())
		})
	}
}

func TestSessionManagerCurrentExpiresSession(t *testing.T) {
	ctx := context.Background()
	now := sessionNow
	credentials := auth.NewMemoryCredentialStore()
	manager := auth.NewSessionManager(credentials,
		auth.WithSessionClock(func() time.Time { return now }),
		auth.WithSessionLogger(testLogger{}),
	)

	_, err := manager.Login(ctx, liveToken(t, "1", "Student"))
	require.NoError(t, err)

	recorder := &signalRecorder{}
	manager.Store().Subscribe(recorder.handle)

	now = now.Add(2 * time.Hour)

	_, ok := manager.Current(ctx)
	assert.False(t, ok)
	assert.Equal(t, []auth.SignalKind{auth.SignalLogout}, recorder.received())
}

func TestSessionManagerExpiresAt(t *testing.T) {
	ctx := context.Background()
	credentials := auth.NewMemoryCredentialStore()
	manager := newTestManager(credentials)

	_, ok := manager.ExpiresAt(ctx)
	assert.False(t, ok)

	_, err := manager.Login(ctx, liveToken(t, "1", "Student"))
	require.NoError(t, err)

	at, ok := manager.ExpiresAt(ctx)
	require.True(t, ok)
	assert.Equal(t, sessionNow.Add(time.Hour).Unix(), at.Unix())
}

func TestSessionManagerWatchFollowsExternalWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	credentials := auth.NewMemoryCredentialStore()
	bus := auth.NewSignalBus(auth.WithSignalBusLogger(testLogger{}))
	store := auth.NewSessionStore(auth.WithSessionStoreBus(bus))
	manager := newTestManager(credentials, auth.WithSessionStore(store))

	done := make(chan error, 1)
	go func() { done <- manager.Watch(ctx) }()

	// another process writes a token and announces it
	require.NoError(t, credentials.Save(ctx, liveToken(t, "9", "Staff")))
	assert.Eventually(t, func() bool {
		bus.Publish(auth.Signal{Kind: auth.SignalCredentialChanged})
		identity, ok := store.Current()
		return ok && identity.ID == "9"
	}, time.Second, 10*time.Millisecond)

	// and later removes it
	require.NoError(t, credentials.Delete(ctx))
	assert.Eventually(t, func() bool {
		bus.Publish(auth.Signal{Kind: auth.SignalCredentialChanged})
		_, ok := store.Current()
		return !ok
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestSessionManagerSharedStore(t *testing.T) {
	ctx := context.Background()
	credentials := auth.NewMemoryCredentialStore()
	store := auth.NewSessionStore()

	first := newTestManager(credentials, auth.WithSessionStore(store))
	second := newTestManager(credentials, auth.WithSessionStore(store))

	_, err := first.Login(ctx, liveToken(t, "3", "Admin"))
	require.NoError(t, err)

	identity, ok := second.Current(ctx)
	require.True(t, ok)
	assert.Equal(t, "3", identity.ID)
}

func TestSessionManagerActivitySinkErrorsAreSwallowed(t *testing.T) {
	ctx := context.Background()
	sink := new(MockActivitySink)
	sink.On("Record", mock.Anything, mock.Anything).Return(errors.New("sink down"))

	manager := newTestManager(auth.NewMemoryCredentialStore(), auth.WithSessionActivitySink(sink))

	_, err := manager.Login(ctx, liveToken(t, "1", "Student"))
	assert.NoError(t, err)
	sink.AssertCalled(t, "Record", mock.Anything, mock.MatchedBy(func(event auth.ActivityEvent) bool {
		return event.EventType == auth.ActivityEventLoginSuccess && event.UserID == "1"
	}))
}
