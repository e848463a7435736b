package auth_test

import (
	"context"
	"testing"
	"time"

	auth "github.com/goliatone/go-auth-client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialWatcherPublishesOnVersionChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	credentials := auth.NewMemoryCredentialStore()
	require.NoError(t, credentials.Save(ctx, "existing"))

	bus := auth.NewSignalBus(auth.WithSignalBusLogger(testLogger{}))
	recorder := &signalRecorder{}
	bus.Subscribe(recorder.handle)

	watcher := auth.NewCredentialWatcher(credentials, bus,
		auth.WithWatchInterval(5*time.Millisecond),
		auth.WithWatcherLogger(testLogger{}),
	)

	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	// state present before Run is the baseline
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, recorder.received())

	require.NoError(t, credentials.Save(ctx, "rotated"))
	assert.Eventually(t, func() bool {
		return len(recorder.received()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []auth.SignalKind{auth.SignalCredentialChanged}, recorder.received())

	require.NoError(t, credentials.Delete(ctx))
	assert.Eventually(t, func() bool {
		return len(recorder.received()) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestCredentialWatcherDrivesSessionManager(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	credentials := auth.NewMemoryCredentialStore()
	bus := auth.NewSignalBus(auth.WithSignalBusLogger(testLogger{}))
	store := auth.NewSessionStore(auth.WithSessionStoreBus(bus))
	manager := newTestManager(credentials, auth.WithSessionStore(store))

	watcher := auth.NewCredentialWatcher(credentials, bus,
		auth.WithWatchInterval(5*time.Millisecond),
		auth.WithWatcherLogger(testLogger{}),
	)

	go func() { _ = manager.Watch(ctx) }()
	go func() { _ = watcher.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, credentials.Save(ctx, liveToken(t, "5", "Admin")))

	assert.Eventually(t, func() bool {
		identity, ok := store.Current()
		return ok && identity.ID == "5" && identity.Role == auth.RoleAdmin
	}, time.Second, 5*time.Millisecond)
}
