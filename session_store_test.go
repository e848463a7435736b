package auth_test

import (
	"testing"

	auth "github.com/goliatone/go-auth-client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStoreStartsAnonymous(t *testing.T) {
	store := auth.NewSessionStore()

	identity, ok := store.Current()
	assert.False(t, ok)
	assert.Equal(t, auth.Identity{}, identity)
}

func TestSessionStoreEstablishReplaces(t *testing.T) {
	store := auth.NewSessionStore()

	store.Establish(auth.Identity{ID: "a", Name: "Alice", Role: auth.RoleAdmin})
	store.Establish(auth.Identity{ID: "b", Role: auth.RoleStudent})

	identity, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, auth.Identity{ID: "b", Role: auth.RoleStudent}, identity)
}

func TestSessionStoreClear(t *testing.T) {
	store := auth.NewSessionStore()
	store.Establish(auth.Identity{ID: "a"})

	store.Clear()
	_, ok := store.Current()
	assert.False(t, ok)

	// clearing an anonymous store is allowed
	store.Clear()
	_, ok = store.Current()
	assert.False(t, ok)
}

func TestSessionStoreSignals(t *testing.T) {
	store := auth.NewSessionStore()
	recorder := &signalRecorder{}
	store.Subscribe(recorder.handle)

	store.Establish(auth.Identity{ID: "a"})
	store.Establish(auth.Identity{ID: "b"})
	store.Clear()
	store.Clear()

	assert.Equal(t, []auth.SignalKind{
		auth.SignalLogin,
		auth.SignalLogin,
		auth.SignalLogout,
		auth.SignalLogout,
	}, recorder.received())
}

func TestSessionStoreHandlersObserveNewState(t *testing.T) {
	store := auth.NewSessionStore()

	var seen []bool
	store.Subscribe(func(auth.Signal) {
		_, ok := store.Current()
		seen = append(seen, ok)
	})

	store.Establish(auth.Identity{ID: "a"})
	store.Clear()

	assert.Equal(t, []bool{true, false}, seen)
}

func TestSessionStoreHandlerMayReenter(t *testing.T) {
	store := auth.NewSessionStore()

	store.Subscribe(func(auth.Signal) {
		store.Clear()
	}, auth.SignalLogin)

	assert.NotPanics(t, func() {
		store.Establish(auth.Identity{ID: "a"})
	})
	_, ok := store.Current()
	assert.False(t, ok)
}

func TestSessionStoreNoReplayAndUnsubscribe(t *testing.T) {
	store := auth.NewSessionStore()
	store.Establish(auth.Identity{ID: "a"})

	recorder := &signalRecorder{}
	unsubscribe := store.Subscribe(recorder.handle)
	assert.Empty(t, recorder.received())

	unsubscribe()
	store.Clear()
	assert.Empty(t, recorder.received())
}

func TestSessionStoreIsolatesPanickingSubscriber(t *testing.T) {
	bus := auth.NewSignalBus(auth.WithSignalBusLogger(testLogger{}))
	store := auth.NewSessionStore(auth.WithSessionStoreBus(bus))

	store.Subscribe(func(auth.Signal) { panic("subscriber failure") })
	recorder := &signalRecorder{}
	store.Subscribe(recorder.handle)

	assert.NotPanics(t, func() {
		store.Establish(auth.Identity{ID: "a"})
	})
	assert.Equal(t, []auth.SignalKind{auth.SignalLogin}, recorder.received())

	_, ok := store.Current()
	assert.True(t, ok)
}

func TestSessionStoresAreIndependent(t *testing.T) {
	first := auth.NewSessionStore()
	second := auth.NewSessionStore()

	first.Establish(auth.Identity{ID: "a"})

	_, ok := second.Current()
	assert.False(t, ok)
}

func TestBusOfSharedBus(t *testing.T) {
	bus := auth.NewSignalBus(auth.WithSignalBusLogger(testLogger{}))
	store := auth.NewSessionStore(auth.WithSessionStoreBus(bus))

	got, ok := auth.BusOf(store)
	require.True(t, ok)
	assert.Same(t, bus, got)

	recorder := &signalRecorder{}
	store.Subscribe(recorder.handle, auth.SignalCredentialChanged)
	bus.Publish(auth.Signal{Kind: auth.SignalCredentialChanged})
	assert.Equal(t, []auth.SignalKind{auth.SignalCredentialChanged}, recorder.received())
}
