package auth

import (
	"sync"
	"time"
)

// SessionStore holds at most one Identity. It is created empty and only
// Establish and Clear mutate it; consumers observe changes through
// Subscribe rather than polling.
type SessionStore interface {
	Current() (Identity, bool)
	// Establish replaces the current identity, no merging, and raises SignalLogin.
	Establish(identity Identity)
	// Clear drops the identity unconditionally and raises SignalLogout.
	Clear()
	Subscribe(handler SignalHandler, kinds ...SignalKind) (unsubscribe func())
}

// SessionStoreOption customizes the store
type SessionStoreOption func(*sessionStore)

// WithSessionStoreBus publishes on an existing bus, so the store can share
// a channel with bridges and watchers.
func WithSessionStoreBus(bus SignalBus) SessionStoreOption {
	return func(s *sessionStore) {
		if bus != nil {
			s.bus = bus
		}
	}
}

// WithSessionStoreClock injects a custom clock (useful for tests).
func WithSessionStoreClock(clock func() time.Time) SessionStoreOption {
	return func(s *sessionStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewSessionStore creates an anonymous store. Pass the returned handle to
// every surface that needs the session; there is no package-level instance.
func NewSessionStore(opts ...SessionStoreOption) SessionStore {
	s := &sessionStore{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.bus == nil {
		s.bus = NewSignalBus()
	}
	return s
}

type sessionStore struct {
	mu       sync.RWMutex
	identity *Identity
	bus      SignalBus
	now      func() time.Time
}

func (s *sessionStore) Current() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return Identity{}, false
	}
	return *s.identity, true
}

func (s *sessionStore) Establish(identity Identity) {
	s.mu.Lock()
	held := identity
	s.identity = &held
	s.mu.Unlock()

	s.bus.Publish(Signal{Kind: SignalLogin, OccurredAt: s.now()})
}

func (s *sessionStore) Clear() {
	s.mu.Lock()
	s.identity = nil
	s.mu.Unlock()

	s.bus.Publish(Signal{Kind: SignalLogout, OccurredAt: s.now()})
}

func (s *sessionStore) Subscribe(handler SignalHandler, kinds ...SignalKind) func() {
	return s.bus.Subscribe(handler, kinds...)
}

// Bus exposes the channel the store publishes on.
func (s *sessionStore) Bus() SignalBus {
	return s.bus
}

// BusOf returns the SignalBus a store publishes on, if it exposes one.
func BusOf(store SessionStore) (SignalBus, bool) {
	carrier, ok := store.(interface{ Bus() SignalBus })
	if !ok {
		return nil, false
	}
	return carrier.Bus(), true
}
