package auth

import (
	"slices"
	"sync"
	"time"
)

// SignalKind names a session notification. Signals carry no identity
// payload: receivers re-check the session instead of trusting the signal.
type SignalKind string

const (
	// SignalLogin is raised after an identity was established
	SignalLogin SignalKind = "auth:login"
	// SignalLogout is raised after the session was cleared
	SignalLogout SignalKind = "auth:logout"
	// SignalCredentialChanged is raised when the stored credential changed
	// outside this process (another tab, another process).
	SignalCredentialChanged SignalKind = "auth:credential-changed"
)

// AllSignalKinds lists every kind in a stable order
func AllSignalKinds() []SignalKind {
	return []SignalKind{SignalLogin, SignalLogout, SignalCredentialChanged}
}

// IsValid reports whether k is a known kind
func (k SignalKind) IsValid() bool {
	switch k {
	case SignalLogin, SignalLogout, SignalCredentialChanged:
		return true
	default:
		return false
	}
}

// Signal is a single notification
type Signal struct {
	Kind       SignalKind
	OccurredAt time.Time
}

// SignalHandler receives signals. It must not block for long; delivery is
// synchronous with the publisher.
type SignalHandler func(Signal)

// SignalBus is a fire-and-forget pub/sub channel for session signals.
type SignalBus interface {
	Publish(signal Signal)
	// Subscribe registers handler for kinds (all kinds when none given) and
	// returns an idempotent unsubscribe func.
	Subscribe(handler SignalHandler, kinds ...SignalKind) (unsubscribe func())
}

// SignalBusOption customizes the in-process bus
type SignalBusOption func(*signalBus)

// WithSignalBusLogger sets the logger used to report handler panics.
func WithSignalBusLogger(logger Logger) SignalBusOption {
	return func(b *signalBus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithSignalBusLoggerProvider resolves the "auth.signals" logger.
func WithSignalBusLoggerProvider(provider LoggerProvider) SignalBusOption {
	return func(b *signalBus) {
		_, b.logger = ResolveLogger("auth.signals", provider, b.logger)
	}
}

// NewSignalBus returns an in-process bus. Subscribers registered after a
// publish never see it: there is no replay.
func NewSignalBus(opts ...SignalBusOption) SignalBus {
	b := &signalBus{
		subs:   make(map[uint64]*subscription),
		logger: defaultLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

type subscription struct {
	handler SignalHandler
	kinds   map[SignalKind]struct{}
}

func (s *subscription) wants(kind SignalKind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[kind]
	return ok
}

type signalBus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscription
	logger Logger
}

func (b *signalBus) Subscribe(handler SignalHandler, kinds ...SignalKind) func() {
	if handler == nil {
		return func() {}
	}

	sub := &subscription{handler: handler}
	if len(kinds) > 0 {
		sub.kinds = make(map[SignalKind]struct{}, len(kinds))
		for _, kind := range kinds {
			sub.kinds[kind] = struct{}{}
		}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

func (b *signalBus) Publish(signal Signal) {
	if signal.OccurredAt.IsZero() {
		signal.OccurredAt = time.Now()
	}

	b.mu.Lock()
	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	targets := make([]*subscription, 0, len(ids))
	for _, id := range ids {
		if sub := b.subs[id]; sub.wants(signal.Kind) {
			targets = append(targets, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range targets {
		b.deliver(sub, signal)
	}
}

func (b *signalBus) deliver(sub *subscription, signal Signal) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("signal handler panicked", "kind", string(signal.Kind), "panic", r)
		}
	}()
	sub.handler(signal)
}
