package auth

import (
	"context"
	"time"
)

const defaultWatchInterval = 2 * time.Second

// CredentialWatcher polls a shared credential store and raises
// SignalCredentialChanged whenever its version moves. It stands in for the
// browser storage event when several processes share one store.
type CredentialWatcher struct {
	store    VersionedCredentialStore
	bus      SignalBus
	interval time.Duration
	logger   Logger
	now      func() time.Time
}

// CredentialWatcherOption customizes the watcher
type CredentialWatcherOption func(*CredentialWatcher)

// WithWatchInterval sets the polling interval.
func WithWatchInterval(interval time.Duration) CredentialWatcherOption {
	return func(w *CredentialWatcher) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithWatcherLogger overrides the logger.
func WithWatcherLogger(logger Logger) CredentialWatcherOption {
	return func(w *CredentialWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithWatcherLoggerProvider resolves the "auth.credential_watcher" logger.
func WithWatcherLoggerProvider(provider LoggerProvider) CredentialWatcherOption {
	return func(w *CredentialWatcher) {
		_, w.logger = ResolveLogger("auth.credential_watcher", provider, w.logger)
	}
}

// NewCredentialWatcher publishes on bus.
func NewCredentialWatcher(store VersionedCredentialStore, bus SignalBus, opts ...CredentialWatcherOption) *CredentialWatcher {
	w := &CredentialWatcher{
		store:    store,
		bus:      bus,
		interval: defaultWatchInterval,
		logger:   defaultLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Run polls until ctx is done. The first successful read only sets the
// baseline; nothing is published for state that existed before Run.
func (w *CredentialWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	last, known := w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			version, ok := w.poll(ctx)
			if !ok {
				continue
			}
			if known && version != last {
				w.logger.Debug("credential changed", "from", last, "to", version)
				w.bus.Publish(Signal{Kind: SignalCredentialChanged, OccurredAt: w.now()})
			}
			last, known = version, true
		}
	}
}

func (w *CredentialWatcher) poll(ctx context.Context) (int64, bool) {
	version, err := w.store.Version(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("credential watcher poll", "error", err)
		}
		return 0, false
	}
	return version, true
}
