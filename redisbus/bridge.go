// Package redisbus relays session signals between processes over a redis
// pub/sub channel.
package redisbus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	auth "github.com/goliatone/go-auth-client"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the redis channel used when none is configured
const DefaultChannel = "auth:signals"

const outboxSize = 16

// Message is the wire format published on the channel.
type Message struct {
	Kind       auth.SignalKind `json:"kind"`
	Origin     string          `json:"origin"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Bridge forwards local SignalLogin and SignalLogout to redis and
// republishes messages from other origins as SignalCredentialChanged.
// A process never reacts to its own messages.
type Bridge struct {
	client  redis.UniversalClient
	bus     auth.SignalBus
	channel string
	origin  string
	logger  auth.Logger
	now     func() time.Time
	ready   chan struct{}
	once    sync.Once
}

// Option customizes the bridge
type Option func(*Bridge)

// WithChannel sets the redis channel name.
func WithChannel(channel string) Option {
	return func(b *Bridge) {
		if channel != "" {
			b.channel = channel
		}
	}
}

// WithOrigin sets the identifier stamped on outgoing messages.
func WithOrigin(origin string) Option {
	return func(b *Bridge) {
		if origin != "" {
			b.origin = origin
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger auth.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithLoggerProvider resolves the "auth.redisbus" logger.
func WithLoggerProvider(provider auth.LoggerProvider) Option {
	return func(b *Bridge) {
		_, b.logger = auth.ResolveLogger("auth.redisbus", provider, b.logger)
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(b *Bridge) {
		if clock != nil {
			b.now = clock
		}
	}
}

// New creates a bridge between bus and client. Call Run to start it.
func New(client redis.UniversalClient, bus auth.SignalBus, opts ...Option) *Bridge {
	b := &Bridge{
		client:  client,
		bus:     bus,
		channel: DefaultChannel,
		origin:  uuid.NewString(),
		now:     time.Now,
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	if b.logger == nil {
		_, b.logger = auth.ResolveLogger("auth.redisbus", nil, nil)
	}
	return b
}

// Origin identifies this process on the channel
func (b *Bridge) Origin() string {
	return b.origin
}

// Ready is closed once the redis subscription is confirmed.
func (b *Bridge) Ready() <-chan struct{} {
	return b.ready
}

// Announce publishes kind on the channel directly.
func (b *Bridge) Announce(ctx context.Context, kind auth.SignalKind) error {
	if !kind.IsValid() {
		return goerrors.New("unknown signal kind", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"kind": string(kind)})
	}

	payload, err := json.Marshal(Message{
		Kind:       kind,
		Origin:     b.origin,
		OccurredAt: b.now().UTC(),
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode signal")
	}

	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to publish signal")
	}
	return nil
}

// Run relays signals until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to subscribe to signal channel")
	}

	outbox := make(chan auth.SignalKind, outboxSize)
	unsubscribe := b.bus.Subscribe(func(signal auth.Signal) {
		select {
		case outbox <- signal.Kind:
		default:
			b.logger.Warn("signal outbox full, dropping", "kind", string(signal.Kind))
		}
	}, auth.SignalLogin, auth.SignalLogout)
	defer unsubscribe()

	b.once.Do(func() { close(b.ready) })
	b.logger.Debug("signal bridge running", "channel", b.channel, "origin", b.origin)

	incoming := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case kind := <-outbox:
			if err := b.Announce(ctx, kind); err != nil {
				b.logger.Warn("signal bridge publish failed", "kind", string(kind), "error", err)
			}
		case msg, ok := <-incoming:
			if !ok {
				return goerrors.New("signal channel closed", goerrors.CategoryOperation)
			}
			b.receive(msg.Payload)
		}
	}
}

func (b *Bridge) receive(payload string) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		b.logger.Warn("signal bridge ignored malformed message", "error", err)
		return
	}
	if msg.Origin == b.origin {
		return
	}
	if !msg.Kind.IsValid() {
		b.logger.Debug("signal bridge ignored unknown kind", "kind", string(msg.Kind))
		return
	}

	occurredAt := msg.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = b.now()
	}
	b.bus.Publish(auth.Signal{Kind: auth.SignalCredentialChanged, OccurredAt: occurredAt})
}
