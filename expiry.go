package auth

import (
	"math"
	"time"
)

// ExpiryClaimKey holds the expiration as seconds since epoch
const ExpiryClaimKey = "exp"

// ExpiryOracle answers liveness questions about a ClaimSet. Nothing is
// cached: every call reads the clock again.
type ExpiryOracle struct {
	now    func() time.Time
	leeway time.Duration
}

// ExpiryOption customizes an ExpiryOracle
type ExpiryOption func(*ExpiryOracle)

// WithExpiryClock injects a custom clock (useful for tests).
func WithExpiryClock(clock func() time.Time) ExpiryOption {
	return func(o *ExpiryOracle) {
		if clock != nil {
			o.now = clock
		}
	}
}

// WithExpiryLeeway treats tokens as expired leeway before their exp claim.
func WithExpiryLeeway(leeway time.Duration) ExpiryOption {
	return func(o *ExpiryOracle) {
		if leeway > 0 {
			o.leeway = leeway
		}
	}
}

// NewExpiryOracle returns an oracle backed by time.Now
func NewExpiryOracle(opts ...ExpiryOption) *ExpiryOracle {
	o := &ExpiryOracle{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

var defaultExpiryOracle = NewExpiryOracle()

// IsExpired reports expiry against the wall clock
func IsExpired(claims ClaimSet) bool {
	return defaultExpiryOracle.IsExpired(claims)
}

// ExpiresAt returns the absolute expiration time
func ExpiresAt(claims ClaimSet) (time.Time, bool) {
	return defaultExpiryOracle.ExpiresAt(claims)
}

// IsExpired fails closed: a missing or unparsable exp claim is expired.
func (o *ExpiryOracle) IsExpired(claims ClaimSet) bool {
	if o == nil {
		o = defaultExpiryOracle
	}
	exp, ok := expirySeconds(claims)
	if !ok {
		return true
	}
	now := o.clock().Add(o.leeway).Unix()
	return now >= exp
}

// ExpiresAt is for display only; it returns false when exp is absent.
func (o *ExpiryOracle) ExpiresAt(claims ClaimSet) (time.Time, bool) {
	exp, ok := expirySeconds(claims)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(exp, 0), true
}

// ExpiresIn is the remaining lifetime, zero once expired.
func (o *ExpiryOracle) ExpiresIn(claims ClaimSet) time.Duration {
	if o == nil {
		o = defaultExpiryOracle
	}
	if o.IsExpired(claims) {
		return 0
	}
	exp, _ := o.ExpiresAt(claims)
	remaining := exp.Sub(o.clock().Add(o.leeway))
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (o *ExpiryOracle) clock() time.Time {
	if o.now == nil {
		return time.Now()
	}
	return o.now()
}

func expirySeconds(claims ClaimSet) (int64, bool) {
	value, ok := claims.Number(ExpiryClaimKey)
	if !ok {
		return 0, false
	}
	if value > math.MaxInt64/2 || value < math.MinInt64/2 {
		return 0, false
	}
	return int64(math.Floor(value)), true
}
