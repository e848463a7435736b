package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DevTokenOptions controls how MintDevToken issues development tokens.
type DevTokenOptions struct {
	// SigningKey signs the token with HS256. Required.
	SigningKey []byte
	// TTL is the token lifetime. Zero uses one hour.
	TTL time.Duration
	// Issuer sets the iss claim if provided.
	Issuer string
	// IssuedAt overrides the issuance time. Zero uses time.Now().
	IssuedAt time.Time
	// RoleClaim is the raw role value, e.g. "Admin" or "LibraryStaff".
	// Empty uses the identity role.
	RoleClaim string
	// Extra claims are merged last and may override anything above.
	Extra map[string]any
}

// MintDevToken issues a signed token shaped like the library backend's:
// PascalCase identity claims plus standard sub/iat/exp. It exists for the
// development backend and tests; the client never verifies signatures.
func MintDevToken(identity Identity, opts DevTokenOptions) (string, time.Time, error) {
	if len(opts.SigningKey) == 0 {
		return "", time.Time{}, goerrors.New("signing key is required", goerrors.CategoryBadInput)
	}
	if identity.ID == "" {
		return "", time.Time{}, goerrors.New("identity id is required", goerrors.CategoryBadInput)
	}

	ttl := opts.TTL
	if ttl == 0 {
		ttl = time.Hour
	}
	if ttl < 0 {
		return "", time.Time{}, goerrors.New("token TTL must be non-negative", goerrors.CategoryBadInput)
	}

	issuedAt := opts.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}
	expiresAt := issuedAt.Add(ttl)

	role := opts.RoleClaim
	if role == "" {
		role = identity.Role.String()
	}

	claims := jwt.MapClaims{
		"sub":      identity.ID,
		"UserId":   identity.ID,
		"FullName": identity.Name,
		"Email":    identity.Email,
		"Role":     role,
		"jti":      uuid.NewString(),
		"iat":      jwt.NewNumericDate(issuedAt),
		"exp":      jwt.NewNumericDate(expiresAt),
	}
	if opts.Issuer != "" {
		claims["iss"] = opts.Issuer
	}
	for key, value := range opts.Extra {
		claims[key] = value
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(opts.SigningKey)
	if err != nil {
		return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign token")
	}

	return signed, expiresAt, nil
}
