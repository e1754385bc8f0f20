package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"fingerid/internal/services"
)

// Login methods recorded in issued tokens.
const (
	MethodPassword  = "password"
	MethodBiometric = "biometric"
)

// DefaultTTL is the lifetime of an issued token when none is configured.
const DefaultTTL = 8 * time.Hour

// ErrInvalidToken reports a token that is malformed, expired, forged or revoked.
var ErrInvalidToken = errors.New("invalid session token")

// Claims is the payload of an issued token.
type Claims struct {
	UserID      int64  `json:"userId"`
	Role        string `json:"role"`
	LoginMethod string `json:"loginMethod"`
	jwt.RegisteredClaims
}

// Subject identifies who a token is issued to.
type Subject struct {
	UserID int64
	Role   string
}

// Token is a signed session credential.
type Token struct {
	Value     string    `json:"token"`
	ID        string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	secret      []byte
	ttl         time.Duration
	revocations RevocationStore
	now         func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithRevocations sets the store consulted by Parse and written by Revoke.
func WithRevocations(store RevocationStore) IssuerOption {
	return func(i *Issuer) {
		if store != nil {
			i.revocations = store
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIssuer constructs an issuer signing with secret.
func NewIssuer(secret string, ttl time.Duration, opts ...IssuerOption) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "session", "init", "signing secret required", nil)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	issuer := &Issuer{
		secret:      []byte(secret),
		ttl:         ttl,
		revocations: NewMemoryRevocations(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(issuer)
	}
	return issuer, nil
}

// Issue signs a new token for subject.
func (i *Issuer) Issue(_ context.Context, subject Subject, method string) (Token, error) {
	now := i.now()
	expires := now.Add(i.ttl)
	id := uuid.NewString()
	claims := Claims{
		UserID:      subject.UserID,
		Role:        subject.Role,
		LoginMethod: method,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   fmt.Sprintf("%d", subject.UserID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Token{}, services.Wrap(services.ErrTransient, "session", "issue", "sign token", err)
	}
	return Token{Value: signed, ID: id, ExpiresAt: expires.UTC()}, nil
}

// Parse validates value and returns its claims.
func (i *Issuer) Parse(ctx context.Context, value string) (*Claims, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(value, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.ID == "" || claims.UserID <= 0 {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	revoked, err := i.revocations.Revoked(ctx, claims.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "session", "parse", "revocation lookup", err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: revoked", ErrInvalidToken)
	}
	return claims, nil
}

// Revoke invalidates the token described by claims until it expires.
func (i *Issuer) Revoke(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.ID == "" {
		return ErrInvalidToken
	}
	until := i.now().Add(i.ttl)
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	if err := i.revocations.Revoke(ctx, claims.ID, until); err != nil {
		return services.Wrap(services.ErrTransient, "session", "revoke", "", err)
	}
	return nil
}
