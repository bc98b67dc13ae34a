package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAssertionTTL is how long a signed service assertion stays valid.
// Assertions are minted per call, so the window only needs to cover one
// metadata-store round trip plus clock skew.
const DefaultAssertionTTL = 60 * time.Second

// AssertionSigner mints the short-lived RS256 assertions that authorize
// this service's privileged metadata writes. The assertion proves "this
// gateway may create records", independent of whichever user triggered the
// request.
type AssertionSigner struct {
	key      *rsa.PrivateKey
	subject  string
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// AssertionConfig holds configuration options for AssertionSigner.
type AssertionConfig struct {
	Subject  string
	Issuer   string
	Audience string
	// TTL for minted assertions (default: DefaultAssertionTTL).
	TTL time.Duration
}

// NewAssertionSigner creates a signer from a PEM-encoded RSA private key.
func NewAssertionSigner(keyPEM []byte, cfg AssertionConfig) (*AssertionSigner, error) {
	if len(keyPEM) == 0 {
		return nil, errors.New("new assertion signer: signing key is required")
	}
	if cfg.Subject == "" || cfg.Issuer == "" || cfg.Audience == "" {
		return nil, errors.New("new assertion signer: subject, issuer, and audience are required")
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("new assertion signer: parse key: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultAssertionTTL
	}

	return &AssertionSigner{
		key:      key,
		subject:  cfg.Subject,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// Sign mints a fresh assertion. Each call produces a new token with its
// own issued-at and expiry.
func (s *AssertionSigner) Sign() (string, error) {
	now := s.now()

	claims := jwt.RegisteredClaims{
		Subject:   s.subject,
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{s.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}

	return signed, nil
}

// PublicKey exposes the verification half of the signing key, so the
// metadata store's trust anchor can be published or checked in tests.
func (s *AssertionSigner) PublicKey() *rsa.PublicKey {
	return &s.key.PublicKey
}
