// Package identity issues and verifies the bearer tokens that carry the caller principal.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"docregistry/internal/model"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrSecretEmpty  = errors.New("jwt secret is required")
)

// Issuer signs HS256 tokens whose subject is the caller principal.
type Issuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewIssuer creates an Issuer. issuer is written to the iss claim and may be empty.
func NewIssuer(secret, issuer string) (*Issuer, error) {
	if secret == "" {
		return nil, ErrSecretEmpty
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Issue returns a signed token for principal valid for ttl.
func (i *Issuer) Issue(principal model.Principal, ttl time.Duration) (string, error) {
	if principal == "" {
		return "", fmt.Errorf("issue token: empty principal")
	}
	now := i.now()
	claims := jwt.RegisteredClaims{
		Subject:   string(principal),
		Issuer:    i.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verifier validates tokens produced by an Issuer sharing the same secret.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a Verifier. When issuer is non-empty the iss claim must match it.
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrSecretEmpty
	}
	return &Verifier{secret: []byte(secret), issuer: issuer}, nil
}

// Verify parses token and returns the principal named by its subject.
func (v *Verifier) Verify(token string) (model.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return model.Principal(claims.Subject), nil
}
