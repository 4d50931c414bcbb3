// Package auth verifies bearer tokens presented by callers that assert a
// decentralized identifier (DID). Token issuance (DID key generation, the
// wallet/signing flow that mints these tokens in the first place) is a
// collaborator's concern; this package only validates what arrives on the
// wire.
package auth

import (
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identifies the caller of a request by DID plus whatever scopes
// the issuer granted it.
type Claims struct {
	DID    string   `json:"did"`
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// HasScope reports whether the token carries the given scope.
func (c Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Config holds the shared secret and issuer used to validate bearer tokens.
type Config struct {
	Secret []byte
	Issuer string
}

const minimumSecretLength = 32

// LoadConfig reads BINDU_AUTH_SECRET from the environment. An empty secret
// means DID-gated auth is disabled; callers decide whether that's acceptable.
func LoadConfig() (Config, error) {
	secret := os.Getenv("BINDU_AUTH_SECRET")
	if secret == "" {
		return Config{}, nil
	}
	if len(secret) < minimumSecretLength {
		return Config{}, fmt.Errorf("BINDU_AUTH_SECRET must be at least %d characters", minimumSecretLength)
	}
	return Config{
		Secret: []byte(secret),
		Issuer: os.Getenv("BINDU_AUTH_ISSUER"),
	}, nil
}

// Verifier validates bearer tokens against a Config.
type Verifier struct {
	config Config
}

// NewVerifier creates a Verifier. A zero-value Config makes every call to
// ValidateToken fail closed.
func NewVerifier(config Config) *Verifier {
	return &Verifier{config: config}
}

// Enabled reports whether a secret was configured at all.
func (v *Verifier) Enabled() bool {
	return len(v.config.Secret) > 0
}

// ValidateToken parses and verifies a bearer token, returning the caller's
// claims on success.
func (v *Verifier) ValidateToken(tokenString string) (*Claims, error) {
	if !v.Enabled() {
		return nil, fmt.Errorf("auth: no secret configured")
	}
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("auth: empty token")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.config.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if v.config.Issuer != "" && claims.Issuer != v.config.Issuer {
		return nil, fmt.Errorf("unexpected issuer %q", claims.Issuer)
	}
	if claims.DID == "" {
		return nil, fmt.Errorf("token missing did claim")
	}
	return claims, nil
}
