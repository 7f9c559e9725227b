// Package auth verifies the bearer tokens presented to the promotion
// service's write endpoints.
package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier checks Ed25519-signed bearer tokens for the configured
// write scope.
type Verifier struct {
	key   ed25519.PublicKey
	scope string
}

func NewVerifier(publicKeyB64, scope string) (*Verifier, error) {
	raw, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return nil, fmt.Errorf("decode auth public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("auth public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	if scope == "" {
		return nil, fmt.Errorf("auth scope required")
	}
	return &Verifier{key: ed25519.PublicKey(raw), scope: scope}, nil
}

// VerifyRequest validates the Authorization header.
func (v *Verifier) VerifyRequest(r *http.Request) error {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return errors.New("bearer token required")
	}
	return v.verifyToken(strings.TrimPrefix(header, "Bearer "))
}

func (v *Verifier) verifyToken(tokenStr string) error {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	})
	if err != nil {
		return fmt.Errorf("token parse error: %w", err)
	}
	if !token.Valid {
		return errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return errors.New("invalid claims")
	}
	if scope, ok := claims["scope"].(string); ok {
		for _, s := range strings.Fields(scope) {
			if s == v.scope {
				return nil
			}
		}
		return errors.New("missing required scope")
	}
	if roles, ok := claims["roles"].([]interface{}); ok {
		for _, r := range roles {
			if s, ok := r.(string); ok && s == v.scope {
				return nil
			}
		}
		return errors.New("missing required scope in roles")
	}
	return errors.New("missing scope/roles")
}
