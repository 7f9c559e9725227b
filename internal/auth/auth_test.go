package auth_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookverse/promotion/internal/auth"
)

func newKeyPair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

func signToken(t *testing.T, priv ed25519.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(priv)
	require.NoError(t, err)
	return token
}

func requestWithToken(token string) *http.Request {
	r, _ := http.NewRequest(http.MethodPost, "/promotion/advance", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestVerifyRequest(t *testing.T) {
	pub, priv := newKeyPair(t)
	verifier, err := auth.NewVerifier(base64.StdEncoding.EncodeToString(pub), "promotion:write")
	require.NoError(t, err)

	valid := signToken(t, priv, jwt.MapClaims{
		"sub":   "ci",
		"scope": "promotion:read promotion:write",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	assert.NoError(t, verifier.VerifyRequest(requestWithToken(valid)))

	roleBased := signToken(t, priv, jwt.MapClaims{
		"roles": []string{"promotion:write"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	assert.NoError(t, verifier.VerifyRequest(requestWithToken(roleBased)))

	wrongScope := signToken(t, priv, jwt.MapClaims{
		"scope": "promotion:read",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	assert.Error(t, verifier.VerifyRequest(requestWithToken(wrongScope)))

	expired := signToken(t, priv, jwt.MapClaims{
		"scope": "promotion:write",
		"exp":   time.Now().Add(-time.Hour).Unix(),
	})
	assert.Error(t, verifier.VerifyRequest(requestWithToken(expired)))

	assert.Error(t, verifier.VerifyRequest(requestWithToken("")))

	_, otherPriv := newKeyPair(t)
	foreign := signToken(t, otherPriv, jwt.MapClaims{
		"scope": "promotion:write",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	assert.Error(t, verifier.VerifyRequest(requestWithToken(foreign)))
}

func TestNewVerifierValidation(t *testing.T) {
	pub, _ := newKeyPair(t)

	_, err := auth.NewVerifier("%%%", "promotion:write")
	assert.Error(t, err)

	_, err = auth.NewVerifier(base64.StdEncoding.EncodeToString([]byte("short")), "promotion:write")
	assert.Error(t, err)

	_, err = auth.NewVerifier(base64.StdEncoding.EncodeToString(pub), "")
	assert.Error(t, err)
}
