package httpserver_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookverse/promotion/internal/apptrust"
	"github.com/bookverse/promotion/internal/auth"
	"github.com/bookverse/promotion/internal/httpserver"
	"github.com/bookverse/promotion/internal/promotion"
	"github.com/bookverse/promotion/internal/stage"
)

type fakePlatform struct {
	stage      string
	contentErr error
	promoteErr error
	promoted   []string
}

func (f *fakePlatform) VersionContent(ctx context.Context, app, version string) (apptrust.VersionContent, error) {
	if f.contentErr != nil {
		return apptrust.VersionContent{}, f.contentErr
	}
	return apptrust.VersionContent{CurrentStage: f.stage}, nil
}

func (f *fakePlatform) Promote(ctx context.Context, app, version, targetAPIStage string) error {
	if f.promoteErr != nil {
		return f.promoteErr
	}
	f.promoted = append(f.promoted, targetAPIStage)
	f.stage = targetAPIStage
	return nil
}

func (f *fakePlatform) Release(ctx context.Context, app, version string, req apptrust.ReleaseRequest) error {
	return nil
}

func (f *fakePlatform) Rollback(ctx context.Context, app, version, fromStage string) error {
	return nil
}

func (f *fakePlatform) ListVersions(ctx context.Context, app string) ([]apptrust.VersionSummary, error) {
	return nil, nil
}

func (f *fakePlatform) PatchVersion(ctx context.Context, app, version string, patch apptrust.VersionPatch) error {
	return nil
}

func newServer(t *testing.T, platform *fakePlatform, verifier *auth.Verifier) *httptest.Server {
	t.Helper()
	ladder, err := stage.NewLadder("bookverse", []string{"DEV", "QA", "STAGING"})
	require.NoError(t, err)
	orch := promotion.New(platform, ladder, nil, nil, log.New(io.Discard, "", 0))
	srv := httptest.NewServer(httpserver.New(orch, verifier, nil, log.New(io.Discard, "", 0)).Router())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, token string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	srv := newServer(t, &fakePlatform{stage: "bookverse-DEV"}, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	var body map[string]interface{}
	decodeBody(t, resp, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
}

func TestAdvanceHappyPath(t *testing.T) {
	platform := &fakePlatform{stage: "bookverse-DEV"}
	srv := newServer(t, platform, nil)

	resp := postJSON(t, srv.URL+"/promotion/advance", "", map[string]interface{}{
		"application_key": "bookverse-inventory",
		"version":         "1.2.3",
		"target_stage":    "STAGING",
	})
	var outcome promotion.Outcome
	decodeBody(t, resp, &outcome)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, promotion.ActionPromoted, outcome.Action)
	assert.Equal(t, []string{"bookverse-QA"}, platform.promoted)
}

func TestAdvanceUnknownStageIsBadRequest(t *testing.T) {
	srv := newServer(t, &fakePlatform{stage: "bookverse-DEV"}, nil)

	resp := postJSON(t, srv.URL+"/promotion/advance", "", map[string]interface{}{
		"application_key": "bookverse-inventory",
		"version":         "1.2.3",
		"target_stage":    "CANARY",
	})
	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "CANARY")
}

func TestAdvanceUpstreamFailureIsBadGateway(t *testing.T) {
	platform := &fakePlatform{
		stage: "bookverse-DEV",
		promoteErr: &apptrust.UpstreamError{
			Method: http.MethodPost,
			URL:    "https://platform.example/promote",
			Status: http.StatusForbidden,
			Err:    errors.New("forbidden"),
		},
	}
	srv := newServer(t, platform, nil)

	resp := postJSON(t, srv.URL+"/promotion/advance", "", map[string]interface{}{
		"application_key": "bookverse-inventory",
		"version":         "1.2.3",
		"target_stage":    "QA",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestAdvanceMalformedBody(t *testing.T) {
	srv := newServer(t, &fakePlatform{stage: "bookverse-DEV"}, nil)

	resp, err := http.Post(srv.URL+"/promotion/advance", "application/json", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRollback(t *testing.T) {
	srv := newServer(t, &fakePlatform{stage: "bookverse-STAGING"}, nil)

	resp := postJSON(t, srv.URL+"/promotion/rollback", "", map[string]interface{}{
		"application_key": "bookverse-inventory",
		"version":         "1.2.3",
	})
	var outcome promotion.RollbackOutcome
	decodeBody(t, resp, &outcome)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "bookverse-STAGING", outcome.FromStage)
}

func TestAuthGate(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	verifier, err := auth.NewVerifier(base64.StdEncoding.EncodeToString(pub), "promotion:write")
	require.NoError(t, err)
	srv := newServer(t, &fakePlatform{stage: "bookverse-DEV"}, verifier)

	body := map[string]interface{}{
		"application_key": "bookverse-inventory",
		"version":         "1.2.3",
		"target_stage":    "QA",
	}

	resp := postJSON(t, srv.URL+"/promotion/advance", "", body)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"scope": "promotion:write",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString(priv)
	require.NoError(t, err)

	resp = postJSON(t, srv.URL+"/promotion/advance", token, body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Health stays open.
	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
