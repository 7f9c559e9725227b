package evidence_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io/fs"
	"log"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookverse/promotion/internal/apptrust"
	"github.com/bookverse/promotion/internal/evidence"
	"github.com/bookverse/promotion/internal/stage"
)

type fakeEvidenceClient struct {
	requests []apptrust.EvidenceRequest
	failOn   string
}

func (f *fakeEvidenceClient) CreateEvidence(_ context.Context, req apptrust.EvidenceRequest) error {
	if f.failOn != "" && req.PredicateType == f.failOn {
		return errors.New("evidence sink unavailable")
	}
	f.requests = append(f.requests, req)
	return nil
}

func testSigner(t *testing.T) evidence.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := evidence.NewEd25519SignerFromB64(base64.StdEncoding.EncodeToString(priv), "test-key")
	require.NoError(t, err)
	return signer
}

func testLadder(t *testing.T) *stage.Ladder {
	t.Helper()
	l, err := stage.NewLadder("bookverse", []string{"DEV", "QA", "STAGING", "PROD"})
	require.NoError(t, err)
	return l
}

func gatesOf(t *testing.T, req apptrust.EvidenceRequest) string {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(req.Predicate, &payload))
	gates, _ := payload["gates_promotion_to"].(string)
	return gates
}

func TestQAEvidenceGatesStaging(t *testing.T) {
	ladder := testLadder(t)
	client := &fakeEvidenceClient{}
	attacher := evidence.NewAttacher(client, testSigner(t), evidence.NewPolicy("promotion-core", "abc1234"), t.TempDir(), log.New(testWriter{t}, "", 0))

	advisories := attacher.AttachFor(context.Background(), "bookverse-inventory", "1.2.3", ladder.At(1), ladder)
	assert.Empty(t, advisories)

	require.Len(t, client.requests, 2)
	types := []string{client.requests[0].PredicateType, client.requests[1].PredicateType}
	assert.ElementsMatch(t, []string{evidence.TypeDynamicScan, evidence.TypeAPITestCollection}, types)
	for _, req := range client.requests {
		assert.Equal(t, "STAGING", gatesOf(t, req))
		assert.Equal(t, "test-key", req.SigningKeyID)
		assert.NotEmpty(t, req.Signature)
	}
}

func TestStagingEvidenceGatesProd(t *testing.T) {
	ladder := testLadder(t)
	client := &fakeEvidenceClient{}
	attacher := evidence.NewAttacher(client, testSigner(t), evidence.NewPolicy("promotion-core", ""), t.TempDir(), log.New(testWriter{t}, "", 0))

	advisories := attacher.AttachFor(context.Background(), "bookverse-inventory", "1.2.3", ladder.At(2), ladder)
	assert.Empty(t, advisories)

	require.Len(t, client.requests, 3)
	for _, req := range client.requests {
		assert.Equal(t, "PROD", gatesOf(t, req))
	}
}

func TestProdEvidenceReferencesCommit(t *testing.T) {
	ladder := testLadder(t)
	client := &fakeEvidenceClient{}
	attacher := evidence.NewAttacher(client, testSigner(t), evidence.NewPolicy("promotion-core", "deadbeef"), t.TempDir(), log.New(testWriter{t}, "", 0))

	advisories := attacher.AttachFor(context.Background(), "bookverse-inventory", "1.2.3", ladder.At(3), ladder)
	assert.Empty(t, advisories)

	require.Len(t, client.requests, 1)
	assert.Equal(t, evidence.TypeDeploymentSync, client.requests[0].PredicateType)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(client.requests[0].Predicate, &payload))
	assert.Equal(t, "deadbeef", payload["commit"])
	assert.Empty(t, gatesOf(t, client.requests[0]))
}

func TestDevStageHasNoEvidence(t *testing.T) {
	ladder := testLadder(t)
	client := &fakeEvidenceClient{}
	attacher := evidence.NewAttacher(client, testSigner(t), evidence.NewPolicy("promotion-core", ""), t.TempDir(), log.New(testWriter{t}, "", 0))

	advisories := attacher.AttachFor(context.Background(), "bookverse-inventory", "1.2.3", ladder.At(0), ladder)
	assert.Empty(t, advisories)
	assert.Empty(t, client.requests)
}

func TestSinkFailureIsAdvisoryAndRemainingAttach(t *testing.T) {
	ladder := testLadder(t)
	client := &fakeEvidenceClient{failOn: evidence.TypeDynamicScan}
	attacher := evidence.NewAttacher(client, testSigner(t), evidence.NewPolicy("promotion-core", ""), t.TempDir(), log.New(testWriter{t}, "", 0))

	advisories := attacher.AttachFor(context.Background(), "bookverse-inventory", "1.2.3", ladder.At(1), ladder)
	require.Len(t, advisories, 1)
	assert.Contains(t, advisories[0].Error(), "evidence sink unavailable")

	require.Len(t, client.requests, 1)
	assert.Equal(t, evidence.TypeAPITestCollection, client.requests[0].PredicateType)
}

func TestPredicateFilesRemovedOnAllPaths(t *testing.T) {
	ladder := testLadder(t)
	workDir := t.TempDir()
	client := &fakeEvidenceClient{failOn: evidence.TypePenetrationTest}
	attacher := evidence.NewAttacher(client, testSigner(t), evidence.NewPolicy("promotion-core", ""), workDir, log.New(testWriter{t}, "", 0))

	attacher.AttachFor(context.Background(), "bookverse-inventory", "1.2.3", ladder.At(2), ladder)

	var leftovers []string
	err := filepath.WalkDir(workDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			leftovers = append(leftovers, path)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestSignerValidation(t *testing.T) {
	_, err := evidence.NewEd25519SignerFromB64("", "k")
	assert.Error(t, err)

	_, err = evidence.NewEd25519SignerFromB64("%%%", "k")
	assert.Error(t, err)

	_, err = evidence.NewEd25519SignerFromB64(base64.StdEncoding.EncodeToString([]byte("short")), "k")
	assert.Error(t, err)
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
