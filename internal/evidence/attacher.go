package evidence

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/bookverse/promotion/internal/apptrust"
	"github.com/bookverse/promotion/internal/stage"
)

// Client is the slice of the platform client the attacher needs.
type Client interface {
	CreateEvidence(ctx context.Context, req apptrust.EvidenceRequest) error
}

// Attacher submits the stage policy's predicates after a confirmed
// hop. Every failure is advisory: the promotion already happened, so
// a flaky evidence sink must never fail the step.
type Attacher struct {
	client  Client
	signer  Signer
	policy  Policy
	workDir string
	logger  *log.Logger
}

func NewAttacher(client Client, signer Signer, policy Policy, workDir string, logger *log.Logger) *Attacher {
	if logger == nil {
		logger = log.Default()
	}
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Attacher{client: client, signer: signer, policy: policy, workDir: workDir, logger: logger}
}

// AttachFor synthesizes and submits the evidence for a stage the
// version just entered. It returns the advisory errors it hit; the
// caller records them but the step outcome is unaffected.
func (a *Attacher) AttachFor(ctx context.Context, app, version string, st stage.Stage, ladder *stage.Ladder) []error {
	var advisories []error
	for _, pred := range a.policy.PredicatesFor(app, version, st, ladder) {
		if err := a.attach(ctx, app, version, pred); err != nil {
			a.logger.Printf("evidence %s for %s@%s not attached: %v", pred.TypeURI, app, version, err)
			advisories = append(advisories, err)
			continue
		}
		a.logger.Printf("attached %s evidence for %s@%s", pred.TypeURI, app, version)
	}
	return advisories
}

func (a *Attacher) attach(ctx context.Context, app, version string, pred Predicate) error {
	payload, err := json.Marshal(pred.Payload)
	if err != nil {
		return fmt.Errorf("marshal predicate: %w", err)
	}

	// The predicate is staged as a temp file for the submission call
	// and removed on every exit path; a stale file must not leak into
	// a later step's working directory.
	file, err := os.CreateTemp(a.workDir, "predicate-*.json")
	if err != nil {
		return fmt.Errorf("stage predicate file: %w", err)
	}
	defer os.Remove(file.Name())
	if _, err := file.Write(payload); err != nil {
		file.Close()
		return fmt.Errorf("write predicate file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close predicate file: %w", err)
	}

	req := apptrust.EvidenceRequest{
		ReleaseBundle:        app,
		ReleaseBundleVersion: version,
		PredicateType:        pred.TypeURI,
		Predicate:            json.RawMessage(payload),
		ProviderID:           a.policy.ProviderID,
	}
	if a.signer != nil {
		sig, err := a.signer.Sign(payload)
		if err != nil {
			return fmt.Errorf("sign predicate: %w", err)
		}
		req.Signature = base64.StdEncoding.EncodeToString(sig)
		req.SigningKeyID = a.signer.KeyID()
	}
	if err := a.client.CreateEvidence(ctx, req); err != nil {
		return fmt.Errorf("submit %s: %w", pred.TypeURI, err)
	}
	return nil
}
