// Package promotion implements the one-hop-per-invocation state
// machine that walks an application version up the stage ladder.
package promotion

import (
	"context"
	"fmt"
	"log"

	"github.com/bookverse/promotion/internal/apptrust"
	"github.com/bookverse/promotion/internal/audit"
	"github.com/bookverse/promotion/internal/stage"
)

// Platform is the slice of the platform client the orchestrator uses.
type Platform interface {
	VersionContent(ctx context.Context, app, version string) (apptrust.VersionContent, error)
	Promote(ctx context.Context, app, version, targetAPIStage string) error
	Release(ctx context.Context, app, version string, req apptrust.ReleaseRequest) error
	Rollback(ctx context.Context, app, version, fromStage string) error
	ListVersions(ctx context.Context, app string) ([]apptrust.VersionSummary, error)
	PatchVersion(ctx context.Context, app, version string, patch apptrust.VersionPatch) error
}

// Attacher submits stage evidence after a confirmed hop.
type Attacher interface {
	AttachFor(ctx context.Context, app, version string, st stage.Stage, ladder *stage.Ladder) []error
}

// Severity classifies a call-site failure. Fatal failures abort the
// step; advisory ones are reported on the outcome and otherwise
// ignored. The split is deliberate: promotion failures are hard,
// evidence and audit failures are soft.
type Severity string

const (
	SeverityFatal    Severity = "fatal"
	SeverityAdvisory Severity = "advisory"
)

// Advisory is a soft failure carried on a successful outcome.
type Advisory struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Action says what a step actually did.
type Action string

const (
	// ActionNone: current stage already at or past the target.
	ActionNone Action = "none"
	// ActionDeferred: next hop is the terminal stage but release was
	// not authorized for this invocation.
	ActionDeferred Action = "deferred"
	ActionPromoted Action = "promoted"
	ActionReleased Action = "released"
)

// Outcome describes one completed orchestration step.
type Outcome struct {
	Action     Action     `json:"action"`
	Message    string     `json:"message"`
	FromStage  string     `json:"from_stage,omitempty"`
	ToStage    string     `json:"to_stage,omitempty"`
	Advisories []Advisory `json:"advisories,omitempty"`
}

// StepRequest is the caller's ask for a single step. ReleaseAllowed
// gates the terminal hop behind an explicit per-invocation
// confirmation, distinct from intermediate promotions.
type StepRequest struct {
	ApplicationKey        string
	Version               string
	TargetStage           string
	ReleaseAllowed        bool
	ReleaseRepositoryKeys []string
}

// Orchestrator composes the status read, the transition decision, and
// the evidence side effect into one idempotent step.
type Orchestrator struct {
	platform Platform
	ladder   *stage.Ladder
	attacher Attacher
	trail    audit.Trail
	logger   *log.Logger
}

// New builds an orchestrator. attacher and trail may be nil; the
// corresponding side effects are skipped.
func New(platform Platform, ladder *stage.Ladder, attacher Attacher, trail audit.Trail, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		platform: platform,
		ladder:   ladder,
		attacher: attacher,
		trail:    trail,
		logger:   logger,
	}
}

// AdvanceOneStep moves the version at most one rung toward the target
// stage. Calling it repeatedly, once per CI invocation, walks the
// version up the ladder without skipping any stage's evidence gate.
// Re-runs are safe: a version at or past the target is a no-op.
func (o *Orchestrator) AdvanceOneStep(ctx context.Context, req StepRequest) (Outcome, error) {
	if req.ApplicationKey == "" || req.Version == "" {
		return Outcome{}, &ConfigError{Msg: "application key and version required"}
	}
	targetIdx := o.ladder.IndexOf(req.TargetStage)
	if targetIdx < 0 {
		return Outcome{}, &ConfigError{Msg: fmt.Sprintf("target stage %q is not on the ladder", req.TargetStage)}
	}

	content, err := o.platform.VersionContent(ctx, req.ApplicationKey, req.Version)
	if err != nil {
		return Outcome{}, fmt.Errorf("read version status: %w", err)
	}
	currentIdx := o.ladder.IndexOf(content.CurrentStage)
	currentName := o.displayOr(content.CurrentStage, stage.Unassigned)

	if currentIdx >= targetIdx {
		msg := fmt.Sprintf("%s@%s already at %s (target %s), nothing to do",
			req.ApplicationKey, req.Version, currentName, o.ladder.At(targetIdx).Display)
		o.logger.Print(msg)
		return Outcome{Action: ActionNone, Message: msg, FromStage: currentName}, nil
	}

	nextIdx := currentIdx + 1
	if nextIdx > targetIdx {
		// Unreachable given the check above; guarded so a future
		// ladder edit cannot overshoot the target.
		msg := fmt.Sprintf("next hop would pass target %s, nothing to do", req.TargetStage)
		return Outcome{Action: ActionNone, Message: msg, FromStage: currentName}, nil
	}
	next := o.ladder.At(nextIdx)

	var action Action
	switch {
	case next.Terminal() && !req.ReleaseAllowed:
		msg := fmt.Sprintf("%s@%s is ready for %s but release is not authorized for this run",
			req.ApplicationKey, req.Version, next.Display)
		o.logger.Print(msg)
		return Outcome{Action: ActionDeferred, Message: msg, FromStage: currentName, ToStage: next.Display}, nil
	case next.Terminal():
		o.logger.Printf("releasing %s@%s", req.ApplicationKey, req.Version)
		if err := o.platform.Release(ctx, req.ApplicationKey, req.Version, apptrust.ReleaseRequest{
			IncludedRepositoryKeys: req.ReleaseRepositoryKeys,
		}); err != nil {
			return Outcome{}, fmt.Errorf("release %s@%s: %w", req.ApplicationKey, req.Version, err)
		}
		action = ActionReleased
	default:
		o.logger.Printf("promoting %s@%s to %s", req.ApplicationKey, req.Version, next.APIName)
		if err := o.platform.Promote(ctx, req.ApplicationKey, req.Version, next.APIName); err != nil {
			return Outcome{}, fmt.Errorf("promote %s@%s to %s: %w", req.ApplicationKey, req.Version, next.APIName, err)
		}
		action = ActionPromoted
	}

	confirmed, err := o.platform.VersionContent(ctx, req.ApplicationKey, req.Version)
	if err != nil {
		return Outcome{}, fmt.Errorf("confirm version status after hop: %w", err)
	}
	o.logger.Printf("%s@%s now at %s", req.ApplicationKey, req.Version, o.displayOr(confirmed.CurrentStage, next.Display))

	outcome := Outcome{
		Action:    action,
		Message:   fmt.Sprintf("%s %s@%s: %s -> %s", action, req.ApplicationKey, req.Version, currentName, next.Display),
		FromStage: currentName,
		ToStage:   next.Display,
	}

	if o.attacher != nil {
		for _, advErr := range o.attacher.AttachFor(ctx, req.ApplicationKey, req.Version, next, o.ladder) {
			outcome.Advisories = append(outcome.Advisories, Advisory{
				Severity: SeverityAdvisory,
				Message:  fmt.Sprintf("evidence: %v", advErr),
			})
		}
	}

	if adv := o.record(ctx, audit.EventPromotionStep, map[string]interface{}{
		"application": req.ApplicationKey,
		"version":     req.Version,
		"action":      string(action),
		"from_stage":  outcome.FromStage,
		"to_stage":    outcome.ToStage,
	}); adv != nil {
		outcome.Advisories = append(outcome.Advisories, *adv)
	}

	return outcome, nil
}

// record appends to the audit trail; trail failures are advisory.
func (o *Orchestrator) record(ctx context.Context, eventType string, payload map[string]interface{}) *Advisory {
	if o.trail == nil {
		return nil
	}
	ev := &audit.Event{
		EventType: eventType,
		Payload:   payload,
		Metadata:  map[string]interface{}{"application": payload["application"]},
	}
	if err := o.trail.Append(ctx, ev); err != nil {
		o.logger.Printf("audit trail append failed: %v", err)
		return &Advisory{Severity: SeverityAdvisory, Message: fmt.Sprintf("audit: %v", err)}
	}
	return nil
}

func (o *Orchestrator) displayOr(apiName, fallback string) string {
	if o.ladder.IndexOf(apiName) < 0 {
		return fallback
	}
	return o.ladder.DisplayNameFor(apiName)
}
