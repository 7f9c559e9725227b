package promotion

import (
	"context"
	"fmt"
	"strings"

	"github.com/bookverse/promotion/internal/apptrust"
	"github.com/bookverse/promotion/internal/audit"
	"github.com/bookverse/promotion/internal/semver"
	"github.com/bookverse/promotion/internal/stage"
)

// Release statuses a version must hold to serve as the replacement
// "latest" after a rollback.
const (
	releaseStatusTrusted  = "TRUSTED_RELEASE"
	releaseStatusReleased = "RELEASED"
)

const (
	tagQuarantine = "quarantine"
	tagLatest     = "latest"

	propBackupBeforeQuarantine = "original_tag_before_quarantine"
	propBackupBeforeLatest     = "original_tag_before_latest"
)

// RollbackRequest asks for a released version to be pulled back from
// its current stage and quarantined.
type RollbackRequest struct {
	ApplicationKey string
	Version        string
	DryRun         bool
}

// RollbackOutcome reports what the rollback did. The rollback call
// itself is hard; tag maintenance afterwards is advisory.
type RollbackOutcome struct {
	FromStage   string     `json:"from_stage"`
	Quarantined bool       `json:"quarantined"`
	NewLatest   string     `json:"new_latest,omitempty"`
	Advisories  []Advisory `json:"advisories,omitempty"`
}

// Rollback pulls the version back via the platform's dedicated
// rollback endpoint, quarantines it, and retags the best remaining
// released version as latest.
func (o *Orchestrator) Rollback(ctx context.Context, req RollbackRequest) (RollbackOutcome, error) {
	if req.ApplicationKey == "" || req.Version == "" {
		return RollbackOutcome{}, &ConfigError{Msg: "application key and version required"}
	}

	content, err := o.platform.VersionContent(ctx, req.ApplicationKey, req.Version)
	if err != nil {
		return RollbackOutcome{}, fmt.Errorf("read version status: %w", err)
	}
	fromStage := strings.TrimSpace(content.CurrentStage)
	if fromStage == "" || strings.EqualFold(fromStage, stage.Unassigned) {
		return RollbackOutcome{}, fmt.Errorf("cannot rollback %s@%s: version is unassigned", req.ApplicationKey, req.Version)
	}

	// Sanitized description of the call; tokens and the absolute base
	// URL are never printed here.
	o.logger.Printf("rolling back %s@%s from %s", req.ApplicationKey, req.Version, fromStage)
	if req.DryRun {
		o.logger.Printf("[dry-run] skipping rollback call and tag maintenance")
		return RollbackOutcome{FromStage: fromStage}, nil
	}
	if err := o.platform.Rollback(ctx, req.ApplicationKey, req.Version, fromStage); err != nil {
		return RollbackOutcome{}, fmt.Errorf("rollback %s@%s: %w", req.ApplicationKey, req.Version, err)
	}

	outcome := RollbackOutcome{FromStage: fromStage}

	versions, err := o.platform.ListVersions(ctx, req.ApplicationKey)
	if err != nil {
		outcome.Advisories = append(outcome.Advisories, Advisory{
			Severity: SeverityAdvisory,
			Message:  fmt.Sprintf("list versions for tag maintenance: %v", err),
		})
		versions = nil
	}

	currentTag := ""
	for _, v := range versions {
		if v.Version == req.Version {
			currentTag = v.Tag
			break
		}
	}
	if err := o.quarantine(ctx, req.ApplicationKey, req.Version, currentTag); err != nil {
		outcome.Advisories = append(outcome.Advisories, Advisory{
			Severity: SeverityAdvisory,
			Message:  fmt.Sprintf("quarantine tag: %v", err),
		})
	} else {
		outcome.Quarantined = true
	}

	if next := pickNextLatest(versions, req.Version); next != nil {
		if err := o.retagLatest(ctx, req.ApplicationKey, *next); err != nil {
			outcome.Advisories = append(outcome.Advisories, Advisory{
				Severity: SeverityAdvisory,
				Message:  fmt.Sprintf("retag latest: %v", err),
			})
		} else {
			outcome.NewLatest = next.Version
			o.logger.Printf("%s@%s is now latest", req.ApplicationKey, next.Version)
		}
	}

	if adv := o.record(ctx, audit.EventPromotionRollback, map[string]interface{}{
		"application": req.ApplicationKey,
		"version":     req.Version,
		"from_stage":  fromStage,
		"new_latest":  outcome.NewLatest,
	}); adv != nil {
		outcome.Advisories = append(outcome.Advisories, *adv)
	}

	return outcome, nil
}

func (o *Orchestrator) quarantine(ctx context.Context, app, version, currentTag string) error {
	tag := tagQuarantine
	return o.platform.PatchVersion(ctx, app, version, apptrust.VersionPatch{
		Tag:        &tag,
		Properties: map[string][]string{propBackupBeforeQuarantine: {currentTag}},
	})
}

func (o *Orchestrator) retagLatest(ctx context.Context, app string, v apptrust.VersionSummary) error {
	tag := tagLatest
	return o.platform.PatchVersion(ctx, app, v.Version, apptrust.VersionPatch{
		Tag:        &tag,
		Properties: map[string][]string{propBackupBeforeLatest: {v.Tag}},
	})
}

// pickNextLatest chooses the replacement for the rolled-back version:
// released or trusted versions only, quarantined ones excluded, newest
// semver first, TRUSTED_RELEASE preferred when the same version string
// appears more than once.
func pickNextLatest(versions []apptrust.VersionSummary, exclude string) *apptrust.VersionSummary {
	candidates := make(map[string][]apptrust.VersionSummary)
	var names []string
	for _, v := range versions {
		if v.Version == exclude || v.Tag == tagQuarantine {
			continue
		}
		status := strings.ToUpper(v.ReleaseStatus)
		if status != releaseStatusTrusted && status != releaseStatusReleased {
			continue
		}
		if _, seen := candidates[v.Version]; !seen {
			names = append(names, v.Version)
		}
		candidates[v.Version] = append(candidates[v.Version], v)
	}
	if len(names) == 0 {
		return nil
	}

	for _, name := range semver.SortDescending(names) {
		group := candidates[name]
		for _, c := range group {
			if strings.ToUpper(c.ReleaseStatus) == releaseStatusTrusted {
				return &c
			}
		}
		return &group[0]
	}
	return nil
}
