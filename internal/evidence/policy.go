// Package evidence synthesizes and attaches the stage-scoped predicate
// documents that gate promotion between stages. Evidence ownership
// lives entirely in this package: the orchestrator is the only caller,
// so no predicate is ever attached twice for one promotion.
package evidence

import (
	"time"

	"github.com/bookverse/promotion/internal/stage"
)

// Predicate type URIs. Uses dotted path scoping under the bookverse
// evidence namespace.
const (
	TypeDynamicScan       = "https://bookverse.dev/evidence/dynamic-scan/v1"
	TypeAPITestCollection = "https://bookverse.dev/evidence/api-test-collection/v1"
	TypeInfraScan         = "https://bookverse.dev/evidence/infrastructure-scan/v1"
	TypePenetrationTest   = "https://bookverse.dev/evidence/penetration-test/v1"
	TypeChangeApproval    = "https://bookverse.dev/evidence/change-approval/v1"
	TypeDeploymentSync    = "https://bookverse.dev/evidence/deployment-sync/v1"
)

// Predicate is one evidence document scoped to the stage a version
// just entered. Gates names the downstream stage the document gates,
// empty for terminal-stage evidence.
type Predicate struct {
	TypeURI string
	Gates   string
	Payload map[string]interface{}
}

// Policy holds the fixed per-stage evidence mapping. It is demo
// policy, not user-configurable.
type Policy struct {
	ProviderID string
	CommitSHA  string

	// now is swappable for tests.
	now func() time.Time
}

func NewPolicy(providerID, commitSHA string) Policy {
	return Policy{ProviderID: providerID, CommitSHA: commitSHA, now: time.Now}
}

// PredicatesFor returns the evidence documents for a stage the version
// has just entered. DEV and any unrecognized stage produce none.
func (p Policy) PredicatesFor(app, version string, st stage.Stage, ladder *stage.Ladder) []Predicate {
	gates := ""
	if next := st.Order + 1; next < ladder.Len() {
		gates = ladder.At(next).Display
	}

	switch st.Display {
	case "QA":
		return []Predicate{
			p.predicate(TypeDynamicScan, app, version, st, gates, map[string]interface{}{
				"scan_type": "dast",
				"result":    "passed",
			}),
			p.predicate(TypeAPITestCollection, app, version, st, gates, map[string]interface{}{
				"collection": "bookverse-api-smoke",
				"result":     "passed",
			}),
		}
	case "STAGING":
		return []Predicate{
			p.predicate(TypeInfraScan, app, version, st, gates, map[string]interface{}{
				"scanner": "infra-baseline",
				"result":  "passed",
			}),
			p.predicate(TypePenetrationTest, app, version, st, gates, map[string]interface{}{
				"result": "passed",
			}),
			p.predicate(TypeChangeApproval, app, version, st, gates, map[string]interface{}{
				"approved": true,
			}),
		}
	case stage.Terminal:
		return []Predicate{
			p.predicate(TypeDeploymentSync, app, version, st, "", map[string]interface{}{
				"commit": p.CommitSHA,
			}),
		}
	}
	return nil
}

func (p Policy) predicate(typeURI, app, version string, st stage.Stage, gates string, fields map[string]interface{}) Predicate {
	now := p.now
	if now == nil {
		now = time.Now
	}
	payload := map[string]interface{}{
		"application": app,
		"version":     version,
		"stage":       st.Display,
		"provider_id": p.ProviderID,
		"timestamp":   now().UTC().Format(time.RFC3339),
	}
	if gates != "" {
		payload["gates_promotion_to"] = gates
	}
	for k, v := range fields {
		payload[k] = v
	}
	return Predicate{TypeURI: typeURI, Gates: gates, Payload: payload}
}
