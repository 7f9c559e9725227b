// Package stage models the ordered deployment ladder an application
// version climbs (e.g. DEV -> QA -> STAGING -> PROD) and the mapping
// between display names and the platform's project-scoped API names.
package stage

import (
	"fmt"
	"strings"
)

// Terminal is the display and API name of the final stage. It is the
// only stage the platform addresses without a project prefix.
const Terminal = "PROD"

// Unassigned is the platform's stage value for a version that has not
// entered the ladder yet.
const Unassigned = "UNASSIGNED"

// Stage is one rung of the ladder. It is constructed once from
// configuration; callers never derive names by string surgery.
type Stage struct {
	Display string
	APIName string
	Order   int
}

// Terminal reports whether this stage is the final (release) stage.
func (s Stage) Terminal() bool {
	return s.Display == Terminal
}

// Ladder is the ordered set of stages for one project.
type Ladder struct {
	project string
	stages  []Stage
	byAPI   map[string]int
}

// NewLadder builds a ladder from the configured display names. The
// terminal stage is appended automatically when the list does not end
// with it. Duplicate names are rejected.
func NewLadder(projectKey string, displays []string) (*Ladder, error) {
	if projectKey == "" {
		return nil, fmt.Errorf("project key required")
	}
	if len(displays) == 0 {
		return nil, fmt.Errorf("at least one stage required")
	}
	names := make([]string, 0, len(displays)+1)
	for _, d := range displays {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		names = append(names, d)
	}
	if len(names) == 0 || names[len(names)-1] != Terminal {
		names = append(names, Terminal)
	}

	l := &Ladder{
		project: projectKey,
		stages:  make([]Stage, 0, len(names)),
		byAPI:   make(map[string]int, len(names)),
	}
	for i, d := range names {
		api := apiName(projectKey, d)
		if _, dup := l.byAPI[api]; dup {
			return nil, fmt.Errorf("duplicate stage %q", d)
		}
		if d == Terminal && i != len(names)-1 {
			return nil, fmt.Errorf("%s must be the last stage", Terminal)
		}
		l.stages = append(l.stages, Stage{Display: d, APIName: api, Order: i})
		l.byAPI[api] = i
	}
	return l, nil
}

func apiName(project, display string) string {
	if display == Terminal {
		return Terminal
	}
	if strings.HasPrefix(display, project+"-") {
		return display
	}
	return project + "-" + display
}

// APINameFor maps a display name to the platform API name. Values that
// already carry the project prefix pass through unchanged.
func (l *Ladder) APINameFor(display string) string {
	return apiName(l.project, display)
}

// DisplayNameFor is the inverse of APINameFor: it strips the project
// prefix, leaving the terminal stage name untouched.
func (l *Ladder) DisplayNameFor(api string) string {
	if api == Terminal || api == l.project+"-"+Terminal {
		return Terminal
	}
	return strings.TrimPrefix(api, l.project+"-")
}

// IndexOf returns the ladder position of the named stage, or -1 when
// the name is empty, UNASSIGNED, or unknown. Comparison happens on the
// API form so prefixed and unprefixed inputs resolve identically.
func (l *Ladder) IndexOf(name string) int {
	if name == "" || strings.EqualFold(name, Unassigned) {
		return -1
	}
	if i, ok := l.byAPI[apiName(l.project, name)]; ok {
		return i
	}
	return -1
}

// At returns the stage at position i.
func (l *Ladder) At(i int) Stage {
	return l.stages[i]
}

// Len returns the number of stages on the ladder.
func (l *Ladder) Len() int {
	return len(l.stages)
}

// Stages returns a copy of the ladder's stages in order.
func (l *Ladder) Stages() []Stage {
	out := make([]Stage, len(l.stages))
	copy(out, l.stages)
	return out
}

// Project returns the project key the ladder is scoped to.
func (l *Ladder) Project() string {
	return l.project
}
