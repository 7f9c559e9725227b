// Package semver implements the strict semantic-version ordering used
// to pick rollback replacement candidates.
package semver

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var re = regexp.MustCompile(
	`^\s*v?(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)` +
		`(?:-((?:0|[1-9]\d*|[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|[a-zA-Z-][0-9a-zA-Z-]*))*))?` +
		`(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?\s*$`)

// Version is a parsed semantic version. Build metadata is retained for
// display but ignored by Compare, per the semver spec.
type Version struct {
	Major, Minor, Patch int
	Prerelease          []string
	Original            string
}

// Parse returns the parsed version and whether the input was valid
// semver (an optional leading "v" is tolerated).
func Parse(s string) (Version, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return Version{}, false
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch, _ := strconv.Atoi(m[3])
	v := Version{Major: major, Minor: minor, Patch: patch, Original: s}
	if m[4] != "" {
		v.Prerelease = strings.Split(m[4], ".")
	}
	return v, true
}

// Compare returns -1, 0, or 1 ordering a before, equal to, or after b.
func Compare(a, b Version) int {
	if c := cmpInt(a.Major, b.Major); c != 0 {
		return c
	}
	if c := cmpInt(a.Minor, b.Minor); c != 0 {
		return c
	}
	if c := cmpInt(a.Patch, b.Patch); c != 0 {
		return c
	}
	// A release sorts after any of its prereleases.
	if len(a.Prerelease) == 0 && len(b.Prerelease) > 0 {
		return 1
	}
	if len(a.Prerelease) > 0 && len(b.Prerelease) == 0 {
		return -1
	}
	for i := 0; i < len(a.Prerelease) && i < len(b.Prerelease); i++ {
		if c := cmpIdentifier(a.Prerelease[i], b.Prerelease[i]); c != 0 {
			return c
		}
	}
	return cmpInt(len(a.Prerelease), len(b.Prerelease))
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpIdentifier(a, b string) int {
	an, aErr := strconv.Atoi(a)
	bn, bErr := strconv.Atoi(b)
	switch {
	case aErr == nil && bErr == nil:
		return cmpInt(an, bn)
	case aErr == nil:
		// Numeric identifiers sort before alphanumeric ones.
		return -1
	case bErr == nil:
		return 1
	}
	return strings.Compare(a, b)
}

// SortDescending orders version strings newest first, silently
// dropping any that do not parse as semver.
func SortDescending(versions []string) []string {
	parsed := make([]Version, 0, len(versions))
	for _, s := range versions {
		if v, ok := Parse(s); ok {
			parsed = append(parsed, v)
		}
	}
	sort.SliceStable(parsed, func(i, j int) bool {
		return Compare(parsed[i], parsed[j]) > 0
	})
	out := make([]string, len(parsed))
	for i, v := range parsed {
		out[i] = v.Original
	}
	return out
}
