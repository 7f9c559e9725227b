package semver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bookverse/promotion/internal/semver"
)

func TestParse(t *testing.T) {
	v, ok := semver.Parse("1.2.3")
	assert.True(t, ok)
	assert.Equal(t, 1, v.Major)
	assert.Equal(t, 2, v.Minor)
	assert.Equal(t, 3, v.Patch)
	assert.Empty(t, v.Prerelease)

	v, ok = semver.Parse("v2.0.0-rc.1+build.7")
	assert.True(t, ok)
	assert.Equal(t, []string{"rc", "1"}, v.Prerelease)

	for _, bad := range []string{"", "1.2", "1.2.x", "01.2.3", "latest"} {
		_, ok := semver.Parse(bad)
		assert.False(t, ok, "expected %q to be rejected", bad)
	}
}

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "2.0.0", -1},
		{"1.10.0", "1.9.0", 1},
		{"1.0.1", "1.0.0", 1},
		{"1.0.0-alpha", "1.0.0", -1},
		{"1.0.0-alpha", "1.0.0-alpha.1", -1},
		{"1.0.0-alpha.1", "1.0.0-alpha.beta", -1},
		{"1.0.0-beta.2", "1.0.0-beta.11", -1},
		{"1.0.0-rc.1", "1.0.0-beta.11", 1},
		{"1.0.0+a", "1.0.0+b", 0},
	}
	for _, c := range cases {
		av, _ := semver.Parse(c.a)
		bv, _ := semver.Parse(c.b)
		assert.Equal(t, c.want, semver.Compare(av, bv), "%s vs %s", c.a, c.b)
	}
}

func TestSortDescending(t *testing.T) {
	got := semver.SortDescending([]string{
		"1.0.0", "not-a-version", "2.1.0", "2.1.0-rc.1", "0.9.9",
	})
	assert.Equal(t, []string{"2.1.0", "2.1.0-rc.1", "1.0.0", "0.9.9"}, got)
}
