package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// stamp sets the ldflags variables for one test.
func stamp(t *testing.T, version, commit, date string) {
	t.Helper()
	v, c, d := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = v, c, d })
	Version, Commit, Date = version, commit, date
}

func TestUnstampedBuild(t *testing.T) {
	assert.Equal(t, "dev", Version)
	assert.Equal(t, "paxxium/dev", UserAgent())

	info := Info()
	assert.True(t, strings.HasPrefix(info, "paxxium dev "), info)
	assert.Contains(t, info, "commit: unknown")
	assert.Contains(t, info, runtime.GOOS+"/"+runtime.GOARCH)
}

func TestStampedBuild(t *testing.T) {
	stamp(t, "0.4.0", "9f3c2ab71d0e", "2026-09-30")

	info := Info()
	assert.Contains(t, info, "paxxium 0.4.0")
	assert.Contains(t, info, "commit: 9f3c2ab,")
	assert.Contains(t, info, "built: 2026-09-30")
	assert.Equal(t, "paxxium/0.4.0", UserAgent())
}

func TestShortCommit(t *testing.T) {
	for in, want := range map[string]string{
		"":          "",
		"abc":       "abc",
		"1234567":   "1234567",
		"12345678":  "1234567",
		"deadbeef9": "deadbee",
	} {
		assert.Equal(t, want, short(in), in)
	}
}
