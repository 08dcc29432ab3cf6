package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/soyeahso/paxxium/internal/version.Version=1.0.0
//	  -X github.com/soyeahso/paxxium/internal/version.Commit=abc123
//	  -X github.com/soyeahso/paxxium/internal/version.Date=2026-01-01"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Name is the program name reported by the CLI and outbound HTTP clients.
const Name = "paxxium"

// Info returns a formatted version string.
func Info() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, %s/%s)",
		Name, Version, short(Commit), Date, runtime.GOOS, runtime.GOARCH)
}

// UserAgent is sent on requests to the search and model providers.
func UserAgent() string {
	return Name + "/" + Version
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
