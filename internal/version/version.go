// Package version holds the build identity of slnsync.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Overridden at build time:
// go build -ldflags "-X slnsync/internal/version.Version=0.5.0 -X slnsync/internal/version.Commit=abc123"
var (
	Version   = "0.4.0"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info returns the version with a short commit suffix when known.
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full returns the version block printed by `slnsync version`.
func Full() string {
	return fmt.Sprintf("slnsync %s\nCommit: %s\nBuilt: %s\nGo: %s", Version, commit(), BuildDate, runtime.Version())
}

// commit falls back to the VCS revision stamped by the go tool.
func commit() string {
	if Commit != "unknown" {
		return Commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return s.Value
			}
		}
	}
	return Commit
}
