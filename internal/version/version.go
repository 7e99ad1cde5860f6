// Package version reports the sqlitebak build. Version and Commit are set
// at build time:
//
//	go build -ldflags "-X github.com/ramonehamilton/sqlite-incbackup/internal/version.Version=v1.2.3 -X github.com/ramonehamilton/sqlite-incbackup/internal/version.Commit=abc1234"
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// Version is the release version, "dev" for local builds.
	Version = "dev"

	// Commit is the source revision. Empty falls back to the VCS stamp
	// recorded by the Go toolchain, if any.
	Commit = ""
)

// GetVersion returns the current application version.
func GetVersion() string {
	return Version
}

// GetCommit returns the source revision, shortened to 12 characters.
func GetCommit() string {
	commit := Commit
	if commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					commit = s.Value
				}
			}
		}
	}
	if len(commit) > 12 {
		commit = commit[:12]
	}
	return commit
}

// String returns "<version> (<commit>, <go version>)", leaving out the
// commit when unknown.
func String() string {
	if c := GetCommit(); c != "" {
		return fmt.Sprintf("%s (%s, %s)", Version, c, runtime.Version())
	}
	return fmt.Sprintf("%s (%s)", Version, runtime.Version())
}
