// Package version holds the build identity stamped into the kanso
// binary via -ldflags at release time.
package version

import (
	"fmt"
	"runtime"
)

// Overridden at build time, e.g.
//
//	go build -ldflags "-X .../pkg/version.Version=v0.3.0"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// String renders the one-line banner shown by `kanso version`.
func String() string {
	return fmt.Sprintf("kanso version %s (commit %s, built %s, %s)",
		Version, GitCommit, BuildTime, runtime.Version())
}
