// Package version holds build metadata injected with -ldflags.
package version

import "runtime"

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// GoVersion returns the Go runtime version string.
func GoVersion() string { return runtime.Version() }

// String renders a one-line summary for logs and the version command.
func String() string {
	return Version + " (" + GitCommit + ", built " + BuildTime + ", " + GoVersion() + ")"
}
