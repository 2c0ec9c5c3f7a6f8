// Package version exposes build metadata stamped into the binary.
package version

import "fmt"

// Set at build time via -ldflags "-X media-markup/internal/version.Version=...".
var (
	// Version is the semantic version.
	Version = "0.1.0"

	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"

	// GitCommit is the git commit hash.
	GitCommit = "unknown"
)

// String renders the full build identity for startup logs and the export
// CLI's -version flag.
func String() string {
	return fmt.Sprintf("media-markup %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
