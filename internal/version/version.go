// Package version holds build information set through -ldflags.
package version

import "fmt"

var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String formats the build information for --version and start-up logs.
func String() string {
	return fmt.Sprintf("phenotrace %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
