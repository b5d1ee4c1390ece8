// Package version exposes build metadata set via -ldflags.
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "unknown"
)

// GetInfo returns a human-readable version string.
func GetInfo() string {
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
