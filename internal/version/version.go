// Package version reports build metadata for the binaries and the
// /health endpoint.
//
// Variables are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/MAKaminski/alpha-kite/internal/version.Version=1.0.0 \
//	                   -X github.com/MAKaminski/alpha-kite/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/MAKaminski/alpha-kite/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import "runtime"

// Build-time variables (set via ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the build metadata as served over HTTP.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

// Get returns the current build metadata.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// String returns a formatted version string.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
