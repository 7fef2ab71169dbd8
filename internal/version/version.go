// Package version reports build information of wsxctl.
//
// Release builds set the variables with ldflags:
//
//	go build -ldflags "-X github.com/rickgao/zato-client/internal/version.Version=0.3.0 \
//	                   -X github.com/rickgao/zato-client/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/zato-client/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" \
//	  ./cmd/wsxctl
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is a snapshot of the build information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build information. Commit falls back to the VCS
// revision recorded by the Go toolchain when not set through ldflags.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info.Commit == "unknown" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" && len(s.Value) >= 7 {
					info.Commit = s.Value[:7]
				}
			}
		}
	}
	return info
}

// String returns a one-line version string.
func String() string {
	i := Get()
	return fmt.Sprintf("wsxctl %s (%s) built %s, %s %s", i.Version, i.Commit, i.BuildTime, i.GoVersion, i.Platform)
}
