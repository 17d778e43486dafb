// Package version exposes the process's release version, split between
// a dev build (used for mode "dev"/"demo") and a tagged release build.
package version

// Version is the hub's current released version.
// This value can be overridden at build time using ldflags:
//
//	go build -ldflags "-X github.com/EXG1O/telegram-bots-hub/internal/version.Version=v0.95.0"
//
// Semantic versioning: https://semver.org/
var Version = "0.0.0-dev"

// DevVersion is the hub's current development version.
var DevVersion = Version

// GetCurrentVersion returns DevVersion for "dev"/"demo" mode, Version
// otherwise.
func GetCurrentVersion(mode string) string {
	if mode == "dev" || mode == "demo" {
		return DevVersion
	}
	return Version
}
