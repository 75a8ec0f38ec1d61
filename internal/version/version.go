// Package version provides version information for artifact-forge.
package version

// Version is the current version of artifact-forge.
// It can be overridden at build time with:
//
//	go build -ldflags "-X github.com/boblangley/artifact-forge/internal/version.Version=x.y.z"
var Version = "0.1.0"

// Name is the application name.
const Name = "artifact-forge"
