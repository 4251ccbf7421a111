// Package buildconfig exposes build identity injected at link time:
//
//	go build -ldflags "-X .../buildconfig.version=v1.2.0 -X .../buildconfig.commit=$(git rev-parse --short HEAD)"
package buildconfig

var (
	version = "dev"
	commit  = "unknown"
)

// Version returns the release tag baked into the binary, or "dev".
func Version() string {
	return version
}

// Commit returns the source revision baked into the binary.
func Commit() string {
	return commit
}
