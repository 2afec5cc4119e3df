// Package version holds build information, set at link time with -ldflags.
package version

var (
	// Version is the released version of themekit.
	Version = "dev"
	// Commit is the git commit the binary was built from.
	Commit = "unknown"
)
