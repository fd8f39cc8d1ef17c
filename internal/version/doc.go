// Package version holds build metadata. ldflags take precedence; otherwise the module
// version and VCS settings from runtime/debug.BuildInfo are used.
package version
