//go:build !nolog && !debug && !trace
// +build !nolog,!debug,!trace

package build

// LogLevel specifies the default log level for stdout test logging.
var LogLevel = "info"
