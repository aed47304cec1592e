//go:build !nolog && (debug || trace)
// +build !nolog
// +build debug trace

package build

// LogLevel specifies a verbose log level for stdout test logging.
var LogLevel = "debug"
