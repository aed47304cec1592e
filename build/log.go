// Copyright (c) 2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package build

import (
	"io"
	"os"
	"sync"

	"github.com/btcsuite/btclog"
)

// LogType is an indicating the type of logging specified by the build flag.
type LogType byte

const (
	// LogTypeNone indicates no logging.
	LogTypeNone LogType = iota

	// LogTypeStdOut all logging is written directly to stdout.
	LogTypeStdOut

	// LogTypeDefault logs to both stdout and a given io.PipeWriter.
	LogTypeDefault
)

// String returns a human readable identifier for the logging type.
func (t LogType) String() string {
	switch t {
	case LogTypeNone:
		return "none"
	case LogTypeStdOut:
		return "stdout"
	case LogTypeDefault:
		return "default"
	default:
		return "unknown"
	}
}

// LogWriter is the io.Writer the daemon's log backend writes to.  Output goes
// to stdout and, once a rotator pipe has been attached, to the log file.
type LogWriter struct {
	mu     sync.Mutex
	rotate io.Writer
}

// SetRotator attaches the write end of the log rotator.  A nil writer
// detaches it.
func (w *LogWriter) SetRotator(r io.Writer) {
	w.mu.Lock()
	w.rotate = r
	w.mu.Unlock()
}

// Write implements io.Writer.
func (w *LogWriter) Write(b []byte) (int, error) {
	if LoggingType == LogTypeNone {
		return len(b), nil
	}

	os.Stdout.Write(b)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.rotate != nil && LoggingType == LogTypeDefault {
		w.rotate.Write(b)
	}

	return len(b), nil
}

// NewSubLogger constructs a new subsystem log from the current LogWriter
// implementation. This is primarily intended for use with stdlog, as the actual
// writer is shared amongst all instantiations.
func NewSubLogger(subsystem string,
	genSubLogger func(string) btclog.Logger) btclog.Logger {

	switch Deployment {

	// For production builds, generate a new subsystem logger from the
	// primary log backend. If no function is provided, logging will be
	// disabled.
	case Production:
		if genSubLogger != nil {
			return genSubLogger(subsystem)
		}

	// Development builds either run the daemon, which shares the primary
	// backend, or unit tests, which log straight to stdout.
	case Development:
		switch LoggingType {
		case LogTypeDefault:
			if genSubLogger != nil {
				return genSubLogger(subsystem)
			}

		case LogTypeStdOut:
			backend := btclog.NewBackend(os.Stdout)
			logger := backend.Logger(subsystem)

			level, _ := btclog.LevelFromString(LogLevel)
			logger.SetLevel(level)

			return logger
		}
	}

	// For any other configurations, we'll disable logging.
	return btclog.Disabled
}
