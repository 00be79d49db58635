package monitoring

import "log"

// Logf is the package-level diagnostic logger used by the signal pipelines.
// It defaults to log.Printf but may be replaced by SetLogger so tests or an
// embedding application can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// Verbose gates Debugf. Per-sample diagnostics are emitted only when this is
// enabled; fall confirmations and cluster recomputes always go through Logf.
var Verbose bool

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Debugf logs through Logf only when Verbose is set.
func Debugf(format string, v ...interface{}) {
	if Verbose {
		Logf(format, v...)
	}
}
