package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var debugLevel atomic.Int32

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetDebugLevel sets the verbosity threshold used by Debugf. Level 0
// disables debug output.
func SetDebugLevel(level int) {
	if level < 0 {
		level = 0
	}
	debugLevel.Store(int32(level))
}

// DebugLevel returns the current verbosity threshold.
func DebugLevel() int { return int(debugLevel.Load()) }

// Debugf logs through Logf when level is at or below the configured
// threshold. Level must be at least 1.
func Debugf(level int, format string, v ...interface{}) {
	if level < 1 || level > DebugLevel() {
		return
	}
	Logf(format, v...)
}
