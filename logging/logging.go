// Package logging is a thin level filter in front of the standard log
// package. It exists because the teacher writes directly against log.Printf
// with no level concept at all; spec.md's CLI promises debug/verbose flags,
// so this gives them somewhere to land without pulling in a structured
// logging library the teacher never uses.
package logging

import "log"

// Level is a logging verbosity threshold. Lower values are more severe.
type Level int

const (
	Error Level = iota
	Warn
	Info
	Debug
)

var current = Info

// SetLevel changes the minimum level that will actually be logged.
func SetLevel(l Level) { current = l }

// Debugf logs at debug level.
func Debugf(format string, args ...interface{}) { logAt(Debug, format, args...) }

// Infof logs at info level.
func Infof(format string, args ...interface{}) { logAt(Info, format, args...) }

// Warnf logs at warn level.
func Warnf(format string, args ...interface{}) { logAt(Warn, format, args...) }

// Errorf logs at error level. Error-level messages are never suppressed.
func Errorf(format string, args ...interface{}) { logAt(Error, format, args...) }

func logAt(l Level, format string, args ...interface{}) {
	if l > current {
		return
	}
	log.Printf(format, args...)
}
