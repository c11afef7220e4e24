// Package logging provides cherry2k's bracket-tagged log wrapper,
// following the teacher's "[Router] ..."/"[Streaming] ..." idiom from
// internal/ai/messages.go and streaming.go.
package logging

import (
	"log"
)

// Verbose raises every Logger's effective level to include Debugf
// output, and is toggled once at startup by cmd/cherry2k's -v flag,
// mirroring cmd/gateway/main.go's initConfig().
var Verbose bool

// Logger prefixes every line with "[component] ".
type Logger struct {
	component string
}

// New returns a Logger tagged with component.
func New(component string) *Logger {
	return &Logger{component: component}
}

// WithID returns a Logger tagged "component id", for threading a
// per-exchange correlation id through every log line an orchestrator
// run emits.
func (l *Logger) WithID(id string) *Logger {
	return &Logger{component: l.component + " " + id}
}

// Infof logs at normal verbosity.
func (l *Logger) Infof(format string, args ...interface{}) {
	log.Printf("[%s] "+format, append([]interface{}{l.component}, args...)...)
}

// Warnf logs a warning, always shown regardless of Verbose.
func (l *Logger) Warnf(format string, args ...interface{}) {
	log.Printf("[%s] WARNING: "+format, append([]interface{}{l.component}, args...)...)
}

// Debugf logs only when Verbose is enabled.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if !Verbose {
		return
	}
	log.Printf("[%s] DEBUG: "+format, append([]interface{}{l.component}, args...)...)
}

// EnableVerbose raises the logging level and adds file:line info to
// every subsequent log line, matching the teacher's verbose log setup.
func EnableVerbose() {
	Verbose = true
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
