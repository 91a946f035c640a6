// Package obslog is the ambient logging wrapper every package in this
// module calls through, replacing the hand-rolled buffered/colored
// *Logger the teacher built on jedib0t/go-pretty with
// github.com/projectdiscovery/gologger's leveled, chainable API — the
// logger the rest of the projectdiscovery-based stack already uses.
package obslog

import (
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/gologger/levels"
)

// Logger scopes every call under a component tag (e.g. "httpcache",
// "connpool"), mirroring how the teacher's requestID-tagged LogDebug calls
// let a reader trace a log line back to its origin.
type Logger struct {
	component string
}

// New returns a Logger tagged with component.
func New(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) Infof(format string, args ...interface{}) {
	gologger.Info().Label(l.component).Msgf(format, args...)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	gologger.Debug().Label(l.component).Msgf(format, args...)
}

func (l *Logger) Warningf(format string, args ...interface{}) {
	gologger.Warning().Label(l.component).Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	gologger.Error().Label(l.component).Msgf(format, args...)
}

// EnableDebug raises the global gologger verbosity to Debug — used by
// cmd/httpcachectl's -debug flag.
func (l *Logger) EnableDebug() {
	gologger.DefaultLogger.SetMaxLevel(levels.LevelDebug)
}
