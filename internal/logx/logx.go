// Package logx is a small module-tagged logger. Severity filtering and the
// actual sink are swapped at compile time via build tags (see logx_debug.go
// and logx_quiet.go), following the same pattern GoBA's util/dbg package
// uses for its debug/no-debug logger pair.
package logx

import "fmt"

// Severity orders from least to most urgent.
type Severity int

const (
	Debug Severity = iota
	Info
	Warn
	Error
)

func (s Severity) String() string {
	switch s {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "?"
	}
}

// sink is provided by logx_debug.go (default build) or logx_quiet.go
// (the "quiet" build tag, ERROR-only).
var sink func(module string, sev Severity, msg string)

// Logger is a module-tagged front-end onto the shared sink.
type Logger struct {
	module string
}

// New returns a Logger tagged with the given module name, e.g. "bus" or "ppu".
func New(module string) Logger { return Logger{module: module} }

func (l Logger) log(sev Severity, format string, args ...interface{}) {
	if sink == nil {
		return
	}
	sink(l.module, sev, fmt.Sprintf(format, args...))
}

func (l Logger) Debugf(format string, args ...interface{}) { l.log(Debug, format, args...) }
func (l Logger) Infof(format string, args ...interface{})  { l.log(Info, format, args...) }
func (l Logger) Warnf(format string, args ...interface{})  { l.log(Warn, format, args...) }
func (l Logger) Errorf(format string, args ...interface{}) { l.log(Error, format, args...) }
