//go:build !quiet
// +build !quiet

package logx

import (
	"log"
	"os"
)

var stdlog = log.New(os.Stderr, "", log.LstdFlags)

// minLevel filters what the default build emits; DEBUG is compiled in but
// silent unless GB_LOG_DEBUG is set, mirroring the teacher's GB_DEBUG_TIMER
// environment-variable gate on its own fmt.Printf tracing.
var minLevel = Info

func init() {
	if os.Getenv("GB_LOG_DEBUG") != "" {
		minLevel = Debug
	}
	sink = func(module string, sev Severity, msg string) {
		if sev < minLevel {
			return
		}
		stdlog.Printf("[%s] %-5s %s", module, sev, msg)
	}
}
