//go:build quiet
// +build quiet

package logx

import (
	"log"
	"os"
)

var stdlog = log.New(os.Stderr, "", log.LstdFlags)

func init() {
	sink = func(module string, sev Severity, msg string) {
		if sev < Error {
			return
		}
		stdlog.Printf("[%s] %-5s %s", module, sev, msg)
	}
}
