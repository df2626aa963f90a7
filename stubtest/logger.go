package stubtest

import (
	"fmt"
	"strings"
)

type discardLogger struct{}

func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}
func (discardLogger) Debug(string, ...any) {}

type logfLogger func(format string, args ...any)

func (l logfLogger) Info(msg string, args ...any)  { l.log("INFO", msg, args) }
func (l logfLogger) Warn(msg string, args ...any)  { l.log("WARN", msg, args) }
func (l logfLogger) Error(msg string, args ...any) { l.log("ERROR", msg, args) }
func (l logfLogger) Debug(msg string, args ...any) { l.log("DEBUG", msg, args) }

func (l logfLogger) log(level, msg string, args []any) {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	l("%s %s", level, b.String())
}
