// trace.go - module-prefixed stderr diagnostics, colourised on a terminal.
//
// Follows debug_commands.go's convention of isatty-gated ANSI
// colour (colorCyan/colorRed etc.), generalized here to one prefix per
// component: [loader], [unix], [syscalls], [insn_emu], [mm], [vm].
package main

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

const (
	ansiReset  = "\033[0m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
	ansiCyan   = "\033[36m"
)

// tracer is one module's logger. Constructed once per component by the VM
// orchestrator and threaded through by reference; there are no package-level
// loggers.
type tracer struct {
	prefix  string
	enabled bool
	color   bool
}

func newTracer(prefix string, enabled bool) *tracer {
	return &tracer{
		prefix:  "[" + prefix + "]",
		enabled: enabled,
		color:   term.IsTerminal(int(os.Stderr.Fd())),
	}
}

func (t *tracer) colorize(c, s string) string {
	if !t.color {
		return s
	}
	return c + s + ansiReset
}

// Warnf always prints (fatal-adjacent diagnostics and "unimplemented"/
// "unresolved" warnings are not gated by -s/-l).
func (t *tracer) Warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", t.colorize(ansiYellow, t.prefix), fmt.Sprintf(format, args...))
}

// Errorf is for the loud, register-dump-accompanied diagnostics emitted on
// guest faults and malformed input.
func (t *tracer) Errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", t.colorize(ansiRed, t.prefix), fmt.Sprintf(format, args...))
}

// Tracef is gated by the component's -s/-l flag.
func (t *tracer) Tracef(format string, args ...any) {
	if !t.enabled {
		return
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", t.colorize(ansiCyan, t.prefix), fmt.Sprintf(format, args...))
}
