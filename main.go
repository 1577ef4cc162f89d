// main.go - component J: the command-line entry point.
//
// Flag parsing follows cmd/ie32to64/main.go's "-X value" idiom: a flag-only
// CLI, no config file, first positional argument is the program to run and
// everything after it is passed straight through as guest argv.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/intuitionamiga/aixrun/cpu32"
)

func hostEnviron() []string { return os.Environ() }

// newCore is where a real PowerPC32 big-endian cooperative emulator would be
// constructed and handed to the VM; the host CPU core is treated as an
// external collaborator this module drives but does not implement, so no
// concrete implementation lives here. Wiring one in means satisfying
// cpu32.Core and returning it here instead of the placeholder error below.
func newCore() (cpu32.Core, error) {
	return nil, fmt.Errorf("main: no cpu32.Core implementation is wired in; the PowerPC32 core is an external collaborator this module does not implement")
}

func main() {
	var libPath string
	var traceSyscalls, traceLoader, debugServer bool
	var debugPort int

	flag.StringVar(&libPath, "L", ".", "library search path")
	flag.BoolVar(&traceSyscalls, "s", false, "enable syscall tracing")
	flag.BoolVar(&traceLoader, "l", false, "enable loader/linker tracing")
	flag.BoolVar(&debugServer, "d", false, "enable debug server (out of scope; accepted and ignored)")
	flag.IntVar(&debugPort, "g", 1234, "debug server port (out of scope; accepted and ignored)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-L <lib-search-path>] [-s] [-l] [-d] [-g <port>] <xcoff-binary> [args...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	_ = debugServer
	_ = debugPort

	binary := flag.Arg(0)
	guestArgs := flag.Args()[1:]

	core, err := newCore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[vm] %s\n", err)
		os.Exit(1)
	}

	cfg := Config{
		Binary:        binary,
		Args:          guestArgs,
		LibSearchPath: strings.Split(libPath, ":"),
		TraceSyscalls: traceSyscalls,
		TraceLoader:   traceLoader,
	}

	vm, err := NewVM(core, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[vm] %s\n", err)
		os.Exit(1)
	}

	if err := vm.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "[vm] %s\n", err)
		os.Exit(1)
	}
}
