// syscalls.go - component F: syscall registry and trampoline dispatcher.
//
// The registry is an append-only table of (name, handlerIndex,
// descriptorAddr) entries; register(name) is idempotent (a repeated name
// returns its existing descriptor). The dispatcher is installed as a single
// code hook on the trampoline address and plays the AIX syscall ABI: r2
// holds the ordinal, r3..r10 hold arguments, the handler's return value goes
// to r3.
package main

import (
	"fmt"

	"github.com/intuitionamiga/aixrun/cpu32"
)

// negOneInt32 is -1 as a non-constant int32, used to convert to uint32
// without tripping the "constant overflows" compile-time check.
var negOneInt32 int32 = -1

// descriptorSize is the size in bytes of a function descriptor:
// <code_addr, toc_anchor, env_ptr>, each a big-endian uint32.
const descriptorSize = 12

// SyscallHandler is a registered syscall implementation. It reads its own
// arguments from the CPU via the dispatcher's read_Nth_arg helpers and
// returns the value to place in r3.
type SyscallHandler func(d *SyscallDispatcher, c cpu32.Core) int32

// registryEntry is one append-only registry row.
type registryEntry struct {
	name           string
	handlerIndex   int // -1 if unimplemented
	descriptorAddr uint32
}

// SyscallRegistry owns the append-only syscall table and the bump allocator
// backing each synthetic function descriptor.
type SyscallRegistry struct {
	mm *MM
	tr *tracer

	handlers map[string]SyscallHandler
	order    []string // stable handler-table iteration, for diagnostics only

	entries    []registryEntry
	byName     map[string]int // name -> index into entries
	nextDescAddr uint32
}

func newSyscallRegistry(mm *MM, tr *tracer) *SyscallRegistry {
	return &SyscallRegistry{
		mm:           mm,
		tr:           tr,
		handlers:     make(map[string]SyscallHandler),
		byName:       make(map[string]int),
		nextDescAddr: unixFuncDescStart,
	}
}

// addHandler installs the host implementation for an AIX kernel symbol name,
// ahead of any register() call for it.
func (r *SyscallRegistry) addHandler(name string, fn SyscallHandler) {
	if _, exists := r.handlers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.handlers[name] = fn
}

// register returns the existing descriptor for name, or allocates a new
// 12-byte function descriptor <trampolineAddr, ordinal, ordinal>, writes it
// to guest memory, and links a new registry entry. ordinal doubles as both
// the "TOC anchor" slot and the env slot: the dispatcher only ever reads r2,
// which the descriptor's TOC field feeds on a call through it.
func (r *SyscallRegistry) register(name string) (uint32, error) {
	if idx, ok := r.byName[name]; ok {
		return r.entries[idx].descriptorAddr, nil
	}

	addr := r.nextDescAddr
	next, err := addU32(addr, descriptorSize)
	if err != nil || next > unixFuncDescStart+unixFuncDescSize {
		return 0, fmt.Errorf("syscalls: function-descriptor table exhausted registering %q", name)
	}
	r.nextDescAddr = next

	ordinal := uint32(len(r.entries))
	if ordinal == 0 {
		// The whole descriptor heap is mapped once, on first registration;
		// descriptors are 12 bytes and are not page-aligned.
		if err := r.mm.mapRegion(unixFuncDescStart, unixFuncDescSize, cpu32.ProtRWX); err != nil {
			return 0, err
		}
	}
	if err := r.mm.WriteU32(addr, trampolineAddr); err != nil {
		return 0, err
	}
	if err := r.mm.WriteU32(addr+4, ordinal); err != nil {
		return 0, err
	}
	if err := r.mm.WriteU32(addr+8, ordinal); err != nil {
		return 0, err
	}

	handlerIndex := -1
	if _, ok := r.handlers[name]; ok {
		handlerIndex = int(ordinal)
	}

	r.entries = append(r.entries, registryEntry{name: name, handlerIndex: handlerIndex, descriptorAddr: addr})
	r.byName[name] = int(ordinal)

	if handlerIndex < 0 {
		r.tr.Warnf("register: %q has no host handler; calls will return -1", name)
	}

	return addr, nil
}

// SyscallDispatcher drives the trampoline hook. It owns the registry by
// reference and is installed once by the VM orchestrator.
type SyscallDispatcher struct {
	mm       *MM
	tr       *tracer
	registry *SyscallRegistry
	trace    bool
}

func newSyscallDispatcher(mm *MM, tr *tracer, registry *SyscallRegistry, trace bool) *SyscallDispatcher {
	d := &SyscallDispatcher{mm: mm, tr: tr, registry: registry, trace: trace}
	d.installHandlers()
	return d
}

// install registers the dispatcher as the trampoline's single-address code
// hook.
func (d *SyscallDispatcher) install(c cpu32.Core) error {
	_, err := c.HookCode(trampolineAddr, trampolineAddr+1, func(c cpu32.Core, addr uint32) error {
		return d.dispatch(c)
	})
	return err
}

// dispatch reads the ordinal from r2, looks it up, and invokes its handler
// (or reports it unimplemented), writing the result to r3.
func (d *SyscallDispatcher) dispatch(c cpu32.Core) error {
	ordinal := c.GPR(2)
	if int(ordinal) >= len(d.registry.entries) {
		c.SetGPR(3, uint32(negOneInt32))
		return nil
	}
	entry := d.registry.entries[ordinal]
	if entry.handlerIndex < 0 {
		d.tr.Warnf("UNIMPLEMENTED syscall %q (ordinal %d)", entry.name, ordinal)
		c.SetGPR(3, uint32(negOneInt32))
		return nil
	}
	fn := d.registry.handlers[entry.name]
	ret := fn(d, c)
	if d.trace {
		d.tr.Tracef("%s() = %d", entry.name, ret)
	}
	c.SetGPR(3, uint32(ret))
	return nil
}

// Argument-reading helpers: read_1st_arg..read_8th_arg, mapped onto r3..r10.
func (d *SyscallDispatcher) arg(c cpu32.Core, n int) uint32 { return c.GPR(2 + n) }

func (d *SyscallDispatcher) arg1(c cpu32.Core) uint32 { return d.arg(c, 1) }
func (d *SyscallDispatcher) arg2(c cpu32.Core) uint32 { return d.arg(c, 2) }
func (d *SyscallDispatcher) arg3(c cpu32.Core) uint32 { return d.arg(c, 3) }
func (d *SyscallDispatcher) arg4(c cpu32.Core) uint32 { return d.arg(c, 4) }
func (d *SyscallDispatcher) arg5(c cpu32.Core) uint32 { return d.arg(c, 5) }
func (d *SyscallDispatcher) arg6(c cpu32.Core) uint32 { return d.arg(c, 6) }
func (d *SyscallDispatcher) arg7(c cpu32.Core) uint32 { return d.arg(c, 7) }
func (d *SyscallDispatcher) arg8(c cpu32.Core) uint32 { return d.arg(c, 8) }

// installHandlers populates the static name -> host-function mapping. This
// is the handler table the registry consults when register() is called for
// a /unix symbol of function class.
func (d *SyscallDispatcher) installHandlers() {
	r := d.registry
	r.addHandler("kwrite", sysKwrite)
	r.addHandler("kread", sysKread)
	r.addHandler("kopen", sysKopen)
	r.addHandler("close", sysClose)
	r.addHandler("_exit", sysExit)
	r.addHandler("__loadx", sysLoadx)
	r.addHandler("kfcntl", sysKfcntl)
	r.addHandler("kioctl", sysKioctl)
	r.addHandler("read_sysconfig", sysReadSysconfig)
	r.addHandler("vmgetinfo", sysVmgetinfo)
	r.addHandler("brk", sysBrk)
	r.addHandler("sbrk", sysSbrk)
	r.addHandler("__libc_sbrk", sysLibcSbrk)
	r.addHandler("getuidx", sysGetuidx)
	r.addHandler("getgidx", sysGetgidx)
	r.addHandler("statx", sysStatx)
	r.addHandler("fstatx", sysFstatx)
}
