// Package cpu32 describes the external PowerPC-32 big-endian cooperative CPU
// emulator this project drives but does not implement. Core is that
// dependency made concrete as a Go interface, generalized from the
// register/hook/run shape cpu_m68k.go and cpu_x86.go expose for other
// instruction sets.
package cpu32

import "fmt"

// Prot is a bitmask of page permissions. Every guest region this emulator
// maps is RWX; finer protections are representable here but unused, and the
// bits are still named so fault diagnostics can say which access a page was
// missing.
type Prot uint8

const (
	ProtRead Prot = 1 << iota
	ProtWrite
	ProtExec
)

const ProtRWX = ProtRead | ProtWrite | ProtExec

func (p Prot) String() string {
	r, w, x := "-", "-", "-"
	if p&ProtRead != 0 {
		r = "r"
	}
	if p&ProtWrite != 0 {
		w = "w"
	}
	if p&ProtExec != 0 {
		x = "x"
	}
	return r + w + x
}

// FaultKind identifies why a memory-access hook fired.
type FaultKind int

const (
	FaultReadUnmapped FaultKind = iota
	FaultWriteUnmapped
	FaultReadProtected
	FaultWriteProtected
)

func (k FaultKind) String() string {
	switch k {
	case FaultReadUnmapped:
		return "read-unmapped"
	case FaultWriteUnmapped:
		return "write-unmapped"
	case FaultReadProtected:
		return "read-protected"
	case FaultWriteProtected:
		return "write-protected"
	default:
		return fmt.Sprintf("fault(%d)", int(k))
	}
}

// Fault describes one memory-access fault, enough to print a full
// diagnostic: address, value, size, and (via the RegDump callback on Core)
// a full register dump.
type Fault struct {
	Kind FaultKind
	Addr uint32
	Size uint32
	// Value is the value that was being written; zero/ignored on reads.
	Value uint32
}

// HookHandle identifies an installed hook so it can, in principle, be
// uninstalled again. Hooks in this emulator are installed once at startup
// and never removed, so nothing in this repo calls Core.Unhook, but the
// handle is still returned for symmetry with debug_commands.go's
// SetBreakpoint/ClearBreakpoint pairing.
type HookHandle uint64

// HookFunc runs when the PC enters a code range registered with HookCode.
// Returning an error aborts the run: loader/dispatch failures are fatal,
// while syscall failures are reported to the guest by the handler itself,
// not by returning an error here.
type HookFunc func(c Core, addr uint32) error

// FaultHookFunc runs on any unmapped/protected guest memory access.
type FaultHookFunc func(c Core, f Fault)

// InsnHookFunc runs when the core raises its "instruction emulation assist"
// exception (POWERPC_EXCP_HV_EMU) because it does not implement the
// instruction at the current PC.
type InsnHookFunc func(c Core) error

// InterruptHookFunc runs when the core raises an arbitrary interrupt vector.
type InterruptHookFunc func(c Core, vector uint32) error

// Core is the contract this emulator drives. It is never implemented by this
// repository for real hardware/ISA semantics — only by cpu32/fakecore, a test
// double used to exercise the loader, MM, shim and dispatcher without a real
// PowerPC core wired in.
type Core interface {
	// MapMemory maps [addr, addr+size) with the given permissions. size must
	// already be page-aligned; callers (mm.go) are responsible for rounding.
	MapMemory(addr, size uint32, prot Prot) error
	UnmapMemory(addr, size uint32) error

	ReadMem(addr, n uint32) ([]byte, error)
	WriteMem(addr uint32, data []byte) error

	// GPR/SPR indices follow PowerPC convention: GPR 0-31, SPR numbers as
	// defined by the architecture (LR=8, CTR=9 in the synthetic SPR space
	// this emulator uses internally; a real core exposes the full SPR file).
	GPR(n int) uint32
	SetGPR(n int, v uint32)
	SPR(n int) uint32
	SetSPR(n int, v uint32)

	PC() uint32
	SetPC(addr uint32)

	// HookCode installs fn to run before any instruction fetch in
	// [start, end). The syscall trampoline is hooked as a single-address
	// range ([addr, addr+1)); the milicode routines are plain guest code and
	// have no hook.
	HookCode(start, end uint32, fn HookFunc) (HookHandle, error)
	HookMemFault(fn FaultHookFunc) (HookHandle, error)
	HookInvalidInsn(fn InsnHookFunc) (HookHandle, error)
	HookInterrupt(vector uint32, fn InterruptHookFunc) (HookHandle, error)
	Unhook(h HookHandle) error

	// Run executes guest code starting at start. until is an optional
	// address at which Run returns normally without having "crashed"
	// (0 means run until a hook/exit stops it). Run returns whatever error a
	// hook propagated, or nil on a clean stop.
	Run(start, until uint32) error

	// RegDump renders all GPRs/SPRs/PC for the fatal diagnostic dump printed
	// on an unhandled fault.
	RegDump() string
}

// SPR indices used by this emulator's handlers and tests.
const (
	SPR_LR  = 8
	SPR_CTR = 9
)
