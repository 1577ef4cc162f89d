// mm.go - component D: the guest memory manager.
//
// Owns the entire 4 GiB guest address space: partitions it into fixed
// regions, maps pages into the driven cpu32.Core, zero-fills bss, marshals
// argv/envp onto the guest stack, and is the only place that converts
// between host-order Go values and big-endian guest words.
//
// Follows machine_bus.go's shape: MachineBus owns a region table
// (IORegion/mapping) and is the sole mutator of memory state, with everyone
// else going through it for reads and writes. This MM keeps that shape —
// region table, bounds-checked access, sole owner of cpu32.Core page
// mappings — and replaces MMIO read/write callbacks with raw guest pages.
package main

import (
	"fmt"

	"github.com/intuitionamiga/aixrun/cpu32"
)

const pageSize = 0x1000

// Guest address space layout. Library text/data each get an advisory 256 MiB
// bump budget; the actual hard limit in each case is the start of the next
// fixed region, which in this layout is reached well before 256 MiB (240 MiB
// and 176 MiB respectively). Only the hard limits are checked by the
// allocators; the 256 MiB soft budgets are not consulted.
const (
	syscallPageStart = 0x3000
	syscallPageSize  = 0x1000
	trampolineAddr   = 0x3700

	milicodePageStart = 0xD000
	milicodePageSize  = 0x3000

	unixDataStart = 0x0010_0000
	unixDataSize  = 0x0010_0000

	unixFuncDescStart = 0x0F00_0000
	unixFuncDescSize  = 0x0010_0000

	execTextStart = 0x1000_0000
	execTextSize  = 0x0100_0000
	execTextEnd   = execTextStart + execTextSize

	libTextStart      = execTextEnd
	libTextBudgetSoft = 0x1000_0000 // 256 MiB, advisory
	libTextHardLimit  = 0x2000_0000 // start of exec data

	execDataStart = 0x2000_0000
	execDataSize  = 0x0100_0000
	execDataEnd   = execDataStart + execDataSize

	libDataStart      = execDataEnd
	libDataBudgetSoft = 0x1000_0000 // 256 MiB, advisory
	libDataHardLimit  = 0x2C00_0000 // reserves room for heap + stack below

	heapAddr      = 0x2C00_0000
	heapHardLimit = 0x2E00_0000

	stackSize = 0x0200_0000 // 32 MiB
	stackTop  = 0x3000_0000
	stackBottom = stackTop - stackSize
)

// Section index constants used for the deltas array.
const (
	secText = 0
	secData = 1
	secBSS  = 2
)

// ErrRegionOverflow/ErrBadExecLayout are the fatal allocation failures this
// manager reports for over-budget or malformed executable layouts.
var (
	ErrRegionOverflow = fmt.Errorf("mm: region would overflow its budget")
	ErrBadExecLayout  = fmt.Errorf("mm: executable text/data/bss layout out of bounds")
)

// MM is the memory manager. Constructed once by the VM orchestrator and
// threaded by reference into the linker, /unix shim and syscall dispatcher.
type MM struct {
	core cpu32.Core
	tr   *tracer

	nextLibText uint32
	nextLibData uint32

	heapEnd    uint32 // current brk
	heapMapped uint32 // page-aligned end of the heap pages mapped so far

	vmErrno   uint32
	vmEnviron uint32
}

func newMM(c cpu32.Core, tr *tracer) *MM {
	return &MM{
		core:        c,
		tr:          tr,
		nextLibText: libTextStart,
		nextLibData: libDataStart,
		heapEnd:     heapAddr,
		heapMapped:  heapAddr,
	}
}

func roundUpPage(v uint32) (uint32, error) { return alignUp(v, pageSize) }

// mapRegion maps [addr, addr+size) (size need not be page-aligned; it is
// rounded up here) RWX into the core.
func (m *MM) mapRegion(addr, size uint32, prot cpu32.Prot) error {
	aligned, err := roundUpPage(size)
	if err != nil {
		return err
	}
	if aligned == 0 {
		return nil
	}
	return m.core.MapMemory(addr, aligned, prot)
}

// zeroFill writes size zero bytes starting at addr.
func (m *MM) zeroFill(addr, size uint32) error {
	const chunk = 4096
	buf := make([]byte, chunk)
	for size > 0 {
		n := uint32(chunk)
		if n > size {
			n = size
		}
		if err := m.core.WriteMem(addr, buf[:n]); err != nil {
			return err
		}
		addr += n
		size -= n
	}
	return nil
}

// allocForMainExec maps the full 16 MiB exec text and exec data regions as
// single spans and returns all-zero deltas: the main executable always runs
// at its preferred XCOFF addresses.
func (m *MM) allocForMainExec(textVaddr, tsize, dataVaddr, dsize, bssVaddr, bssSize uint32) (deltas [3]uint32, err error) {
	if textVaddr < execTextStart || textVaddr >= execTextEnd {
		return deltas, ErrBadExecLayout
	}
	if dataVaddr < execDataStart || dataVaddr >= execDataEnd {
		return deltas, ErrBadExecLayout
	}
	if bssSize > 0 && bssVaddr < dataVaddr {
		return deltas, ErrBadExecLayout
	}
	if dataVaddr+dsize > bssVaddr && bssSize > 0 && bssVaddr != dataVaddr+dsize {
		// bss must not start before the end of data.
		if bssVaddr < dataVaddr+dsize {
			return deltas, ErrBadExecLayout
		}
	}
	if err := m.mapRegion(execTextStart, execTextSize, cpu32.ProtRWX); err != nil {
		return deltas, err
	}
	if err := m.mapRegion(execDataStart, execDataSize, cpu32.ProtRWX); err != nil {
		return deltas, err
	}
	if bssSize > 0 {
		if err := m.zeroFill(bssVaddr, bssSize); err != nil {
			return deltas, err
		}
	}
	return [3]uint32{0, 0, 0}, nil
}

// allocForLibrary bump-allocates the next text/data runtime bases, page-
// aligning each section's size, and computes the per-section deltas: the
// data delta and the bss delta are always equal.
func (m *MM) allocForLibrary(textVaddr, tsize, dataVaddr, dsize, bssVaddr, bssSize uint32) (deltas [3]uint32, err error) {
	alignedText, err := roundUpPage(tsize)
	if err != nil {
		return deltas, err
	}
	alignedData, err := roundUpPage(dsize + bssSpan(dataVaddr, dsize, bssVaddr, bssSize))
	if err != nil {
		return deltas, err
	}

	newLibText, err := addU32(m.nextLibText, alignedText)
	if err != nil || newLibText > libTextHardLimit {
		return deltas, ErrRegionOverflow
	}
	newLibData, err := addU32(m.nextLibData, alignedData)
	if err != nil || newLibData > libDataHardLimit {
		return deltas, ErrRegionOverflow
	}

	textDelta := m.nextLibText - textVaddr
	dataDelta := m.nextLibData - dataVaddr
	bssDelta := dataDelta

	if err := m.mapRegion(m.nextLibText, tsize, cpu32.ProtRWX); err != nil {
		return deltas, err
	}
	if err := m.mapRegion(m.nextLibData, dsize+bssSpan(dataVaddr, dsize, bssVaddr, bssSize), cpu32.ProtRWX); err != nil {
		return deltas, err
	}
	if bssSize > 0 {
		runtimeBSS := bssVaddr + bssDelta
		if err := m.zeroFill(runtimeBSS, bssSize); err != nil {
			return deltas, err
		}
	}

	m.nextLibText = newLibText
	m.nextLibData = newLibData

	return [3]uint32{textDelta, dataDelta, bssDelta}, nil
}

// bssSpan returns how much of the data-region allocation must additionally
// cover bss beyond the data section itself.
func bssSpan(dataVaddr, dsize, bssVaddr, bssSize uint32) uint32 {
	if bssSize == 0 {
		return 0
	}
	dataEnd := dataVaddr + dsize
	bssEnd := bssVaddr + bssSize
	if bssEnd <= dataEnd {
		return 0
	}
	return bssEnd - dataEnd
}

func (m *MM) writeText(runtimeAddr uint32, data []byte) error { return m.core.WriteMem(runtimeAddr, data) }
func (m *MM) writeData(runtimeAddr uint32, data []byte) error { return m.core.WriteMem(runtimeAddr, data) }

func (m *MM) ReadU32(addr uint32) (uint32, error) {
	b, err := m.core.ReadMem(addr, 4)
	if err != nil {
		return 0, err
	}
	return be32(b), nil
}

func (m *MM) WriteU32(addr, v uint32) error {
	var b [4]byte
	putBE32(b[:], v)
	return m.core.WriteMem(addr, b[:])
}

func (m *MM) ReadBytes(addr, n uint32) ([]byte, error) { return m.core.ReadMem(addr, n) }
func (m *MM) WriteBytes(addr uint32, b []byte) error   { return m.core.WriteMem(addr, b) }

// ReadCString reads a NUL-terminated guest string, up to a generous bound to
// avoid an unbounded read against a corrupt pointer.
func (m *MM) ReadCString(addr uint32) (string, error) {
	const maxLen = 1 << 20
	var out []byte
	for uint32(len(out)) < maxLen {
		chunk, err := m.core.ReadMem(addr+uint32(len(out)), 64)
		if err != nil {
			return "", err
		}
		for _, c := range chunk {
			if c == 0 {
				return string(out), nil
			}
			out = append(out, c)
		}
	}
	return "", fmt.Errorf("mm: guest string at %#x exceeds %d bytes without a NUL", addr, maxLen)
}

// initStack maps the stack, reserves vm_errno/vm_environ, and lays out
// argc/argv/envp: pointer arrays first (low addresses), string bodies above
// them, stack pointer 16-byte aligned, r1 64 bytes above the first argv
// entry.
func (m *MM) initStack(argv, envp []string) error {
	if err := m.mapRegion(stackBottom, stackSize, cpu32.ProtRWX); err != nil {
		return err
	}

	top := uint32(stackTop)
	top -= 4
	m.vmErrno = top
	top -= 4
	m.vmEnviron = top
	top -= 256 // gap before the argv/envp region

	// Compute string-body bytes needed (each NUL-terminated).
	stringsLen := uint32(0)
	for _, s := range argv {
		stringsLen += uint32(len(s)) + 1
	}
	for _, s := range envp {
		stringsLen += uint32(len(s)) + 1
	}
	ptrWords := uint32(len(argv)+1) + uint32(len(envp)+1)
	total := ptrWords*4 + stringsLen

	sp := top - total
	sp &^= 0xF // 16-byte align

	argvPtr := sp
	envpPtr := argvPtr + uint32(len(argv)+1)*4
	strBase := envpPtr + uint32(len(envp)+1)*4

	writeOne := func(arr []string, ptrBase uint32) (uint32, error) {
		cursor := strBase
		for i, s := range arr {
			if err := m.WriteU32(ptrBase+uint32(i)*4, cursor); err != nil {
				return 0, err
			}
			b := append([]byte(s), 0)
			if err := m.WriteBytes(cursor, b); err != nil {
				return 0, err
			}
			cursor += uint32(len(b))
		}
		if err := m.WriteU32(ptrBase+uint32(len(arr))*4, 0); err != nil {
			return 0, err
		}
		return cursor, nil
	}

	next, err := writeOne(argv, argvPtr)
	if err != nil {
		return err
	}
	strBase = next
	if _, err := writeOne(envp, envpPtr); err != nil {
		return err
	}

	if err := m.WriteU32(m.vmEnviron, envpPtr); err != nil {
		return err
	}
	if err := m.WriteU32(m.vmErrno, 0); err != nil {
		return err
	}

	m.core.SetGPR(3, uint32(len(argv)))
	m.core.SetGPR(4, argvPtr)
	m.core.SetGPR(5, envpPtr)
	m.core.SetGPR(1, argvPtr+64)

	return nil
}

func (m *MM) VMErrnoAddr() uint32   { return m.vmErrno }
func (m *MM) VMEnvironAddr() uint32 { return m.vmEnviron }

// HeapEnd returns the current break (initially heapAddr, before any brk/sbrk
// call has mapped anything).
func (m *MM) HeapEnd() uint32 { return m.heapEnd }

// Brk sets the break to newBrk, mapping any newly-covered pages. Fails if
// newBrk would fall below heapAddr.
func (m *MM) Brk(newBrk uint32) error {
	if newBrk < heapAddr {
		return fmt.Errorf("mm: brk(%#x) below heap start %#x", newBrk, uint32(heapAddr))
	}
	if newBrk > heapHardLimit {
		return ErrRegionOverflow
	}
	if newBrk > m.heapMapped {
		end, err := roundUpPage(newBrk)
		if err != nil {
			return err
		}
		if err := m.mapRegion(m.heapMapped, end-m.heapMapped, cpu32.ProtRWX); err != nil {
			return err
		}
		m.heapMapped = end
	}
	m.heapEnd = newBrk
	return nil
}

// Sbrk adjusts the break by incr (which may be negative) and returns the old
// break, per the classic sbrk(2) contract generalized to AIX's milicode
// wrapper.
func (m *MM) Sbrk(incr int32) (old uint32, err error) {
	old = m.heapEnd
	var next uint32
	if incr >= 0 {
		next, err = addU32(m.heapEnd, uint32(incr))
		if err != nil {
			return old, ErrRegionOverflow
		}
	} else {
		dec := uint32(-incr)
		if dec > m.heapEnd-heapAddr {
			return old, ErrRegionOverflow
		}
		next = m.heapEnd - dec
	}
	if err := m.Brk(next); err != nil {
		return old, err
	}
	return old, nil
}

// installFaultHooks registers the loud, fatal diagnostic for any
// unmapped/protected guest access: print a register dump and abort. This is
// deliberately unrecoverable -- a diagnostic for the emulator author, not a
// condition the guest can catch.
func (m *MM) installFaultHooks() error {
	_, err := m.core.HookMemFault(func(c cpu32.Core, f cpu32.Fault) {
		m.tr.Errorf("unhandled guest fault: %s at %#x (size %d, value %#x)\n%s",
			f.Kind, f.Addr, f.Size, f.Value, c.RegDump())
		panic(fmt.Sprintf("mm: fatal guest fault: %s at %#x", f.Kind, f.Addr))
	})
	return err
}
