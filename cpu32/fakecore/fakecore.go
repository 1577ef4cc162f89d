// Package fakecore implements cpu32.Core as a byte-slice-backed address
// space with no real PowerPC instruction decoding. It exists only so the
// loader, memory manager, /unix shim and syscall dispatcher can be exercised
// in tests without a real PowerPC-32 core wired in — the same way
// cpu_m68k_harte_test.go unit-tests its own opcode handlers directly against
// constructed register state at least as often as it runs whole programs
// end to end.
//
// Run does not fetch or decode guest instructions; it only invokes the code
// hook covering start (if any), which is sufficient to drive the syscall
// trampoline; code without a hook (such as the milicode routines) cannot be
// run by it.
package fakecore

import (
	"fmt"
	"sort"
	"strings"

	"github.com/intuitionamiga/aixrun/cpu32"
)

type page struct {
	data []byte
	prot cpu32.Prot
}

type codeHook struct {
	start, end uint32
	fn         cpu32.HookFunc
}

// FakeCore is a minimal cpu32.Core. Pages are 4 KiB, matching the guest
// address space's page granularity.
type FakeCore struct {
	pages map[uint32]*page // keyed by page-aligned address

	gpr [32]uint32
	spr map[int]uint32
	pc  uint32

	codeHooks  []codeHook
	faultHook  cpu32.FaultHookFunc
	insnHook   cpu32.InsnHookFunc
	interrupts map[uint32]cpu32.InterruptHookFunc

	nextHandle cpu32.HookHandle
}

const pageSize = 4096

func pageAlignDown(addr uint32) uint32 { return addr &^ (pageSize - 1) }

func New() *FakeCore {
	return &FakeCore{
		pages:      make(map[uint32]*page),
		spr:        make(map[int]uint32),
		interrupts: make(map[uint32]cpu32.InterruptHookFunc),
	}
}

func (c *FakeCore) MapMemory(addr, size uint32, prot cpu32.Prot) error {
	if addr%pageSize != 0 || size%pageSize != 0 {
		return fmt.Errorf("fakecore: MapMemory(%#x, %#x) not page-aligned", addr, size)
	}
	for p := addr; p < addr+size; p += pageSize {
		c.pages[p] = &page{data: make([]byte, pageSize), prot: prot}
	}
	return nil
}

func (c *FakeCore) UnmapMemory(addr, size uint32) error {
	for p := addr; p < addr+size; p += pageSize {
		delete(c.pages, p)
	}
	return nil
}

func (c *FakeCore) lookup(addr uint32) (*page, uint32, bool) {
	base := pageAlignDown(addr)
	p, ok := c.pages[base]
	return p, addr - base, ok
}

func (c *FakeCore) ReadMem(addr, n uint32) ([]byte, error) {
	out := make([]byte, 0, n)
	for n > 0 {
		p, off, ok := c.lookup(addr)
		if !ok {
			c.reportFault(cpu32.FaultReadUnmapped, addr, n, 0)
			return nil, fmt.Errorf("fakecore: read of unmapped address %#x", addr)
		}
		if p.prot&cpu32.ProtRead == 0 {
			c.reportFault(cpu32.FaultReadProtected, addr, n, 0)
			return nil, fmt.Errorf("fakecore: read of protected address %#x", addr)
		}
		take := pageSize - off
		if uint32(take) > n {
			take = n
		}
		out = append(out, p.data[off:uint32(off)+take]...)
		addr += take
		n -= take
	}
	return out, nil
}

func (c *FakeCore) WriteMem(addr uint32, data []byte) error {
	for len(data) > 0 {
		p, off, ok := c.lookup(addr)
		if !ok {
			c.reportFault(cpu32.FaultWriteUnmapped, addr, uint32(len(data)), 0)
			return fmt.Errorf("fakecore: write of unmapped address %#x", addr)
		}
		if p.prot&cpu32.ProtWrite == 0 {
			c.reportFault(cpu32.FaultWriteProtected, addr, uint32(len(data)), 0)
			return fmt.Errorf("fakecore: write of protected address %#x", addr)
		}
		take := pageSize - int(off)
		if take > len(data) {
			take = len(data)
		}
		copy(p.data[off:], data[:take])
		addr += uint32(take)
		data = data[take:]
	}
	return nil
}

func (c *FakeCore) reportFault(kind cpu32.FaultKind, addr, size, value uint32) {
	if c.faultHook != nil {
		c.faultHook(c, cpu32.Fault{Kind: kind, Addr: addr, Size: size, Value: value})
	}
}

func (c *FakeCore) GPR(n int) uint32     { return c.gpr[n] }
func (c *FakeCore) SetGPR(n int, v uint32) { c.gpr[n] = v }
func (c *FakeCore) SPR(n int) uint32     { return c.spr[n] }
func (c *FakeCore) SetSPR(n int, v uint32) { c.spr[n] = v }
func (c *FakeCore) PC() uint32           { return c.pc }
func (c *FakeCore) SetPC(addr uint32)    { c.pc = addr }

func (c *FakeCore) HookCode(start, end uint32, fn cpu32.HookFunc) (cpu32.HookHandle, error) {
	c.codeHooks = append(c.codeHooks, codeHook{start: start, end: end, fn: fn})
	c.nextHandle++
	return c.nextHandle, nil
}

func (c *FakeCore) HookMemFault(fn cpu32.FaultHookFunc) (cpu32.HookHandle, error) {
	c.faultHook = fn
	c.nextHandle++
	return c.nextHandle, nil
}

func (c *FakeCore) HookInvalidInsn(fn cpu32.InsnHookFunc) (cpu32.HookHandle, error) {
	c.insnHook = fn
	c.nextHandle++
	return c.nextHandle, nil
}

func (c *FakeCore) HookInterrupt(vector uint32, fn cpu32.InterruptHookFunc) (cpu32.HookHandle, error) {
	c.interrupts[vector] = fn
	c.nextHandle++
	return c.nextHandle, nil
}

func (c *FakeCore) Unhook(h cpu32.HookHandle) error { return nil }

// Run sets PC to start and invokes the first code hook whose range contains
// start, if any. It does not fetch or decode subsequent instructions — tests
// that need multi-step behaviour drive handlers directly instead.
func (c *FakeCore) Run(start, until uint32) error {
	c.pc = start
	for _, h := range c.codeHooks {
		if start >= h.start && start < h.end {
			return h.fn(c, start)
		}
	}
	return fmt.Errorf("fakecore: Run(%#x): no code hook installed and no instruction decoder available", start)
}

// RaiseInvalidInsn lets a test simulate the core hitting an unimplemented
// ISA-v2.05+ instruction at the current PC.
func (c *FakeCore) RaiseInvalidInsn() error {
	if c.insnHook == nil {
		return fmt.Errorf("fakecore: invalid-instruction trap with no hook installed")
	}
	return c.insnHook(c)
}

func (c *FakeCore) RegDump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pc=%#010x lr=%#010x ctr=%#010x\n", c.pc, c.spr[cpu32.SPR_LR], c.spr[cpu32.SPR_CTR])
	for i := 0; i < 32; i += 4 {
		fmt.Fprintf(&b, "r%-2d=%#010x r%-2d=%#010x r%-2d=%#010x r%-2d=%#010x\n",
			i, c.gpr[i], i+1, c.gpr[i+1], i+2, c.gpr[i+2], i+3, c.gpr[i+3])
	}
	var addrs []uint32
	for a := range c.pages {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	fmt.Fprintf(&b, "%d mapped pages\n", len(addrs))
	return b.String()
}
