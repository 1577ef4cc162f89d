// insnemu.go - component H: instruction emulation assist.
//
// The assumed PowerPC32 core does not implement every ISA-v2.05+ opcode.
// When it fetches one it raises interrupt vector POWERPC_EXCP_HV_EMU (96);
// this hook decodes the offending word and polyfills it in Go, then lets
// execution resume at the PC the core already advanced past it.
//
// Grounded on debug_disasm_x86.go/debug_disasm_m68k.go's decode-by-field-
// extraction style: pull primary opcode and extended opcode out of fixed bit
// ranges, switch on the pair, and fail loudly on anything unrecognised.
package main

import (
	"fmt"

	"github.com/intuitionamiga/aixrun/cpu32"
)

const powerpcExcpHVEmu = 96

// Extended (X-form) subopcodes this emulator polyfills.
const (
	xoCmpb    = 508
	xoPopcntb = 122
)

// InsnEmu installs the interrupt hook and decodes/emulates the instructions
// the core could not.
type InsnEmu struct {
	mm *MM
	tr *tracer
}

func newInsnEmu(mm *MM, tr *tracer) *InsnEmu {
	return &InsnEmu{mm: mm, tr: tr}
}

func (e *InsnEmu) install(c cpu32.Core) error {
	_, err := c.HookInterrupt(powerpcExcpHVEmu, e.handle)
	return err
}

func opcodeOf(insn uint32) uint32 { return (insn >> 26) & 0x3F }
func subopOf(insn uint32) uint32  { return (insn >> 1) & 0x3FF }

// handle reads PC-4 (the exception fires after PC has already advanced past
// the offending word), fetches and decodes that word, and dispatches.
func (e *InsnEmu) handle(c cpu32.Core, vector uint32) error {
	pc := c.PC() - 4
	raw, err := e.mm.ReadBytes(pc, 4)
	if err != nil {
		return fmt.Errorf("insn_emu: failed to fetch instruction at %#x: %w", pc, err)
	}
	insn := be32(raw)
	op := opcodeOf(insn)
	subop := subopOf(insn)

	switch {
	case op == 31 && subop == xoCmpb:
		e.emuCmpb(c, insn, pc)
		return nil
	case op == 31 && subop == xoPopcntb:
		e.emuPopcntb(c, insn, pc)
		return nil
	default:
		e.tr.Errorf("unhandled HV_EMU exception at %#x: %#08x (opcode=%d subop=%d)", pc, insn, op, subop)
		return fmt.Errorf("insn_emu: unhandled instruction %#08x at %#x", insn, pc)
	}
}

// emuCmpb emulates "cmpb RA,RS,RB": per-byte equality compare of RS and RB,
// 0xFF where equal else 0x00, written to RA. Field layout follows X-form:
// RS occupies bits 25:21, the destination RA occupies bits 20:16, RB
// occupies bits 15:11.
func (e *InsnEmu) emuCmpb(c cpu32.Core, insn uint32, pc uint32) {
	rs := int((insn >> 21) & 0x1F)
	ra := int((insn >> 16) & 0x1F)
	rb := int((insn >> 11) & 0x1F)

	vs, vb := c.GPR(rs), c.GPR(rb)
	var result uint32
	for i := 0; i < 4; i++ {
		shift := uint(i * 8)
		byteS := byte(vs >> shift)
		byteB := byte(vb >> shift)
		if byteS == byteB {
			result |= 0xFF << shift
		}
	}
	c.SetGPR(ra, result)
	e.tr.Tracef("(%#08x) cmpb(r%d,r%d,r%d) = %#08x", pc, ra, rs, rb, result)
}

// emuPopcntb emulates "popcntb RA,RS": each byte of RA holds the population
// count (0-8) of the corresponding byte of RS, alongside cmpb; prtyw/prtyd
// remain unimplemented -- no library in this module's load graph needs them.
func (e *InsnEmu) emuPopcntb(c cpu32.Core, insn uint32, pc uint32) {
	rs := int((insn >> 21) & 0x1F)
	ra := int((insn >> 16) & 0x1F)

	vs := c.GPR(rs)
	var result uint32
	for i := 0; i < 4; i++ {
		shift := uint(i * 8)
		b := byte(vs >> shift)
		var n uint32
		for b != 0 {
			n += uint32(b & 1)
			b >>= 1
		}
		result |= n << shift
	}
	c.SetGPR(ra, result)
	e.tr.Tracef("(%#08x) popcntb(r%d,r%d) = %#08x", pc, ra, rs, result)
}
