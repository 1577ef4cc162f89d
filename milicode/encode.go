// Package milicode builds and installs AIX's fixed-address kernel "milicode"
// helper routines: memcmp, strcmp, strlen, memmove, strcpy, callable by a
// guest `bla` instruction at fixed addresses in the kernel segment.
//
// encode.go is a small PowerPC32 field encoder, grounded in
// assembler/ie32asm.go's house style of building an instruction word from
// named opcode/register/immediate fields instead of storing opaque
// pre-assembled byte arrays -- the routines below are fixed machine-code
// blobs, not emulator logic, but building them from mnemonics keeps that
// data auditable.
package milicode

// Register numbers used by the routines below, named for readability.
const (
	r0 = 0
	r3 = 3
	r4 = 4
	r5 = 5
	r6 = 6
	r7 = 7
)

// sprSwap encodes an SPR number into the split 10-bit field PowerPC's XFX
// form actually stores it in (low 5 bits then high 5 bits, swapped from the
// natural order for historical reasons).
func sprSwap(spr uint32) uint32 {
	return ((spr & 0x1F) << 5) | ((spr >> 5) & 0x1F)
}

const (
	sprLR   = 8
	sprCTR  = 9
	xoMtspr = 467
)

// dform builds a D-form word: op(6) D(5) A(5) disp/imm(16).
func dform(op, d, a uint32, imm int16) uint32 {
	return op<<26 | d<<21 | a<<16 | uint32(uint16(imm))
}

// xform builds an X-form word: op(6) D/S(5) A(5) B(5) XO(10) Rc(1).
func xform(op, d, a, b, xo, rc uint32) uint32 {
	return op<<26 | d<<21 | a<<16 | b<<11 | xo<<1 | rc
}

// xfxform builds an XFX-form word: op(6) D/S(5) spr(10, swapped) XO(10) Rc(1).
func xfxform(op, rs, spr, xo uint32) uint32 {
	return op<<26 | rs<<21 | sprSwap(spr)<<11 | xo<<1
}

// bform builds a B-form word: op(6) BO(5) BI(5) BD(14) AA(1) LK(1). bd is a
// signed *word* offset (already excludes the two implicit low zero bits).
func bform(bo, bi uint32, bd int16, aa, lk uint32) uint32 {
	return 16<<26 | bo<<21 | bi<<16 | (uint32(uint16(bd))&0x3FFF)<<2 | aa<<1 | lk
}

// iform builds an I-form word (unconditional branch): op(6) LI(24) AA(1) LK(1).
func iform(li int32, aa, lk uint32) uint32 {
	return 18<<26 | (uint32(li)&0xFFFFFF)<<2 | aa<<1 | lk
}

func addi(rd, ra uint32, simm int16) uint32 { return dform(14, rd, ra, simm) }
func li(rd uint32, simm int16) uint32       { return addi(rd, r0, simm) }
func lbz(rd, ra uint32, disp int16) uint32  { return dform(34, rd, ra, disp) }
func stb(rs, ra uint32, disp int16) uint32  { return dform(38, rs, ra, disp) }

func cmplw(ra, rb uint32) uint32 { return xform(31, 0, ra, rb, 32, 0) }
func cmpwi(ra uint32, simm int16) uint32 { return dform(11, 0, ra, simm) }

// subf rd,ra,rb computes rd = rb - ra, per the ISA's operand order.
func subf(rd, ra, rb uint32) uint32 { return xform(31, rd, ra, rb, 40, 0) }

// mr rd,rs is the canonical `or rd,rs,rs` alias.
func mr(rd, rs uint32) uint32 { return xform(31, rs, rd, rs, 444, 0) }

func mtctr(rs uint32) uint32 { return xfxform(31, rs, sprCTR, xoMtspr) }

// bc/bne/beq/bdnz/b/blr are the control-flow forms the five routines below
// need. bd is in instructions (words), relative to this instruction's
// address, matching how a real assembler resolves labels.
func bc(bo, bi uint32, bd int16) uint32 { return bform(bo, bi, bd, 0, 0) }
func bne(bd int16) uint32               { return bc(4, 2, bd) } // BI=2: cr0 EQ bit, BO=4: branch if not set
func beq(bd int16) uint32               { return bc(12, 2, bd) } // BO=12: branch if set
func bdnz(bd int16) uint32              { return bc(16, 0, bd) } // BO=16: decrement CTR, branch if nonzero
func b(li_ int32) uint32                { return iform(li_, 0, 0) }

// blr is the fixed `bclr 20,0,0` encoding ("branch to link register, always").
const blr = 0x4E800020
