// syscalls_mem.go - brk/sbrk and friends, delegating to the memory
// manager's break tracking (mm.go).
package main

import "github.com/intuitionamiga/aixrun/cpu32"

// sysBrk sets the break to the requested address.
func sysBrk(d *SyscallDispatcher, c cpu32.Core) int32 {
	newBrk := d.arg1(c)
	if err := d.mm.Brk(newBrk); err != nil {
		d.setErrno(aixENOMEM)
		return -1
	}
	return 0
}

// sysSbrk adjusts the break by a signed increment and returns the old
// break, per the classic sbrk(2) contract.
func sysSbrk(d *SyscallDispatcher, c cpu32.Core) int32 {
	incr := int32(d.arg1(c))
	old, err := d.mm.Sbrk(incr)
	if err != nil {
		d.setErrno(aixENOMEM)
		return -1
	}
	return int32(old)
}

// sysLibcSbrk takes the AIX libc wrapper's two-word (hi, lo) increment; only
// the low 32 bits matter for this 32-bit-only emulator -- the high word is
// silently dropped, correct only in 32-bit mode.
func sysLibcSbrk(d *SyscallDispatcher, c cpu32.Core) int32 {
	_ = d.arg1(c) // incr_hi, ignored
	incr := int32(d.arg2(c))
	old, err := d.mm.Sbrk(incr)
	if err != nil {
		d.setErrno(aixENOMEM)
		return -1
	}
	return int32(old)
}
