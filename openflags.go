// openflags.go - AIX open(2) flag bit translation.
package main

import "golang.org/x/sys/unix"

// AIX O_* bit values (<fcntl.h> on AIX). The low two bits are the access
// mode and copy through unchanged; everything above that needs a lookup.
const (
	aixOAccMode = 0x3
	aixORdOnly  = 0
	aixOWrOnly  = 1
	aixORdWr    = 2

	aixOAppend    = 0x8
	aixOCreat     = 0x100
	aixOTrunc     = 0x200
	aixOExcl      = 0x400
	aixONoCtty    = 0x800
	aixONonblock  = 0x4
	aixOSync      = 0x10
	aixODSync     = 0x400000
	aixORSync     = 0x200000
	aixOLargefile = 0x4000000
	aixONdelay    = 0x8000
	aixODirectory = 0x80000
	aixODirect    = 0x8000000
)

// aixOpenFlagTable maps AIX-specific bits (beyond the access-mode low bits)
// to their host equivalent. AIX flags with no host equivalent (O_CIO,
// O_DEFER, O_DELAY, O_RAW, O_RSHARE, O_NSHARE, O_SEARCH, O_SNAPSHOT) are
// intentionally absent and are dropped silently.
var aixOpenFlagTable = []struct {
	aixBit  int32
	hostBit int
}{
	{aixOAppend, unix.O_APPEND},
	{aixOCreat, unix.O_CREAT},
	{aixOTrunc, unix.O_TRUNC},
	{aixOExcl, unix.O_EXCL},
	{aixONoCtty, unix.O_NOCTTY},
	{aixONonblock, unix.O_NONBLOCK},
	{aixOSync, unix.O_SYNC},
	{aixODSync, unix.O_DSYNC},
	{aixORSync, unix.O_RSYNC},
	{aixOLargefile, unix.O_LARGEFILE},
	{aixONdelay, unix.O_NDELAY},
	{aixODirectory, unix.O_DIRECTORY},
	{aixODirect, unix.O_DIRECT},
}

// translateOpenFlags converts AIX open(2) flags to host flags.
func translateOpenFlags(aixFlags int32) int {
	host := int(aixFlags & aixOAccMode) // low two bits match by construction
	for _, e := range aixOpenFlagTable {
		if aixFlags&e.aixBit != 0 {
			host |= e.hostBit
		}
	}
	return host
}
