// syscalls_stat.go - statx/fstatx and the three AIX stat record layouts.
//
// AIX has no stat(2); libc's stat/lstat/fstat all funnel through this one
// syscall, selecting among three wire layouts (aix_stat, aix_stat64,
// aix_stat64x) by a command bit. Grounded on
// original_source/syscalls/statx.c's stat_linux2aix/stat64_linux2aix/
// stat64x_linux2aix conversion triplet and its AIX device-number encodings.
package main

import (
	"golang.org/x/sys/unix"

	"github.com/intuitionamiga/aixrun/cpu32"
)

// AIX statx/fstatx command bits.
const (
	stxNormal = 0x00
	stxLink   = 0x01
	stxMount  = 0x02
	stxHidden = 0x04
	stx64     = 0x08
	stx64x    = 0x10
)

// Wire sizes of the three AIX stat layouts, matching the field-by-field
// layouts below exactly (verified against original_source/'s C structs).
const (
	aixStatSize    = 116
	aixStat64Size  = 128
	aixStat64xSize = 172
)

// aixMakedev packs AIX's 32-bit device number: (major<<16)|minor.
func aixMakedev(major, minor uint32) uint32 {
	return (major << 16) | (minor & 0xFFFF)
}

// aixMakedev64 packs AIX's 64-bit device number: high bit always set,
// major in the upper 32 bits, minor in the lower 32.
func aixMakedev64(major, minor uint32) uint64 {
	return (uint64(major) << 32) | uint64(minor) | 0x8000_0000_0000_0000
}

// encodeAixStat writes the 32-bit aix_stat layout. Fields with no Linux
// equivalent (st_flag, st_vfstype, st_vfs, st_type, st_gen) are zeroed.
func encodeAixStat(b []byte, st *unix.Stat_t) {
	putBE32(b[0:4], aixMakedev(unix.Major(st.Dev), unix.Minor(st.Dev)))
	putBE32(b[4:8], uint32(st.Ino))
	putBE32(b[8:12], uint32(st.Mode))
	putBE16(b[12:14], uint16(st.Nlink))
	putBE16(b[14:16], 0) // st_flag
	putBE32(b[16:20], st.Uid)
	putBE32(b[20:24], st.Gid)
	putBE32(b[24:28], aixMakedev(unix.Major(st.Rdev), unix.Minor(st.Rdev)))
	putBE32(b[28:32], uint32(st.Size))
	putBE32(b[32:36], uint32(st.Atim.Sec))
	putBE32(b[36:40], uint32(st.Atim.Nsec))
	putBE32(b[40:44], uint32(st.Mtim.Sec))
	putBE32(b[44:48], uint32(st.Mtim.Nsec))
	putBE32(b[48:52], uint32(st.Ctim.Sec))
	putBE32(b[52:56], uint32(st.Ctim.Nsec))
	putBE32(b[56:60], uint32(st.Blksize))
	putBE32(b[60:64], uint32(st.Blocks))
	// st_vfstype, st_vfs, st_type, st_gen, st_reserved[9]: no host
	// equivalent, left zero.
}

// encodeAixStat64 writes the 64-bit-size aix_stat64 layout (32-bit device
// numbers still, per original_source/'s stat64_linux2aix).
func encodeAixStat64(b []byte, st *unix.Stat_t) {
	putBE32(b[0:4], aixMakedev(unix.Major(st.Dev), unix.Minor(st.Dev)))
	putBE32(b[4:8], uint32(st.Ino))
	putBE32(b[8:12], uint32(st.Mode))
	putBE16(b[12:14], uint16(st.Nlink))
	putBE16(b[14:16], 0) // st_flag
	putBE32(b[16:20], st.Uid)
	putBE32(b[20:24], st.Gid)
	putBE32(b[24:28], aixMakedev(unix.Major(st.Rdev), unix.Minor(st.Rdev)))
	putBE32(b[28:32], uint32(st.Size)) // st_ssize: truncated 32-bit shadow
	putBE32(b[32:36], uint32(st.Atim.Sec))
	putBE32(b[36:40], uint32(st.Atim.Nsec))
	putBE32(b[40:44], uint32(st.Mtim.Sec))
	putBE32(b[44:48], uint32(st.Mtim.Nsec))
	putBE32(b[48:52], uint32(st.Ctim.Sec))
	putBE32(b[52:56], uint32(st.Ctim.Nsec))
	putBE32(b[56:60], uint32(st.Blksize))
	putBE32(b[60:64], uint32(st.Blocks))
	// st_vfstype, st_vfs, st_type, st_gen, st_reserved[10] zero at
	// b[64:120].
	putBE64(b[120:128], uint64(st.Size))
}

// encodeAixStat64x writes the wide aix_stat64x layout (64-bit device
// numbers and nanosecond timestamps split as {u64 sec, s32 nsec, s32 pad}).
func encodeAixStat64x(b []byte, st *unix.Stat_t) {
	putBE64(b[0:8], aixMakedev64(unix.Major(st.Dev), unix.Minor(st.Dev)))
	putBE64(b[8:16], uint64(st.Ino))
	putBE32(b[16:20], uint32(st.Mode))
	putBE16(b[20:22], uint16(st.Nlink))
	putBE16(b[22:24], 0) // st_flag
	putBE32(b[24:28], st.Uid)
	putBE32(b[28:32], st.Gid)
	putBE64(b[32:40], aixMakedev64(unix.Major(st.Rdev), unix.Minor(st.Rdev)))
	putBE64(b[40:48], uint64(st.Size))
	putBE64(b[48:56], uint64(st.Atim.Sec))
	putBE32(b[56:60], uint32(st.Atim.Nsec))
	putBE32(b[60:64], 0) // tv_pad
	putBE64(b[64:72], uint64(st.Mtim.Sec))
	putBE32(b[72:76], uint32(st.Mtim.Nsec))
	putBE32(b[76:80], 0)
	putBE64(b[80:88], uint64(st.Ctim.Sec))
	putBE32(b[88:92], uint32(st.Ctim.Nsec))
	putBE32(b[92:96], 0)
	putBE64(b[96:104], uint64(st.Blksize))
	putBE64(b[104:112], uint64(st.Blocks))
	// st_vfstype, st_vfs, st_type, st_gen, st_reserved[11] zero at
	// b[112:172].
}

// doStat implements both statx (path-based) and fstatx (fd-based): it reads
// the AIX command word, picks a layout, performs the corresponding host
// stat/lstat/fstat, range-checks the result for EOVERFLOW on the 32-bit
// layout, converts, and writes the result to the guest buffer.
func doStat(d *SyscallDispatcher, c cpu32.Core, haveFD bool) int32 {
	pathOrFD := d.arg1(c)
	buf := d.arg2(c)
	length := d.arg3(c)
	cmd := d.arg4(c)

	var expLen uint32
	switch {
	case cmd&stx64x != 0:
		expLen = aixStat64xSize
		if length != 0 && length != expLen {
			d.setErrno(aixEINVAL)
			return -1
		}
	case cmd&stx64 != 0:
		expLen = aixStat64Size
	default:
		expLen = aixStatSize
	}
	if length == 0 {
		length = expLen
	} else if length > expLen {
		d.setErrno(aixEINVAL)
		return -1
	}

	var st unix.Stat_t
	var err error
	if haveFD {
		err = unix.Fstat(int(int32(pathOrFD)), &st)
	} else {
		path, rerr := d.mm.ReadCString(pathOrFD)
		if rerr != nil {
			d.setErrno(aixEINVAL)
			return -1
		}
		if cmd&stxLink != 0 {
			err = unix.Lstat(path, &st)
		} else {
			err = unix.Stat(path, &st)
		}
	}
	if err != nil {
		d.setConvErrno(err)
		return -1
	}

	if cmd&(stx64|stx64x) == 0 && st.Size > 0x7FFFFFFF {
		d.setErrno(aixEOVERFLOW)
		return -1
	}

	full := make([]byte, expLen)
	switch {
	case cmd&stx64x != 0:
		encodeAixStat64x(full, &st)
	case cmd&stx64 != 0:
		encodeAixStat64(full, &st)
	default:
		encodeAixStat(full, &st)
	}

	if err := d.mm.WriteBytes(buf, full[:length]); err != nil {
		d.setErrno(aixEINVAL)
		return -1
	}
	return 0
}

func sysStatx(d *SyscallDispatcher, c cpu32.Core) int32  { return doStat(d, c, false) }
func sysFstatx(d *SyscallDispatcher, c cpu32.Core) int32 { return doStat(d, c, true) }
