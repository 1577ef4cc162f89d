// errno.go - host errno -> AIX errno translation table.
package main

import (
	"errors"

	"golang.org/x/sys/unix"
)

// AIX errno values (from <sys/errno.h>), used only as the guest-visible
// error codes written to vm_errno.
const (
	aixEPERM   = 1
	aixENOENT  = 2
	aixESRCH   = 3
	aixEINTR   = 4
	aixEIO     = 5
	aixENXIO   = 6
	aixE2BIG   = 7
	aixENOEXEC = 8
	aixEBADF   = 9
	aixECHILD  = 10
	aixEAGAIN  = 11
	aixENOMEM  = 12
	aixEACCES  = 13
	aixEFAULT  = 14
	aixENOTBLK = 15
	aixEBUSY   = 16
	aixEEXIST  = 17
	aixEXDEV   = 18
	aixENODEV  = 19
	aixENOTDIR = 20
	aixEISDIR  = 21
	aixEINVAL  = 22
	aixENFILE  = 23
	aixEMFILE  = 24
	aixENOTTY  = 25
	aixETXTBSY = 26
	aixEFBIG   = 27
	aixENOSPC  = 28
	aixESPIPE  = 29
	aixEROFS   = 30
	aixEMLINK  = 31
	aixEPIPE   = 32
	aixEDOM    = 33
	aixERANGE  = 34

	aixEDEADLK      = 45
	aixENOLCK       = 46
	aixENAMETOOLONG = 79
	aixENOSYS       = 109
	aixENOTEMPTY    = 80
	aixELOOP        = 85
	aixEOVERFLOW    = 127
	aixECANCELED    = 134

	aixEDQUOT     = 49
	aixESTALE     = 52
	aixEOPNOTSUPP = 119
	aixENOTSUP    = 124
)

var hostToAIXErrno = map[unix.Errno]int32{
	unix.EPERM:   aixEPERM,
	unix.ENOENT:  aixENOENT,
	unix.ESRCH:   aixESRCH,
	unix.EINTR:   aixEINTR,
	unix.EIO:     aixEIO,
	unix.ENXIO:   aixENXIO,
	unix.E2BIG:   aixE2BIG,
	unix.ENOEXEC: aixENOEXEC,
	unix.EBADF:   aixEBADF,
	unix.ECHILD:  aixECHILD,
	unix.EAGAIN:  aixEAGAIN,
	unix.ENOMEM:  aixENOMEM,
	unix.EACCES:  aixEACCES,
	unix.EFAULT:  aixEFAULT,
	unix.ENOTBLK: aixENOTBLK,
	unix.EBUSY:   aixEBUSY,
	unix.EEXIST:  aixEEXIST,
	unix.EXDEV:   aixEXDEV,
	unix.ENODEV:  aixENODEV,
	unix.ENOTDIR: aixENOTDIR,
	unix.EISDIR:  aixEISDIR,
	unix.EINVAL:  aixEINVAL,
	unix.ENFILE:  aixENFILE,
	unix.EMFILE:  aixEMFILE,
	unix.ENOTTY:  aixENOTTY,
	unix.ETXTBSY: aixETXTBSY,
	unix.EFBIG:   aixEFBIG,
	unix.ENOSPC:  aixENOSPC,
	unix.ESPIPE:  aixESPIPE,
	unix.EROFS:   aixEROFS,
	unix.EMLINK:  aixEMLINK,
	unix.EPIPE:   aixEPIPE,
	unix.EDOM:    aixEDOM,
	unix.ERANGE:  aixERANGE,

	unix.EDEADLK:      aixEDEADLK,
	unix.ENOLCK:       aixENOLCK,
	unix.ENAMETOOLONG: aixENAMETOOLONG,
	unix.ENOSYS:       aixENOSYS,
	unix.ENOTEMPTY:    aixENOTEMPTY,
	unix.ELOOP:        aixELOOP,
	unix.EOVERFLOW:    aixEOVERFLOW,
	unix.ECANCELED:    aixECANCELED,

	// Reachable from kopen/kwrite/statx/fstatx against a real filesystem:
	// a stale NFS handle or a quota limit on a host mount. unix.ENOTSUP is
	// not a distinct map key here because on Linux it is the same Errno
	// value as unix.EOPNOTSUPP (a duplicate map key); aixENOTSUP is kept
	// as a named AIX constant for hosts where libc does distinguish them.
	unix.ESTALE:     aixESTALE,
	unix.EDQUOT:     aixEDQUOT,
	unix.EOPNOTSUPP: aixEOPNOTSUPP,
}

// translateErrno converts a host error (expected to wrap or be a
// unix.Errno) to its AIX equivalent. Unknown codes collapse to EINVAL, per
// the translation table's total-on-unknown-codes contract.
func translateErrno(err error) int32 {
	var e unix.Errno
	if !errors.As(err, &e) {
		return aixEINVAL
	}
	if v, ok := hostToAIXErrno[e]; ok {
		return v
	}
	return aixEINVAL
}

// setErrno writes v (as a positive AIX errno) to the guest errno word.
func (d *SyscallDispatcher) setErrno(v int32) {
	_ = d.mm.WriteU32(d.mm.VMErrnoAddr(), uint32(v))
}

// setConvErrno translates err through translateErrno and writes the result.
func (d *SyscallDispatcher) setConvErrno(err error) {
	d.setErrno(translateErrno(err))
}
