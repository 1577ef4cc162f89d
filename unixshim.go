// unixshim.go - component E: the /unix (AIX kernel) shim.
//
// Fabricates the illusion that /unix (the AIX kernel image) is a loadable
// library, without ever loading anything: every kernel-exported symbol an
// AIX library imports gets either a synthetic function descriptor (for code
// symbols) that redirects to the syscall trampoline, or a small allocated
// data page (for data symbols); any other storage class gets a poison
// address.
//
// Follows be_unsupported.go's build-tag stub convention: present a
// consistent symbol surface from code that never runs the thing it is
// standing in for.
package main

import (
	"github.com/intuitionamiga/aixrun/cpu32"
)

// UnixShim owns the syscall registry and the /unix data-symbol allocator.
// Constructed once by the VM orchestrator; all writes happen during load,
// which never re-enters concurrently.
type UnixShim struct {
	mm *MM
	tr *tracer

	registry *SyscallRegistry

	dataSymbols  map[string]uint32 // name -> allocated guest address
	nextDataPage uint32
}

func newUnixShim(mm *MM, tr *tracer, registry *SyscallRegistry) *UnixShim {
	return &UnixShim{
		mm:           mm,
		tr:           tr,
		registry:     registry,
		dataSymbols:  make(map[string]uint32),
		nextDataPage: unixDataStart,
	}
}

// resolveUnixImport resolves one loader symbol whose import ID names the
// /unix pseudo-library. sym must be an L_IMPORT loader symbol.
func (u *UnixShim) resolveUnixImport(sym *LoaderSymbol) (uint32, error) {
	switch {
	case sym.Smclas == xmcDS || sym.Smclas == xmcSV || sym.Smclas == xmcSV3264:
		desc, err := u.registry.register(sym.Name)
		if err != nil {
			return 0, err
		}
		return desc, nil
	case sym.Smclas == xmcUA || sym.Smclas == xmcRW:
		return u.dataAddressFor(sym.Name), nil
	default:
		u.tr.Warnf("resolve_unix_import: symbol %q has unrecognised storage class %d, returning poison", sym.Name, sym.Smclas)
		return poisonAddr, nil
	}
}

// dataAddressFor returns the guest address backing a /unix data symbol,
// allocating a fresh page on first sight unless the symbol is one of the two
// well-known aliases (errno/_errno, environ/_environ), which map to the MM's
// reserved stack words instead.
func (u *UnixShim) dataAddressFor(name string) uint32 {
	switch name {
	case "errno", "_errno":
		return u.mm.VMErrnoAddr()
	case "environ", "_environ":
		return u.mm.VMEnvironAddr()
	}
	if addr, ok := u.dataSymbols[name]; ok {
		return addr
	}
	addr := u.nextDataPage
	u.nextDataPage += pageSize
	u.dataSymbols[name] = addr
	if err := u.mm.mapRegion(addr, pageSize, cpu32.ProtRWX); err != nil {
		u.tr.Errorf("failed to map /unix data page for %q at %#x: %v", name, addr, err)
	}
	u.tr.Tracef("/unix data symbol %q -> %#x (all-zero page, placeholder)", name, addr)
	return addr
}

// poisonAddr is returned for the LIBPATH sentinel and any unrecognised /unix
// symbol class. Any guest access to it trips the MM's unmapped-read fault
// hook, localising the failure instead of silently corrupting execution.
const poisonAddr = 0x1111
