package main

import (
	"testing"

	"github.com/intuitionamiga/aixrun/cpu32/fakecore"
)

func newTestUnixShim() (*UnixShim, *MM, *SyscallRegistry) {
	core := fakecore.New()
	tr := newTracer("unix", false)
	mm := newMM(core, tr)
	registry := newSyscallRegistry(mm, tr)
	return newUnixShim(mm, tr, registry), mm, registry
}

func TestResolveUnixImportFunctionSymbol(t *testing.T) {
	u, mm, _ := newTestUnixShim()
	sym := &LoaderSymbol{Name: "kwrite", Smtype: symImport, Smclas: xmcDS}
	addr, err := u.resolveUnixImport(sym)
	if err != nil {
		t.Fatalf("resolveUnixImport: %v", err)
	}
	trampoline, err := mm.ReadU32(addr)
	if err != nil {
		t.Fatalf("reading descriptor code word: %v", err)
	}
	if trampoline != trampolineAddr {
		t.Fatalf("descriptor code word = %#x, want trampolineAddr %#x", trampoline, uint32(trampolineAddr))
	}
}

func TestResolveUnixImportIsIdempotent(t *testing.T) {
	u, _, _ := newTestUnixShim()
	sym := &LoaderSymbol{Name: "kread", Smtype: symImport, Smclas: xmcDS}
	addr1, err := u.resolveUnixImport(sym)
	if err != nil {
		t.Fatalf("resolveUnixImport #1: %v", err)
	}
	addr2, err := u.resolveUnixImport(sym)
	if err != nil {
		t.Fatalf("resolveUnixImport #2: %v", err)
	}
	if addr1 != addr2 {
		t.Fatalf("repeated resolution of %q gave different addresses: %#x vs %#x", sym.Name, addr1, addr2)
	}
}

func TestResolveUnixImportDataSymbol(t *testing.T) {
	u, _, _ := newTestUnixShim()
	sym := &LoaderSymbol{Name: "some_global", Smtype: symImport, Smclas: xmcRW}
	addr, err := u.resolveUnixImport(sym)
	if err != nil {
		t.Fatalf("resolveUnixImport: %v", err)
	}
	if addr < unixDataStart || addr >= unixDataStart+unixDataSize {
		t.Fatalf("data symbol address %#x outside the /unix data region", addr)
	}
}

func TestResolveUnixImportUnrecognisedClassPoisons(t *testing.T) {
	u, _, _ := newTestUnixShim()
	sym := &LoaderSymbol{Name: "weird", Smtype: symImport, Smclas: 0xFF}
	addr, err := u.resolveUnixImport(sym)
	if err != nil {
		t.Fatalf("resolveUnixImport: %v", err)
	}
	if addr != poisonAddr {
		t.Fatalf("unrecognised storage class got %#x, want poison address %#x", addr, uint32(poisonAddr))
	}
}

func TestDataAddressForErrnoEnvironAliases(t *testing.T) {
	u, mm, _ := newTestUnixShim()
	if got := u.dataAddressFor("errno"); got != mm.VMErrnoAddr() {
		t.Fatalf("errno alias = %#x, want vm_errno %#x", got, mm.VMErrnoAddr())
	}
	if got := u.dataAddressFor("_errno"); got != mm.VMErrnoAddr() {
		t.Fatalf("_errno alias = %#x, want vm_errno %#x", got, mm.VMErrnoAddr())
	}
	if got := u.dataAddressFor("environ"); got != mm.VMEnvironAddr() {
		t.Fatalf("environ alias = %#x, want vm_environ %#x", got, mm.VMEnvironAddr())
	}
	if got := u.dataAddressFor("_environ"); got != mm.VMEnvironAddr() {
		t.Fatalf("_environ alias = %#x, want vm_environ %#x", got, mm.VMEnvironAddr())
	}
}

func TestDataAddressForAllocatesOnePagePerSymbol(t *testing.T) {
	u, _, _ := newTestUnixShim()
	a1 := u.dataAddressFor("sys_nerr")
	a2 := u.dataAddressFor("sys_errlist")
	a1again := u.dataAddressFor("sys_nerr")
	if a1 == a2 {
		t.Fatalf("distinct /unix data symbols got the same address %#x", a1)
	}
	if a1 != a1again {
		t.Fatalf("re-resolving %q gave a different address: %#x vs %#x", "sys_nerr", a1, a1again)
	}
	if a2-a1 != pageSize {
		t.Fatalf("second data symbol not one page past the first: a1=%#x a2=%#x", a1, a2)
	}
}
