package main

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/intuitionamiga/aixrun/cpu32"
	"github.com/intuitionamiga/aixrun/cpu32/fakecore"
)

// newTestDispatcher builds an MM with its stack/errno word initialized (via
// initStack) and a syscall dispatcher with all handlers installed, ready to
// drive through fakecore.
func newTestDispatcher(t *testing.T) (*SyscallDispatcher, *MM, *fakecore.FakeCore) {
	t.Helper()
	core := fakecore.New()
	tr := newTracer("syscalls", false)
	mm := newMM(core, tr)
	if err := mm.initStack([]string{"prog"}, nil); err != nil {
		t.Fatalf("initStack: %v", err)
	}
	registry := newSyscallRegistry(mm, tr)
	d := newSyscallDispatcher(mm, tr, registry, false)
	return d, mm, core
}

// TestHelloWrite exercises kwrite to a real fd with a guest
// buffer, end to end through the dispatcher's ordinal-based registration.
func TestHelloWrite(t *testing.T) {
	d, mm, core := newTestDispatcher(t)

	addr, err := d.registry.register("kwrite")
	if err != nil {
		t.Fatalf("register kwrite: %v", err)
	}
	ordinal, err := mm.ReadU32(addr + 4)
	if err != nil {
		t.Fatalf("reading descriptor ordinal: %v", err)
	}

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer r.Close()

	msg := []byte("hello, aix\n")
	if err := mm.mapRegion(execDataStart, pageSize, cpu32.ProtRWX); err != nil {
		t.Fatalf("mapRegion: %v", err)
	}
	if err := mm.WriteBytes(execDataStart, msg); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}

	core.SetGPR(2, ordinal)
	core.SetGPR(3, uint32(w.Fd()))
	core.SetGPR(4, execDataStart)
	core.SetGPR(5, uint32(len(msg)))

	if err := d.dispatch(core); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	w.Close()

	if got := int32(core.GPR(3)); got != int32(len(msg)) {
		t.Fatalf("kwrite returned %d, want %d", got, len(msg))
	}

	out := make([]byte, len(msg))
	if _, err := r.Read(out); err != nil {
		t.Fatalf("reading back from pipe: %v", err)
	}
	if string(out) != string(msg) {
		t.Fatalf("pipe contents = %q, want %q", out, msg)
	}
}

// TestUnimplementedSyscall verifies that an ordinal with no
// host handler returns -1 and the dispatcher keeps running rather than
// failing the call.
func TestUnimplementedSyscall(t *testing.T) {
	d, _, core := newTestDispatcher(t)

	addr, err := d.registry.register("some_unimplemented_kernel_call")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	ordinal, err := d.mm.ReadU32(addr + 4)
	if err != nil {
		t.Fatalf("reading descriptor ordinal: %v", err)
	}

	core.SetGPR(2, ordinal)
	if err := d.dispatch(core); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := int32(core.GPR(3)); got != -1 {
		t.Fatalf("unimplemented syscall returned %d, want -1", got)
	}
}

func TestDispatchOutOfRangeOrdinal(t *testing.T) {
	d, _, core := newTestDispatcher(t)
	core.SetGPR(2, 9999)
	if err := d.dispatch(core); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := int32(core.GPR(3)); got != -1 {
		t.Fatalf("out-of-range ordinal returned %d, want -1", got)
	}
}

// TestSbrkDiscipline exercises sbrk discipline through the syscall layer
// rather than calling *MM directly.
func TestSbrkDiscipline(t *testing.T) {
	d, mm, core := newTestDispatcher(t)
	start := mm.HeapEnd()

	core.SetGPR(3, 8192) // incr
	if ret := sysSbrk(d, core); ret != int32(start) {
		t.Fatalf("sbrk(8192) = %d, want old break %d", ret, int32(start))
	}
	if mm.HeapEnd() != start+8192 {
		t.Fatalf("heap end after growth = %#x, want %#x", mm.HeapEnd(), start+8192)
	}

	core.SetGPR(3, 0)
	if ret := sysSbrk(d, core); ret != int32(start+8192) {
		t.Fatalf("sbrk(0) = %d, want current break %d", ret, int32(start+8192))
	}
}

func TestBrkRejectsBelowHeapStart(t *testing.T) {
	d, mm, core := newTestDispatcher(t)
	core.SetGPR(3, 0x1000) // well below heapAddr
	if ret := sysBrk(d, core); ret != -1 {
		t.Fatalf("brk(0x1000) = %d, want -1", ret)
	}
	errno, err := mm.ReadU32(mm.VMErrnoAddr())
	if err != nil {
		t.Fatalf("reading vm_errno: %v", err)
	}
	if errno != uint32(aixENOMEM) {
		t.Fatalf("vm_errno = %d, want aixENOMEM %d", errno, aixENOMEM)
	}
}

func TestStatxRegularFile(t *testing.T) {
	d, mm, core := newTestDispatcher(t)

	f, err := os.CreateTemp(t.TempDir(), "statx")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	content := []byte("some file contents")
	if _, err := f.Write(content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f.Close()

	if err := mm.mapRegion(execDataStart, pageSize, cpu32.ProtRWX); err != nil {
		t.Fatalf("mapRegion: %v", err)
	}
	var pathAddr uint32 = execDataStart
	if err := mm.WriteBytes(pathAddr, append([]byte(f.Name()), 0)); err != nil {
		t.Fatalf("WriteBytes path: %v", err)
	}
	var bufAddr uint32 = execDataStart + 0x100

	core.SetGPR(3, pathAddr)
	core.SetGPR(4, bufAddr)
	core.SetGPR(5, aixStat64xSize)
	core.SetGPR(6, stx64x)

	if ret := sysStatx(d, core); ret != 0 {
		t.Fatalf("statx = %d, want 0", ret)
	}

	out, err := mm.ReadBytes(bufAddr+40, 8) // st_size field in aix_stat64x
	if err != nil {
		t.Fatalf("reading st_size: %v", err)
	}
	gotSize := be64(out)
	if gotSize != uint64(len(content)) {
		t.Fatalf("st_size = %d, want %d", gotSize, len(content))
	}
}

func TestStatxMissingFile(t *testing.T) {
	d, mm, core := newTestDispatcher(t)
	if err := mm.mapRegion(execDataStart, pageSize, cpu32.ProtRWX); err != nil {
		t.Fatalf("mapRegion: %v", err)
	}
	if err := mm.WriteBytes(execDataStart, append([]byte("/no/such/file/here"), 0)); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	core.SetGPR(3, execDataStart)
	core.SetGPR(4, execDataStart+0x100)
	core.SetGPR(5, aixStatSize)
	core.SetGPR(6, stxNormal)

	if ret := sysStatx(d, core); ret != -1 {
		t.Fatalf("statx on a missing file = %d, want -1", ret)
	}
}

func TestGetuidxSelectors(t *testing.T) {
	d, _, core := newTestDispatcher(t)

	ruid, euid, suid := unix.Getresuid()

	core.SetGPR(3, aixIDEffective)
	if got := sysGetuidx(d, core); got != int32(euid) {
		t.Fatalf("getuidx(effective) = %d, want %d", got, euid)
	}
	core.SetGPR(3, aixIDLogin)
	if got := sysGetuidx(d, core); got != int32(euid) {
		t.Fatalf("getuidx(login) = %d, want %d", got, euid)
	}
	core.SetGPR(3, aixIDReal)
	if got := sysGetuidx(d, core); got != int32(ruid) {
		t.Fatalf("getuidx(real) = %d, want %d", got, ruid)
	}
	core.SetGPR(3, aixIDSaved)
	if got := sysGetuidx(d, core); got != int32(suid) {
		t.Fatalf("getuidx(saved) = %d, want %d", got, suid)
	}
	core.SetGPR(3, 0xFF)
	if sysGetuidx(d, core) != -1 {
		t.Fatalf("getuidx with an invalid selector should return -1")
	}
}

func TestGetgidxSelectors(t *testing.T) {
	d, _, core := newTestDispatcher(t)

	rgid, egid, sgid := unix.Getresgid()

	core.SetGPR(3, aixIDEffective)
	if got := sysGetgidx(d, core); got != int32(egid) {
		t.Fatalf("getgidx(effective) = %d, want %d", got, egid)
	}
	core.SetGPR(3, aixIDReal)
	if got := sysGetgidx(d, core); got != int32(rgid) {
		t.Fatalf("getgidx(real) = %d, want %d", got, rgid)
	}
	core.SetGPR(3, aixIDSaved)
	if got := sysGetgidx(d, core); got != int32(sgid) {
		t.Fatalf("getgidx(saved) = %d, want %d", got, sgid)
	}
	core.SetGPR(3, 0xFF)
	if sysGetgidx(d, core) != -1 {
		t.Fatalf("getgidx with an invalid selector should return -1")
	}
}
