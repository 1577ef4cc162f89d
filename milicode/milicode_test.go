package milicode

import (
	"encoding/binary"
	"testing"
)

// fakeMapper is a minimal Mapper recording every write, keyed by address, so
// tests can inspect exactly what Install blitted and where.
type fakeMapper struct {
	mappedAddr, mappedSize uint32
	writes                 map[uint32][]byte
}

func newFakeMapper() *fakeMapper { return &fakeMapper{writes: make(map[uint32][]byte)} }

func (f *fakeMapper) MapRegion(addr, size uint32) error {
	f.mappedAddr, f.mappedSize = addr, size
	return nil
}

func (f *fakeMapper) WriteBytes(addr uint32, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	f.writes[addr] = cp
	return nil
}

func TestInstallMapsThePage(t *testing.T) {
	m := newFakeMapper()
	if err := Install(m); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if m.mappedAddr != PageStart || m.mappedSize != PageSize {
		t.Fatalf("mapped (%#x,%#x), want (%#x,%#x)", m.mappedAddr, m.mappedSize, uint32(PageStart), uint32(PageSize))
	}
}

func TestInstallBlitsAllFiveRoutines(t *testing.T) {
	m := newFakeMapper()
	if err := Install(m); err != nil {
		t.Fatalf("Install: %v", err)
	}
	addrs := []uint32{MemcmpAddr, StrcmpAddr, StrlenAddr, MemmoveAddr, StrcpyAddr}
	for _, addr := range addrs {
		data, ok := m.writes[addr]
		if !ok {
			t.Fatalf("no routine blitted at %#x", addr)
		}
		if len(data) == 0 || len(data)%4 != 0 {
			t.Fatalf("routine at %#x has non-word-aligned length %d", addr, len(data))
		}
	}
}

// TestRoutinesEndInBlr confirms every assembled routine's final instruction
// word is the fixed blr encoding -- every control path in each routine above
// ends the program with an explicit emit(blr).
func TestRoutinesEndInBlr(t *testing.T) {
	progs := map[string][]uint32{
		"memcmp":  memcmpProg(),
		"strcmp":  strcmpProg(),
		"strlen":  strlenProg(),
		"memmove": memmoveProg(),
		"strcpy":  strcpyProg(),
	}
	for name, words := range progs {
		if len(words) == 0 {
			t.Fatalf("%s: empty program", name)
		}
		last := words[len(words)-1]
		if last != blr {
			t.Fatalf("%s: final word = %#08x, want blr %#08x", name, last, uint32(blr))
		}
	}
}

func TestMemcmpProgBranchResolution(t *testing.T) {
	words := memcmpProg()
	// First word is cmpwi r5,0; second word is the "beq zero" branch, which
	// must have been patched away from its zero placeholder.
	if words[1] == 0 {
		t.Fatalf("branch at index 1 left unpatched (still the zero placeholder)")
	}
}

func TestWordsToBytesBigEndian(t *testing.T) {
	words := []uint32{0x01020304, 0x4E800020}
	got := wordsToBytes(words)
	want := make([]byte, 8)
	binary.BigEndian.PutUint32(want[0:4], words[0])
	binary.BigEndian.PutUint32(want[4:8], words[1])
	if len(got) != len(want) {
		t.Fatalf("wordsToBytes length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}
