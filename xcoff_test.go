package main

import (
	"bytes"
	"testing"
)

// xcoffBuilder assembles a synthetic XCOFF32 byte buffer sequentially,
// recording each piece's offset as it is appended instead of hand-computing
// byte positions -- the same way a real assembler's two-pass layout avoids
// manually counting bytes.
type xcoffBuilder struct {
	buf bytes.Buffer
}

func (b *xcoffBuilder) off() uint32 { return uint32(b.buf.Len()) }

func (b *xcoffBuilder) u8(v uint8)   { b.buf.WriteByte(v) }
func (b *xcoffBuilder) u16(v uint16) { var t [2]byte; putBE16(t[:], v); b.buf.Write(t[:]) }
func (b *xcoffBuilder) u32(v uint32) { var t [4]byte; putBE32(t[:], v); b.buf.Write(t[:]) }
func (b *xcoffBuilder) raw(p []byte) { b.buf.Write(p) }
func (b *xcoffBuilder) pad(n int)    { b.buf.Write(make([]byte, n)) }
func (b *xcoffBuilder) name8(s string) {
	var n [8]byte
	copy(n[:], s)
	b.buf.Write(n[:])
}

// loaderSymbol appends a 24-byte loader symbol record with an 8-byte inline
// name.
func (b *xcoffBuilder) loaderSymbol(name string, value uint32, scnum int16, smtype, smclas uint8, ifile uint32) {
	b.name8(name)
	b.u32(value)
	b.u16(uint16(scnum))
	b.u8(smtype)
	b.u8(smclas)
	b.u32(ifile)
	b.pad(4)
}

func (b *xcoffBuilder) loaderReloc(vaddr, symndx uint32, rsize, rtype uint8, rsecnm uint16) {
	b.u32(vaddr)
	b.u32(symndx)
	b.u8(rsize)
	b.u8(rtype)
	b.u16(rsecnm)
}

// buildMinimalXcoff builds a single XCOFF32 object with a .text, .data,
// .bss and .loader section, one exported symbol and one imported symbol,
// one relocation, and two import-ID triples (triple 0 is the LIBPATH
// sentinel, triple 1 names a real dependency).
func buildMinimalXcoff(t *testing.T, textVaddr, dataVaddr uint32) []byte {
	t.Helper()
	var b xcoffBuilder

	const nscns = 4

	// Placeholders: file header + aux header + 4 section headers.
	b.u16(xcoffMagic)
	b.u16(nscns)
	b.u32(0) // timestamp
	b.u32(0) // symptr (unused)
	b.u32(0) // nsyms (unused)
	b.u16(auxHeaderSize)
	b.u16(0) // flags

	auxOff := b.off()
	b.pad(auxHeaderSize) // filled in below

	textSize := uint32(32)
	dataSize := uint32(16)
	bssSize := uint32(8)
	bssVaddr := dataVaddr + dataSize

	sec1Off := b.off()
	b.pad(sectionHeaderSize) // .text, patched below
	sec2Off := b.off()
	b.pad(sectionHeaderSize) // .data
	sec3Off := b.off()
	b.pad(sectionHeaderSize) // .bss
	sec4Off := b.off()
	b.pad(sectionHeaderSize) // .loader

	textScnptr := b.off()
	b.raw(bytes.Repeat([]byte{0xAA}, int(textSize)))

	dataScnptr := b.off()
	dataBytes := make([]byte, dataSize)
	// Plant a function-descriptor-shaped word at data+4 for relocation
	// target tests: three words <code,toc,env>.
	putBE32(dataBytes[4:8], 0x1234_5678)
	b.raw(dataBytes)

	loaderOff := b.off()
	b.pad(4) // l_version/l_flags, unused by the reader
	b.u32(2) // l_nsyms
	b.u32(1) // l_nreloc
	istlenOff := b.off()
	b.pad(4) // l_istlen, patched below
	b.u32(2) // l_nimpid
	impoffOff := b.off()
	b.pad(4) // l_impoff, patched below
	b.u32(0) // l_stlen (no string-table symbols in this object)
	b.u32(0) // l_stoff

	b.loaderSymbol("foo", dataVaddr+4, 2, symExport, xmcDS, 0)
	b.loaderSymbol("bar", 0, 0, symImport, xmcDS, 1)

	b.loaderReloc(dataVaddr+8, 4, 32, 0, 2) // symndx=4 -> Symbols[1] "bar"

	impStart := b.off()
	writeTriple := func(path, base, member string) {
		b.raw(append([]byte(path), 0))
		b.raw(append([]byte(base), 0))
		b.raw(append([]byte(member), 0))
	}
	writeTriple("/usr/lib", "", "")
	writeTriple("libB.a", "libB.a", "shr.o")
	impLen := b.off() - impStart

	out := b.buf.Bytes()

	// Patch the aux header.
	aux := out[auxOff : auxOff+auxHeaderSize]
	putBE32(aux[4:8], textSize)
	putBE32(aux[8:12], dataSize)
	putBE32(aux[12:16], bssSize)
	putBE32(aux[16:20], dataVaddr+4) // o_entry: a descriptor address inside .data
	putBE32(aux[20:24], textVaddr)
	putBE32(aux[24:28], dataVaddr)
	putBE32(aux[28:32], dataVaddr+4) // toc
	putBE16(aux[32:34], 1)           // snEntry
	putBE16(aux[34:36], 1)           // snText
	putBE16(aux[36:38], 2)           // snData
	putBE16(aux[38:40], 2)           // snTOC
	putBE16(aux[40:42], 4)           // snLoader
	putBE16(aux[42:44], 3)           // snBSS

	patchSection := func(off uint32, name string, vaddr, size, scnptr uint32, nreloc uint16) {
		s := out[off : off+sectionHeaderSize]
		var n [8]byte
		copy(n[:], name)
		copy(s[0:8], n[:])
		putBE32(s[8:12], vaddr)
		putBE32(s[12:16], vaddr)
		putBE32(s[16:20], size)
		putBE32(s[20:24], scnptr)
		putBE16(s[32:34], nreloc)
	}
	patchSection(sec1Off, ".text", textVaddr, textSize, textScnptr, 0)
	patchSection(sec2Off, ".data", dataVaddr, dataSize, dataScnptr, 1)
	patchSection(sec3Off, ".bss", bssVaddr, bssSize, 0, 0)
	patchSection(sec4Off, ".loader", 0, b.off()-loaderOff, loaderOff, 0)

	putBE32(out[istlenOff:istlenOff+4], impLen)
	putBE32(out[impoffOff:impoffOff+4], impStart-loaderOff)

	return out
}

func TestLoadXcoffBasic(t *testing.T) {
	buf := buildMinimalXcoff(t, 0x1000_0000, 0x2000_0000)
	img, err := loadXcoff(buf)
	if err != nil {
		t.Fatalf("loadXcoff: %v", err)
	}
	if len(img.Sections) != 4 {
		t.Fatalf("got %d sections, want 4", len(img.Sections))
	}
	if img.Sections[0].Name() != ".text" {
		t.Fatalf("section 0 name = %q, want .text", img.Sections[0].Name())
	}
	if len(img.Symbols) != 2 {
		t.Fatalf("got %d loader symbols, want 2", len(img.Symbols))
	}
	foo := img.Symbols[0]
	if foo.Name != "foo" || !foo.IsExport() || foo.Scnum != 2 {
		t.Fatalf("foo symbol wrong: %+v", foo)
	}
	bar := img.Symbols[1]
	if bar.Name != "bar" || !bar.IsImport() || bar.Ifile != 1 {
		t.Fatalf("bar symbol wrong: %+v", bar)
	}
	if len(img.Relocs) != 1 {
		t.Fatalf("got %d relocs, want 1", len(img.Relocs))
	}
	r := img.Relocs[0]
	if r.Symndx != 4 || r.Rsecnm != 2 {
		t.Fatalf("reloc wrong: %+v", r)
	}
	if len(img.ImportIDs) != 2 {
		t.Fatalf("got %d import IDs, want 2", len(img.ImportIDs))
	}
	if img.ImportIDs[0].Path != "/usr/lib" {
		t.Fatalf("import ID 0 (LIBPATH) path = %q", img.ImportIDs[0].Path)
	}
	if img.ImportIDs[1].Base != "libB.a" || img.ImportIDs[1].Member != "shr.o" {
		t.Fatalf("import ID 1 wrong: %+v", img.ImportIDs[1])
	}
}

func TestLoadXcoffBadMagic(t *testing.T) {
	buf := buildMinimalXcoff(t, 0x1000_0000, 0x2000_0000)
	buf[0] = 0xFF
	if _, err := loadXcoff(buf); err != ErrBadMagic {
		t.Fatalf("got err %v, want ErrBadMagic", err)
	}
}

func TestLoadXcoffTruncated(t *testing.T) {
	buf := buildMinimalXcoff(t, 0x1000_0000, 0x2000_0000)
	if _, err := loadXcoff(buf[:10]); err != ErrTruncated {
		t.Fatalf("got err %v, want ErrTruncated", err)
	}
	// Truncated mid-loader-section: the last 20 bytes cut into the import-ID
	// table at the end of the loader section.
	if _, err := loadXcoff(buf[:len(buf)-20]); err == nil {
		t.Fatalf("expected truncation error for a buffer cut inside the import table")
	}
}

func TestLoadXcoffTooManySections(t *testing.T) {
	buf := buildMinimalXcoff(t, 0x1000_0000, 0x2000_0000)
	putBE16(buf[2:4], maxSections+1)
	if _, err := loadXcoff(buf); err != ErrTooManySections {
		t.Fatalf("got err %v, want ErrTooManySections", err)
	}
}

func TestEntrypoint(t *testing.T) {
	textVaddr := uint32(0x1000_0000)
	dataVaddr := uint32(0x2000_0000)
	buf := buildMinimalXcoff(t, textVaddr, dataVaddr)
	img, err := loadXcoff(buf)
	if err != nil {
		t.Fatalf("loadXcoff: %v", err)
	}
	// o_entry was planted at dataVaddr+4, where buildMinimalXcoff wrote the
	// word 0x12345678 -- entrypoint() must resolve through
	// (o_entry - o_data_start + data.scnptr) to read it back.
	got, err := img.entrypoint()
	if err != nil {
		t.Fatalf("entrypoint: unexpected error: %v", err)
	}
	if got != 0x1234_5678 {
		t.Fatalf("entrypoint() = %#x, want %#x", got, 0x1234_5678)
	}
}

func TestLoaderSymbolIsImportExportFlags(t *testing.T) {
	s := LoaderSymbol{Smtype: symImport | symWeak}
	if !s.IsImport() || !s.IsWeak() || s.IsExport() || s.IsEntry() {
		t.Fatalf("flag decode wrong for Smtype=%#x", s.Smtype)
	}
}
