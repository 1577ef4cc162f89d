// xcoff.go - component B: XCOFF32 reader.
//
// Parses AIX's 32-bit big-endian XCOFF object format: file header, auxiliary
// ("a.out") header, section headers, and the loader section's symbol table,
// relocation table and import-ID table. All multi-byte fields are converted
// from big-endian to host order once, at parse time; every field read after
// Open/Load returns is already in host order.
//
// Follows the header-then-bounded-table parsing shape of
// debug_disasm_x86.go and debug_disasm_m68k.go: read a fixed-width header,
// validate it, then walk a variable-length table whose extent the header
// names, failing closed (Truncated) the moment a read would run past the
// buffer.
package main

import (
	"fmt"
	"strings"
)

const xcoffMagic = 0x01DF

const maxSections = 16 // suffices for AIX executables and shared objects

// Loader symbol type bits.
const (
	symImport = 0x40
	symExport = 0x10
	symEntry  = 0x20
	symWeak   = 0x08
)

// Storage mapping classes used downstream by the linker and /unix shim.
const (
	xmcPR     = 0 // program code
	xmcRO     = 1 // read-only data
	xmcDS     = 7 // function descriptor
	xmcSV     = 5 // supervisor call descriptor
	xmcSV3264 = 17
	xmcUA     = 19 // unclassified
	xmcRW     = 9  // read-write data
)

// ErrBadMagic, ErrTruncated and ErrTooManySections are the fatal parse
// failures this reader reports.
var (
	ErrBadMagic        = fmt.Errorf("xcoff: bad magic")
	ErrTruncated       = fmt.Errorf("xcoff: truncated")
	ErrTooManySections = fmt.Errorf("xcoff: too many sections")
)

// auxHeader carries the key sections by index (the sn* fields): entry,
// text, data, TOC, loader, bss. 1-based, matching on-disk scnum fields
// (0 means "no section" or "absolute").
type auxHeader struct {
	tsize, dsize, bsize uint32
	entry               uint32
	textStart, dataStart uint32
	toc                 uint32
	snEntry, snText, snData, snTOC, snLoader, snBSS int16
}

const fileHeaderSize = 20
const auxHeaderSize = 72
const sectionHeaderSize = 40

type sectionHeader struct {
	name           [8]byte
	paddr, vaddr   uint32
	size           uint32
	scnptr         uint32
	relptr         uint32
	lnnoptr        uint32
	nreloc, nlnno  uint16
	flags          uint32
}

func (s *sectionHeader) Name() string {
	n := 0
	for n < len(s.name) && s.name[n] != 0 {
		n++
	}
	return string(s.name[:n])
}

// LoaderSymbol is one entry of the loader section's symbol table, with its
// name eagerly resolved to an independent string at parse time -- never a
// pointer aliased onto the disk record, since the backing buffer is shared
// and the name may live in either the symbol record or the string table.
type LoaderSymbol struct {
	Name   string
	Value  uint32
	Scnum  int16
	Smtype uint8
	Smclas uint8
	Ifile  uint32
}

func (s *LoaderSymbol) IsImport() bool { return s.Smtype&symImport != 0 }
func (s *LoaderSymbol) IsExport() bool { return s.Smtype&symExport != 0 }
func (s *LoaderSymbol) IsEntry() bool  { return s.Smtype&symEntry != 0 }
func (s *LoaderSymbol) IsWeak() bool   { return s.Smtype&symWeak != 0 }

// LoaderReloc is one 12-byte loader relocation record -- 12 bytes, not the
// 16 a casual reading of the public header might suggest.
type LoaderReloc struct {
	Vaddr  uint32
	Symndx uint32
	Rsize  uint8
	Rtype  uint8
	Rsecnm uint16
}

// ImportID is one (path, base, member) triplet from the loader's import-ID
// table. Index 0 is the LIBPATH sentinel, not a module.
type ImportID struct {
	Path, Base, Member string
}

// XcoffImage is a parsed, navigable XCOFF32 object: one per main executable
// or library, regardless of whether it came from a standalone file or an
// archive member.
type XcoffImage struct {
	buf []byte // backing bytes: mmap'd file or archive-member slice

	NSections uint16
	Opthdr    auxHeader
	Sections  []sectionHeader

	// Loader section contents.
	Symbols   []LoaderSymbol
	Relocs    []LoaderReloc
	ImportIDs []ImportID

	loaderOff uint32 // file offset of the loader section
}

func need(buf []byte, off, n int) error {
	if off < 0 || n < 0 || off+n > len(buf) {
		return ErrTruncated
	}
	return nil
}

// openXcoff memory-maps path and parses it. In this reimplementation the
// "map" is a plain read into memory; the lifetime contract (buf outlives
// every LoadedObject referencing it) is honoured by Go's GC instead of an
// explicit unmap.
func openXcoff(path string) (*XcoffImage, error) {
	buf, err := readFileAll(path)
	if err != nil {
		return nil, err
	}
	return loadXcoff(buf)
}

// loadXcoff parses an already-in-memory slice, used directly for Big-AR
// members extracted from an archive.
func loadXcoff(buf []byte) (*XcoffImage, error) {
	if err := need(buf, 0, fileHeaderSize); err != nil {
		return nil, err
	}
	magic := be16(buf[0:2])
	if magic != xcoffMagic {
		return nil, ErrBadMagic
	}
	nscns := be16(buf[2:4])
	if nscns > maxSections {
		return nil, ErrTooManySections
	}
	fSymptr := be32(buf[8:12])
	fNsyms := be32(buf[12:16])
	_ = fSymptr
	_ = fNsyms
	opthdrLen := be16(buf[16:18])

	img := &XcoffImage{buf: buf, NSections: nscns}

	auxOff := fileHeaderSize
	if opthdrLen > 0 {
		if err := need(buf, auxOff, int(opthdrLen)); err != nil {
			return nil, err
		}
		if err := parseAuxHeader(buf[auxOff:auxOff+int(opthdrLen)], &img.Opthdr); err != nil {
			return nil, err
		}
	}

	scnOff := auxOff + int(opthdrLen)
	for i := 0; i < int(nscns); i++ {
		off := scnOff + i*sectionHeaderSize
		if err := need(buf, off, sectionHeaderSize); err != nil {
			return nil, err
		}
		sh, err := parseSectionHeader(buf[off : off+sectionHeaderSize])
		if err != nil {
			return nil, err
		}
		img.Sections = append(img.Sections, sh)
	}

	if img.Opthdr.snLoader >= 1 && int(img.Opthdr.snLoader) <= len(img.Sections) {
		loaderSec := &img.Sections[img.Opthdr.snLoader-1]
		img.loaderOff = loaderSec.scnptr
		if err := parseLoaderSection(buf, loaderSec.scnptr, loaderSec.size, img); err != nil {
			return nil, err
		}
	}

	return img, nil
}

func parseAuxHeader(b []byte, a *auxHeader) error {
	if len(b) < 44 {
		return ErrTruncated
	}
	a.tsize = be32(b[4:8])
	a.dsize = be32(b[8:12])
	a.bsize = be32(b[12:16])
	a.entry = be32(b[16:20])
	a.textStart = be32(b[20:24])
	a.dataStart = be32(b[24:28])
	a.toc = be32(b[28:32])
	a.snEntry = int16(be16(b[32:34]))
	a.snText = int16(be16(b[34:36]))
	a.snData = int16(be16(b[36:38]))
	a.snTOC = int16(be16(b[38:40]))
	a.snLoader = int16(be16(b[40:42]))
	a.snBSS = int16(be16(b[42:44]))
	return nil
}

func parseSectionHeader(b []byte) (sectionHeader, error) {
	var s sectionHeader
	if len(b) < sectionHeaderSize {
		return s, ErrTruncated
	}
	copy(s.name[:], b[0:8])
	s.paddr = be32(b[8:12])
	s.vaddr = be32(b[12:16])
	s.size = be32(b[16:20])
	s.scnptr = be32(b[20:24])
	s.relptr = be32(b[24:28])
	s.lnnoptr = be32(b[28:32])
	s.nreloc = be16(b[32:34])
	s.nlnno = be16(b[34:36])
	s.flags = be32(b[36:40])
	return s, nil
}

// parseLoaderSection parses, in order, the loader header, symbol table,
// relocation table, and import-ID string table, each failing with
// ErrTruncated on insufficient bytes.
func parseLoaderSection(buf []byte, off, size uint32, img *XcoffImage) error {
	base := int(off)
	if err := need(buf, base, int(size)); err != nil {
		return err
	}
	if err := need(buf, base, 32); err != nil {
		return err
	}
	lnsyms := be32(buf[base+4 : base+8])
	lnreloc := be32(buf[base+8 : base+12])
	listlen := be32(buf[base+12 : base+16])
	lnimpid := be32(buf[base+16 : base+20])
	limpoff := be32(buf[base+20 : base+24])
	lstlen := be32(buf[base+24 : base+28])
	lstoff := be32(buf[base+28 : base+32])

	symOff := base + 32
	for i := uint32(0); i < lnsyms; i++ {
		off := symOff + int(i)*24
		if err := need(buf, off, 24); err != nil {
			return err
		}
		sym, err := parseLoaderSymbol(buf, off, base+int(lstoff), int(lstlen))
		if err != nil {
			return err
		}
		img.Symbols = append(img.Symbols, sym)
	}

	relOff := symOff + int(lnsyms)*24
	for i := uint32(0); i < lnreloc; i++ {
		off := relOff + int(i)*12
		if err := need(buf, off, 12); err != nil {
			return err
		}
		img.Relocs = append(img.Relocs, LoaderReloc{
			Vaddr:  be32(buf[off : off+4]),
			Symndx: be32(buf[off+4 : off+8]),
			Rsize:  buf[off+8],
			Rtype:  buf[off+9],
			Rsecnm: be16(buf[off+10 : off+12]),
		})
	}

	impBase := base + int(limpoff)
	if err := need(buf, impBase, int(listlen)); err != nil {
		return err
	}
	impStrs := splitNUL(buf[impBase : impBase+int(listlen)])
	for i := uint32(0); i < lnimpid; i++ {
		// Each import ID is a triplet of consecutive NUL-delimited strings.
		idx := int(i) * 3
		var id ImportID
		if idx < len(impStrs) {
			id.Path = impStrs[idx]
		}
		if idx+1 < len(impStrs) {
			id.Base = impStrs[idx+1]
		}
		if idx+2 < len(impStrs) {
			id.Member = impStrs[idx+2]
		}
		img.ImportIDs = append(img.ImportIDs, id)
	}

	return nil
}

func parseLoaderSymbol(buf []byte, off, strTabOff, strTabLen int) (LoaderSymbol, error) {
	var sym LoaderSymbol
	nameField := buf[off : off+8]
	zeroes := be32(nameField[0:4])
	if zeroes == 0 {
		strOff := strTabOff + int(be32(nameField[4:8]))
		if err := need(buf, strOff, 0); err != nil {
			return sym, err
		}
		sym.Name = readNULString(buf, strOff)
	} else {
		n := 0
		for n < 8 && nameField[n] != 0 {
			n++
		}
		sym.Name = string(nameField[:n])
	}
	sym.Value = be32(buf[off+8 : off+12])
	sym.Scnum = int16(be16(buf[off+12 : off+14]))
	sym.Smtype = buf[off+14]
	sym.Smclas = buf[off+15]
	sym.Ifile = be32(buf[off+16 : off+20])
	return sym, nil
}

func readNULString(buf []byte, off int) string {
	end := off
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	return string(buf[off:end])
}

func splitNUL(b []byte) []string {
	var out []string
	start := 0
	for i, c := range b {
		if c == 0 {
			out = append(out, string(b[start:i]))
			start = i + 1
		}
	}
	if start < len(b) {
		out = append(out, string(b[start:]))
	}
	return out
}

// entrypoint reads the 12-byte function descriptor <addr, toc, env> at
// o_entry (translated into the data section's file offset) and returns the
// code address in host order.
func (img *XcoffImage) entrypoint() (uint32, error) {
	if int(img.Opthdr.snData) < 1 || int(img.Opthdr.snData) > len(img.Sections) {
		return 0, fmt.Errorf("xcoff: entrypoint: no data section")
	}
	dataSec := &img.Sections[img.Opthdr.snData-1]
	fileOff := img.Opthdr.entry - img.Opthdr.dataStart + dataSec.scnptr
	if err := need(img.buf, int(fileOff), 12); err != nil {
		return 0, err
	}
	return be32(img.buf[fileOff : fileOff+4]), nil
}

// descriptorAt reads a 12-byte <code, toc, env> function descriptor at the
// given *file* offset.
func (img *XcoffImage) descriptorAt(fileOff uint32) (code, toc, env uint32, err error) {
	if err = need(img.buf, int(fileOff), 12); err != nil {
		return
	}
	code = be32(img.buf[fileOff : fileOff+4])
	toc = be32(img.buf[fileOff+4 : fileOff+8])
	env = be32(img.buf[fileOff+8 : fileOff+12])
	return
}

// DebugDump renders the section table and loader symbol table for the -l
// loader-trace flag, in the debug_cpu_m68k.go DumpState style: one line per
// row, no nesting.
func (img *XcoffImage) DebugDump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "sections (%d):\n", len(img.Sections))
	for i, s := range img.Sections {
		fmt.Fprintf(&b, "  [%d] %-8s vaddr=%#010x size=%#x scnptr=%#x nreloc=%d\n",
			i+1, s.Name(), s.vaddr, s.size, s.scnptr, s.nreloc)
	}
	fmt.Fprintf(&b, "loader symbols (%d):\n", len(img.Symbols))
	for i, s := range img.Symbols {
		fmt.Fprintf(&b, "  [%d] %-24s value=%#010x scnum=%d smtype=%#x smclas=%d ifile=%d\n",
			i, s.Name, s.Value, s.Scnum, s.Smtype, s.Smclas, s.Ifile)
	}
	fmt.Fprintf(&b, "loader relocs (%d), import IDs (%d)\n", len(img.Relocs), len(img.ImportIDs))
	return b.String()
}
