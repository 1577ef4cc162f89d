// bigar.go - component C: AIX Big-AR (<bigaf>\n) archive reader.
//
// Iterates the doubly-linked member list of an AIX "big" archive and
// extracts a named member's bytes for the XCOFF reader to parse. Grounded on
// xcoff.go's header-then-table shape: a fixed header names offsets into a
// variable-length structure that this code walks defensively, one failed
// bounds check away from ErrTruncated.
package main

import "fmt"

var bigarMagic = [8]byte{'<', 'b', 'i', 'g', 'a', 'f', '>', '\n'}

var (
	ErrBadArMagic  = fmt.Errorf("bigar: bad magic")
	ErrArTruncated = fmt.Errorf("bigar: truncated")
	ErrArBadField  = fmt.Errorf("bigar: unparseable ASCII-decimal field")
)

const (
	arMagicSize   = 8
	arOffsetField = 20 // each ASCII-decimal offset field in the file header
	// The file header carries six offset fields, not five: memoff, gstoff,
	// gst64off, fstmoff, lstmoff, freeoff (each 20 bytes), for a 128-byte
	// header total.
	arFileHdrSize = arMagicSize + 6*arOffsetField

	arSizeField  = 20
	arDateField  = 20
	arUidField   = 12
	arGidField   = 12
	arModeField  = 12
	arMemberFixedSize = arSizeField*1 + arDateField + 2*arOffsetField + arUidField + arGidField + arModeField + 4
)

// Archive is a parsed Big-AR file. Its backing bytes are held for the
// lifetime of every Member slice returned by Extract: each LoadedObject that
// came from an archive member keeps a reference to the archive that owns it.
type Archive struct {
	buf []byte

	memTabOff      uint64 // fl_memoff: offset to member table
	symTabOff      uint64 // fl_gstoff: offset to global symbol table
	firstMemberOff uint64 // fl_fstmoff: offset to first archive member
	lastMemberOff  uint64 // fl_lstmoff: offset to last archive member
	freeOff        uint64 // fl_freeoff: offset to first member on free list
}

// Member is one named archive member: its data, borrowed from the archive's
// backing buffer.
type Member struct {
	Name string
	Data []byte
}

func openArchive(path string) (*Archive, error) {
	buf, err := readFileAll(path)
	if err != nil {
		return nil, err
	}
	return loadArchive(buf)
}

func loadArchive(buf []byte) (*Archive, error) {
	if len(buf) < arFileHdrSize {
		return nil, ErrArTruncated
	}
	for i := 0; i < arMagicSize; i++ {
		if buf[i] != bigarMagic[i] {
			return nil, ErrBadArMagic
		}
	}
	// Field order matches fl_memoff/fl_gstoff/fl_gst64off/fl_fstmoff/
	// fl_lstmoff/fl_freeoff exactly; fl_gst64off (64-bit global symbol
	// table offset) is parsed to keep every field's byte offset correct but
	// its value is otherwise unused (this emulator never loads 64-bit
	// objects).
	fields := make([]uint64, 6)
	for i := 0; i < 6; i++ {
		off := arMagicSize + i*arOffsetField
		v, err := parseDecimalASCII(buf[off : off+arOffsetField])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrArBadField, err)
		}
		fields[i] = v
	}
	return &Archive{
		buf:            buf,
		memTabOff:      fields[0],
		symTabOff:      fields[1],
		firstMemberOff: fields[3],
		lastMemberOff:  fields[4],
		freeOff:        fields[5],
	}, nil
}

// arMemberHeader is one doubly-linked member node's fixed-size fields, ahead
// of its variable-length name.
type arMemberHeader struct {
	size    uint64
	nxtmem  uint64
	prvmem  uint64
	date    uint64
	uid     uint64
	gid     uint64
	mode    uint64
	namlen  uint32
}

func parseArMemberHeader(buf []byte, off int) (arMemberHeader, int, error) {
	var h arMemberHeader
	if off < 0 || off+arMemberFixedSize > len(buf) {
		return h, 0, ErrArTruncated
	}
	p := off
	readDec := func(n int) (uint64, error) {
		v, err := parseDecimalASCII(buf[p : p+n])
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrArBadField, err)
		}
		p += n
		return v, nil
	}
	var err error
	if h.size, err = readDec(arSizeField); err != nil {
		return h, 0, err
	}
	if h.nxtmem, err = readDec(arOffsetField); err != nil {
		return h, 0, err
	}
	if h.prvmem, err = readDec(arOffsetField); err != nil {
		return h, 0, err
	}
	if h.date, err = readDec(arDateField); err != nil {
		return h, 0, err
	}
	if h.uid, err = readDec(arUidField); err != nil {
		return h, 0, err
	}
	if h.gid, err = readDec(arGidField); err != nil {
		return h, 0, err
	}
	if h.mode, err = readDec(arModeField); err != nil {
		return h, 0, err
	}
	namlen, err := readDec(4)
	if err != nil {
		return h, 0, err
	}
	h.namlen = uint32(namlen)
	return h, p, nil
}

// iterMembers walks the member chain starting at firstMemberOff, invoking fn
// with each member's name and file-offset span. Zero-length members are
// structural sentinels and are skipped.
func (a *Archive) iterMembers(fn func(name string, dataOff int, size uint64) error) error {
	off := a.firstMemberOff
	seen := make(map[uint64]bool)
	for off != 0 {
		if seen[off] {
			return fmt.Errorf("bigar: cyclic member chain at offset %d", off)
		}
		seen[off] = true

		hdr, nameOff, err := parseArMemberHeader(a.buf, int(off))
		if err != nil {
			return err
		}
		if err := need(a.buf, nameOff, int(hdr.namlen)); err != nil {
			return err
		}
		name := string(a.buf[nameOff : nameOff+int(hdr.namlen)])

		dataOff := nameOff + int(hdr.namlen)
		if hdr.namlen%2 != 0 {
			dataOff++ // even-byte alignment pad
		}
		if err := need(a.buf, dataOff, 2); err != nil {
			return err
		}
		if a.buf[dataOff] != '`' || a.buf[dataOff+1] != '\n' {
			return fmt.Errorf("bigar: missing `\\n trailer after member name %q", name)
		}
		dataOff += 2

		if hdr.size > 0 {
			if err := fn(name, dataOff, hdr.size); err != nil {
				return err
			}
		}

		off = hdr.nxtmem
	}
	return nil
}

// Extract returns the named member's data, borrowed from the archive's
// backing buffer. The first exact byte-for-byte name match wins.
func (a *Archive) Extract(name string) (*Member, error) {
	var found *Member
	err := a.iterMembers(func(memberName string, dataOff int, size uint64) error {
		if found != nil {
			return nil
		}
		if memberName == name {
			if err := need(a.buf, dataOff, int(size)); err != nil {
				return err
			}
			found = &Member{Name: memberName, Data: a.buf[dataOff : dataOff+int(size)]}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("bigar: no member named %q", name)
	}
	return found, nil
}
